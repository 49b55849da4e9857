package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"

	"github.com/shukshop/storefront/internal/domain/product"
)

type productResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	CategoryID  string  `json:"category_id,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	IsAvailable bool    `json:"is_available"`
}

type categoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) toProductResponse(p product.Product) productResponse {
	imageURL := p.ImageURL
	if imageURL != "" && h.cfg.ImageBaseURL != "" && !strings.HasPrefix(imageURL, "http") {
		imageURL = strings.TrimSuffix(h.cfg.ImageBaseURL, "/") + "/" + strings.TrimPrefix(imageURL, "/")
	}
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.InexactFloat64(),
		CategoryID:  p.CategoryID,
		ImageURL:    imageURL,
		IsAvailable: p.IsAvailable,
	}
}

// handleListProducts lists the catalog, optionally filtered by category id
// and a name search.
func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	filter := product.Filter{
		CategoryID: r.URL.Query().Get("category"),
		Search:     r.URL.Query().Get("q"),
	}

	products, err := h.products.List(r.Context(), filter)
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = h.toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProductResponse(*p))
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.ListCategories(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	resp := make([]categoryResponse, len(categories))
	for i, c := range categories {
		resp[i] = categoryResponse{ID: c.ID, Name: c.Name}
	}
	writeJSON(w, http.StatusOK, resp)
}
