// Package paypal implements server-side verification of PayPal checkout
// orders against the PayPal REST API. Only the fields the checkout flow
// needs are decoded; the rest of PayPal's response schema is skipped.
package paypal

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/shukshop/storefront/internal/domain/order"
)

const (
	sandboxAPIBase = "https://api-m.sandbox.paypal.com"
	liveAPIBase    = "https://api-m.paypal.com"
)

var (
	// ErrNotCompleted is returned when the PayPal order exists but its
	// payment has not been captured.
	ErrNotCompleted = errors.New("paypal payment not completed")
	// ErrNoCapture is returned when a completed order carries no capture id.
	ErrNoCapture = errors.New("paypal order has no capture")
)

// Config holds PayPal REST API credentials. Mode selects the sandbox or
// live endpoint.
type Config struct {
	ClientID     string
	ClientSecret string
	Mode         string // "sandbox" or "live"
}

// tokenSlack renews cached tokens this long before PayPal's reported
// expiry, so an in-flight request never carries a token about to lapse.
const tokenSlack = time.Minute

// Client verifies checkout orders with PayPal. It implements
// order.PaymentVerifier.
type Client struct {
	http    *http.Client
	baseURL string
	id      string
	secret  string

	mu       sync.Mutex
	token    string
	tokenExp time.Time
	now      func() time.Time
}

var _ order.PaymentVerifier = (*Client)(nil)

// NewClient validates the configuration and returns a Client. Missing
// credentials are a configuration failure surfaced at startup, not at the
// first checkout.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("paypal client id and secret are required")
	}

	base := sandboxAPIBase
	switch cfg.Mode {
	case "", "sandbox":
	case "live":
		base = liveAPIBase
	default:
		return nil, errors.Errorf("unknown paypal mode %q", cfg.Mode)
	}

	return &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: base,
		id:      cfg.ClientID,
		secret:  cfg.ClientSecret,
		now:     time.Now,
	}, nil
}

// VerifyOrder fetches the PayPal order and returns its capture details.
// Orders whose status is not COMPLETED are rejected.
func (c *Client) VerifyOrder(ctx context.Context, paypalOrderID string) (*order.Capture, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "oauth token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v2/checkout/orders/"+url.PathEscape(paypalOrderID), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("paypal responded %d", resp.StatusCode)
	}

	capture, status, err := decodeOrder(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	if status != "COMPLETED" {
		return nil, errors.Wrapf(ErrNotCompleted, "status %s", status)
	}
	if capture.CaptureID == "" {
		return nil, ErrNoCapture
	}
	return capture, nil
}

// accessToken returns a cached OAuth token, performing the
// client-credentials exchange only when the cache is empty or inside the
// renewal slack. The lock is held across the exchange so concurrent
// verifications share one refresh.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExp.Add(-tokenSlack)) {
		return c.token, nil
	}

	token, expiresIn, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.tokenExp = c.now().Add(time.Duration(expiresIn) * time.Second)
	return token, nil
}

// fetchToken performs the client-credentials OAuth exchange.
func (c *Client) fetchToken(ctx context.Context) (token string, expiresIn int64, _ error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, errors.Wrap(err, "build request")
	}
	req.SetBasicAuth(c.id, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, errors.Wrap(err, "post token")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, errors.Errorf("paypal token endpoint responded %d", resp.StatusCode)
	}

	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "access_token":
			var err error
			token, err = d.Str()
			return err
		case "expires_in":
			var err error
			expiresIn, err = d.Int64()
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return "", 0, errors.Wrap(err, "decode token response")
	}
	if token == "" {
		return "", 0, errors.New("empty access token")
	}
	return token, expiresIn, nil
}

// decodeOrder walks the PayPal order JSON and extracts the status, captured
// amount, capture id, and payer details.
func decodeOrder(body []byte) (*order.Capture, string, error) {
	var (
		captured  order.Capture
		status    string
		givenName string
		surname   string
	)

	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			var err error
			status, err = d.Str()
			return err
		case "create_time":
			s, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339, s)
			if err == nil {
				captured.CreateTime = t
			}
			return nil
		case "payer":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "email_address":
					var err error
					captured.PayerEmail, err = d.Str()
					return err
				case "name":
					return d.Obj(func(d *jx.Decoder, key string) error {
						switch key {
						case "given_name":
							var err error
							givenName, err = d.Str()
							return err
						case "surname":
							var err error
							surname, err = d.Str()
							return err
						default:
							return d.Skip()
						}
					})
				default:
					return d.Skip()
				}
			})
		case "purchase_units":
			first := true
			return d.Arr(func(d *jx.Decoder) error {
				if !first {
					return d.Skip()
				}
				first = false
				return decodePurchaseUnit(d, &captured)
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, "", err
	}

	captured.PayerName = strings.TrimSpace(givenName + " " + surname)
	return &captured, status, nil
}

func decodePurchaseUnit(d *jx.Decoder, captured *order.Capture) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "amount":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "currency_code":
					var err error
					captured.Currency, err = d.Str()
					return err
				case "value":
					s, err := d.Str()
					if err != nil {
						return err
					}
					v, err := decimal.NewFromString(s)
					if err != nil {
						return errors.Wrap(err, "parse amount")
					}
					captured.Amount = v
					return nil
				default:
					return d.Skip()
				}
			})
		case "payments":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "captures" {
					return d.Skip()
				}
				first := true
				return d.Arr(func(d *jx.Decoder) error {
					if !first {
						return d.Skip()
					}
					first = false
					return d.Obj(func(d *jx.Decoder, key string) error {
						if key != "id" {
							return d.Skip()
						}
						var err error
						captured.CaptureID, err = d.Str()
						return err
					})
				})
			})
		default:
			return d.Skip()
		}
	})
}
