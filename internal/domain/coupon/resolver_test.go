package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	coupon *Coupon
	err    error
	asked  string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	m.asked = code
	return m.coupon, m.err
}

func (m *mockCouponRepo) List(context.Context) ([]Coupon, error)   { return nil, nil }
func (m *mockCouponRepo) Create(context.Context, *Coupon) error    { return nil }
func (m *mockCouponRepo) Update(context.Context, *Coupon) error    { return nil }
func (m *mockCouponRepo) Deactivate(context.Context, string) error { return nil }
func (m *mockCouponRepo) Delete(context.Context, string) error     { return nil }

func TestRepoResolver_Resolve(t *testing.T) {
	fixedNow := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := fixedNow.Add(72 * time.Hour)
	past := fixedNow.Add(-time.Hour)

	subtotal150 := decimal.NewFromInt(150)

	tests := []struct {
		name         string
		repo         *mockCouponRepo
		code         string
		subtotal     decimal.Decimal
		wantStatus   Status
		wantDiscount decimal.Decimal
	}{
		{
			name:         "empty code clears discount",
			repo:         &mockCouponRepo{},
			code:         "",
			subtotal:     subtotal150,
			wantStatus:   StatusNone,
			wantDiscount: decimal.Zero,
		},
		{
			name:         "unknown code is invalid",
			repo:         &mockCouponRepo{err: ErrNotFound},
			code:         "BOGUS",
			subtotal:     subtotal150,
			wantStatus:   StatusInvalid,
			wantDiscount: decimal.Zero,
		},
		{
			name: "expired coupon",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "OLD10", PercentageOff: 10, ExpiresAt: past, IsActive: true,
			}},
			code:         "OLD10",
			subtotal:     subtotal150,
			wantStatus:   StatusExpired,
			wantDiscount: decimal.Zero,
		},
		{
			name: "active coupon applies percentage of subtotal",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "SAVE10", PercentageOff: 10, ExpiresAt: future, IsActive: true,
			}},
			code:         "SAVE10",
			subtotal:     subtotal150,
			wantStatus:   StatusApplied,
			wantDiscount: decimal.NewFromInt(15),
		},
		{
			name: "full discount at 100 percent",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "FREEBIE", PercentageOff: 100, ExpiresAt: future, IsActive: true,
			}},
			code:         "FREEBIE",
			subtotal:     subtotal150,
			wantStatus:   StatusApplied,
			wantDiscount: decimal.NewFromInt(150),
		},
		{
			name: "fractional discount rounds to 2 places",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "THIRD", PercentageOff: 33, ExpiresAt: future, IsActive: true,
			}},
			code:         "THIRD",
			subtotal:     decimal.RequireFromString("99.99"),
			wantStatus:   StatusApplied,
			wantDiscount: decimal.RequireFromString("33.00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRepoResolver(tt.repo)
			r.now = func() time.Time { return fixedNow }

			got, err := r.Resolve(context.Background(), tt.code, tt.subtotal)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.True(t, tt.wantDiscount.Equal(got.Discount),
				"expected discount %s, got %s", tt.wantDiscount, got.Discount)
		})
	}
}

func TestRepoResolver_CodePassedExactly(t *testing.T) {
	// Matching is exact: the resolver must not normalize the code before
	// lookup.
	repo := &mockCouponRepo{err: ErrNotFound}
	r := NewRepoResolver(repo)

	_, err := r.Resolve(context.Background(), "SAVE10", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", repo.asked)
}

func TestRepoResolver_MalformedCodeSkipsLookup(t *testing.T) {
	// Stored codes are uppercase alphanumerics, so anything else is invalid
	// without a repository round-trip.
	repo := &mockCouponRepo{}
	r := NewRepoResolver(repo)

	for _, code := range []string{"Save10", "SAVE 10", "SAVE-10", "скидка"} {
		res, err := r.Resolve(context.Background(), code, decimal.NewFromInt(100))
		require.NoError(t, err)
		assert.Equal(t, StatusInvalid, res.Status, "code %q", code)
		assert.Empty(t, repo.asked)
	}
}

func TestRepoResolver_RepositoryError(t *testing.T) {
	repo := &mockCouponRepo{err: errors.New("connection reset")}
	r := NewRepoResolver(repo)

	_, err := r.Resolve(context.Background(), "SAVE10", decimal.NewFromInt(100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestCoupon_Valid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := Coupon{PercentageOff: 10, ExpiresAt: now.Add(time.Minute), IsActive: true}
	assert.True(t, c.Valid(now))

	c.IsActive = false
	assert.False(t, c.Valid(now))

	c.IsActive = true
	c.ExpiresAt = now.Add(-time.Minute)
	assert.False(t, c.Valid(now))

	// Expiring exactly now is still usable.
	c.ExpiresAt = now
	assert.True(t, c.Valid(now))
}

func TestWellFormedCode(t *testing.T) {
	assert.True(t, WellFormedCode("SAVE10"))
	assert.True(t, WellFormedCode("A1"))
	assert.False(t, WellFormedCode(""))
	assert.False(t, WellFormedCode("save10"))
	assert.False(t, WellFormedCode("SAVE_10"))
}

func TestDiscount(t *testing.T) {
	assert.True(t, decimal.Zero.Equal(Discount(decimal.NewFromInt(-5), 10)))
	assert.True(t, decimal.Zero.Equal(Discount(decimal.NewFromInt(100), 0)))
	assert.True(t, decimal.NewFromInt(50).Equal(Discount(decimal.NewFromInt(100), 50)))
}
