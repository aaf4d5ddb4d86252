package spraying

import (
	"errors"
	"math"
	"strings"
)

var (
	// ErrUnknownCoupon signals a coupon code missing from the pricing table.
	ErrUnknownCoupon = errors.New("spraying: unknown coupon")

	// ErrInvalidQuantity signals a tank count or rate that cannot be priced.
	ErrInvalidQuantity = errors.New("spraying: quantity out of range")
)

// Coupon discounts a quote. Percent and Flat (paise) may both apply.
type Coupon struct {
	Percent int   `yaml:"percent" json:"percent"`
	Flat    int64 `yaml:"flat" json:"flat"`
}

// Pricing turns a booking into a price. Amounts are in paise.
type Pricing struct {
	PerTank int64             `yaml:"per_tank"`
	Coupons map[string]Coupon `yaml:"coupons"`
}

// DefaultPricing charges 500.00 per tank and knows the FLAT20 coupon.
func DefaultPricing() Pricing {
	return Pricing{
		PerTank: 50000,
		Coupons: map[string]Coupon{
			"FLAT20": {Percent: 20},
		},
	}
}

// Quote is the price breakdown shown before the request is created.
type Quote struct {
	Base     int64  `json:"base"`
	Discount int64  `json:"discount"`
	Final    int64  `json:"final"`
	Coupon   string `json:"coupon,omitempty"`
}

// Quote prices b. An empty coupon quotes without discount.
func (p Pricing) Quote(b Booking) (Quote, error) {
	tanks := int64(b.TanksToSpray)
	if tanks <= 0 || p.PerTank < 0 || (p.PerTank > 0 && tanks > math.MaxInt64/p.PerTank) {
		return Quote{}, ErrInvalidQuantity
	}
	q := Quote{Base: p.PerTank * tanks}

	code := strings.ToUpper(strings.TrimSpace(b.Coupon))
	if code != "" {
		c, ok := p.Coupons[code]
		if !ok {
			return Quote{}, ErrUnknownCoupon
		}
		q.Coupon = code
		q.Discount = q.Base*int64(c.Percent)/100 + c.Flat
		if q.Discount > q.Base {
			q.Discount = q.Base
		}
	}

	q.Final = q.Base - q.Discount
	return q, nil
}
