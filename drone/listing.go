package drone

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Listing is a drone offered for sale near the farmer.
type Listing struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	PricePaise         int64   `json:"pricePaise"`
	OriginalPriceCents int64   `json:"originalPriceCents"`
	RangeKm            float64 `json:"rangeKm"`
	BatteryMinutes     int     `json:"batteryMinutes"`
	PayloadKg          float64 `json:"payloadKg"`
	ImageURL           string  `json:"imageUrl"`
	Seller             string  `json:"seller"`
	DistanceKm         float64 `json:"distanceKm"`
	Available          bool    `json:"available"`
}

// Price renders the listing price the way the shop shows it.
func (l Listing) Price() string {
	return FormatINR(l.PricePaise)
}

// OriginalPrice renders the USD list price, "$1,299".
func (l Listing) OriginalPrice() string {
	return "$" + groupThousands(strconv.FormatInt(l.OriginalPriceCents/100, 10))
}

// Reader lists drone listings.
type Reader interface {
	ListAvailable(ctx context.Context, maxDistanceKm float64) ([]Listing, error)
}

// Repository reads drone_listings.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListAvailable returns available listings within maxDistanceKm, nearest
// first. A non-positive distance means no limit.
func (r *Repository) ListAvailable(ctx context.Context, maxDistanceKm float64) ([]Listing, error) {
	query := `
		SELECT id, name, price_paise, original_price_cents, range_km, battery_minutes,
		       payload_kg, image_url, seller, distance_km, available
		FROM drone_listings
		WHERE available
	`
	args := []any{}
	if maxDistanceKm > 0 {
		args = append(args, maxDistanceKm)
		query += " AND distance_km <= $1"
	}
	query += " ORDER BY distance_km ASC, name ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("drone: list available: %w", err)
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.ID, &l.Name, &l.PricePaise, &l.OriginalPriceCents, &l.RangeKm,
			&l.BatteryMinutes, &l.PayloadKg, &l.ImageURL, &l.Seller, &l.DistanceKm, &l.Available); err != nil {
			return nil, fmt.Errorf("drone: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("drone: iterate listings: %w", err)
	}
	return listings, nil
}

// FormatINR renders paise as rupees with Indian digit grouping: the last
// three digits, then pairs. Paise are dropped when zero.
func FormatINR(paise int64) string {
	neg := paise < 0
	if neg {
		paise = -paise
	}
	rupees := strconv.FormatInt(paise/100, 10)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString("₹")
	b.WriteString(groupIndian(rupees))
	if rem := paise % 100; rem != 0 {
		fmt.Fprintf(&b, ".%02d", rem)
	}
	return b.String()
}

func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	parts = append([]string{head}, parts...)
	return strings.Join(parts, ",") + "," + tail
}

func groupThousands(digits string) string {
	var parts []string
	for len(digits) > 3 {
		parts = append([]string{digits[len(digits)-3:]}, parts...)
		digits = digits[:len(digits)-3]
	}
	parts = append([]string{digits}, parts...)
	return strings.Join(parts, ",")
}
