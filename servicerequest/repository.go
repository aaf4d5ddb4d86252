package servicerequest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"agriflow/calendar"
)

var (
	ErrNotFound = errors.New("servicerequest: not found")

	// ErrUnknownProvider signals a provider id with no provider directory entry.
	ErrUnknownProvider = errors.New("servicerequest: unknown provider")
)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, req Request) (Request, error)
	ProviderExists(ctx context.Context, tx pgx.Tx, id string) (bool, error)
	List(ctx context.Context, filters Filters) ([]Request, int, error)
	Get(ctx context.Context, id string) (Request, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status, cancelReason *string) (Request, error)
	AssignProvider(ctx context.Context, tx pgx.Tx, id string, providerID string, status Status) (Request, error)
	Events(ctx context.Context, id string) ([]Event, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const requestColumns = `id, farmer_id, provider_id, service, address, latitude, longitude, acres, number_of_tanks,
            tanks_to_spray, scheduled_on, agrochemical, crop, coupon, price_paise, discount_paise, status, cancel_reason,
            created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, req Request) (Request, error) {
	query := `
        INSERT INTO service_requests (id, farmer_id, provider_id, service, address, latitude, longitude, acres,
            number_of_tanks, tanks_to_spray, scheduled_on, agrochemical, crop, coupon, price_paise, discount_paise,
            status, cancel_reason)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
            $13, $14, $15, $16, $17, $18)
        RETURNING ` + requestColumns

	row := tx.QueryRow(ctx, query,
		req.ID,
		req.FarmerID,
		req.ProviderID,
		req.Service,
		req.Address,
		req.Latitude,
		req.Longitude,
		req.Acres,
		req.NumberOfTanks,
		req.TanksToSpray,
		req.ScheduledOn.Time(time.UTC),
		req.Agrochemical,
		req.Crop,
		req.Coupon,
		req.PricePaise,
		req.DiscountPaise,
		StatusCode(req.Status),
		req.CancelReason,
	)

	created, err := scanRequest(row)
	if err != nil {
		if isProviderViolation(err) {
			return Request{}, ErrUnknownProvider
		}
		return Request{}, fmt.Errorf("servicerequest: insert: %w", err)
	}
	return created, nil
}

// ProviderExists reports whether id names a provider directory entry. Ids
// that are not UUIDs simply do not exist.
func (r *PGRepository) ProviderExists(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM providers WHERE id::text = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("servicerequest: lookup provider: %w", err)
	}
	return exists, nil
}

// isProviderViolation matches the provider_id foreign key, which a provider
// removed after ProviderExists ran can still trip.
func isProviderViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503" && pgErr.ConstraintName == "service_requests_provider_id_fkey"
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Request, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}
	if filters.SortKey == "" {
		filters.SortKey = "scheduledOn"
	}
	if filters.SortOrder == "" {
		filters.SortOrder = "desc"
	}

	base := `SELECT ` + requestColumns + `
             FROM service_requests`
	where := []string{"1=1"}
	args := []any{}

	if filters.FarmerID != "" {
		where = append(where, fmt.Sprintf("farmer_id=$%d", len(args)+1))
		args = append(args, filters.FarmerID)
	}
	if filters.ProviderID != "" {
		where = append(where, fmt.Sprintf("provider_id=$%d", len(args)+1))
		args = append(args, filters.ProviderID)
	}
	if filters.Unassigned {
		where = append(where, "provider_id IS NULL")
	}
	if rng := filters.Query.Range; rng != nil {
		n := rng.Normalized()
		where = append(where, fmt.Sprintf("scheduled_on BETWEEN $%d AND $%d", len(args)+1, len(args)+2))
		args = append(args, n.Start.Time(time.UTC), n.End.Time(time.UTC))
	}
	if len(filters.Query.Statuses) > 0 {
		statusCodes := make([]string, 0, len(filters.Query.Statuses))
		for _, s := range filters.Query.Statuses {
			statusCodes = append(statusCodes, StatusCode(s))
		}
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)+1))
		args = append(args, statusCodes)
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		n := len(args) + 1
		where = append(where, fmt.Sprintf("(address ILIKE $%d OR crop ILIKE $%d OR agrochemical ILIKE $%d OR service ILIKE $%d)", n, n, n, n))
		args = append(args, "%"+search+"%")
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")

	sortKey := mapSortKey(filters.SortKey)
	sortOrder := strings.ToUpper(filters.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	limit := filters.PageSize
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`%s%s ORDER BY %s %s, created_at DESC LIMIT %d OFFSET %d`, base, whereClause, sortKey, sortOrder, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("servicerequest: query list: %w", err)
	}
	defer rows.Close()

	list := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("servicerequest: scan list: %w", err)
		}
		list = append(list, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("servicerequest: iterate list: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM service_requests%s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("servicerequest: count list: %w", err)
	}

	return list, total, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Request, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id = $1`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("servicerequest: get: %w", err)
	}
	return req, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id = $1 FOR UPDATE`

	req, err := scanRequest(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("servicerequest: get for update: %w", err)
	}
	return req, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status, cancelReason *string) (Request, error) {
	query := `
		UPDATE service_requests
		SET status = $2,
		    cancel_reason = COALESCE($3, cancel_reason),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + requestColumns

	req, err := scanRequest(tx.QueryRow(ctx, query, id, StatusCode(status), cancelReason))
	if err != nil {
		return Request{}, fmt.Errorf("servicerequest: update status: %w", err)
	}
	return req, nil
}

func (r *PGRepository) AssignProvider(ctx context.Context, tx pgx.Tx, id string, providerID string, status Status) (Request, error) {
	query := `
		UPDATE service_requests
		SET provider_id = $2,
		    status = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + requestColumns

	req, err := scanRequest(tx.QueryRow(ctx, query, id, providerID, StatusCode(status)))
	if err != nil {
		if isProviderViolation(err) {
			return Request{}, ErrUnknownProvider
		}
		return Request{}, fmt.Errorf("servicerequest: assign provider: %w", err)
	}
	return req, nil
}

func (r *PGRepository) Events(ctx context.Context, id string) ([]Event, error) {
	const query = `
		SELECT id, request_id, seq, type, actor_id, payload, created_at
		FROM request_events
		WHERE request_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("servicerequest: list events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, 8)
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.RequestID, &ev.Seq, &ev.Type, &ev.ActorID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("servicerequest: scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("servicerequest: iterate events: %w", err)
	}
	return events, nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req         Request
		scheduledOn time.Time
		statusCode  string
	)
	err := row.Scan(
		&req.ID,
		&req.FarmerID,
		&req.ProviderID,
		&req.Service,
		&req.Address,
		&req.Latitude,
		&req.Longitude,
		&req.Acres,
		&req.NumberOfTanks,
		&req.TanksToSpray,
		&scheduledOn,
		&req.Agrochemical,
		&req.Crop,
		&req.Coupon,
		&req.PricePaise,
		&req.DiscountPaise,
		&statusCode,
		&req.CancelReason,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return Request{}, err
	}

	req.ScheduledOn = calendar.FromTime(scheduledOn)
	status, err := StatusFromCode(statusCode)
	if err != nil {
		return Request{}, err
	}
	req.Status = status
	return req, nil
}

func mapSortKey(key string) string {
	switch key {
	case "acres":
		return "acres"
	case "price":
		return "price_paise"
	case "status":
		return "status"
	case "createdAt":
		return "created_at"
	case "updatedAt":
		return "updated_at"
	case "scheduledOn":
		fallthrough
	default:
		return "scheduled_on"
	}
}
