package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested provider does not exist.
var ErrNotFound = errors.New("provider: not found")

// Repository provides read access to provider profiles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a provider profile by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Profile, error) {
	const query = `
		SELECT id, name, location, services, verified, created_at
		FROM providers
		WHERE id = $1
	`

	var profile Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&profile.Name,
		&profile.Location,
		&profile.Services,
		&profile.Verified,
		&profile.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("provider: query by id: %w", err)
	}

	return profile, nil
}

// List fetches up to params.Limit provider profiles ordered by name.
func (r *Repository) List(ctx context.Context, params ListParams) ([]Profile, error) {
	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, name, location, services, verified, created_at
		FROM providers
		WHERE 1=1
	`
	args := []any{}
	if search := strings.TrimSpace(params.Search); search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND (name ILIKE $%d OR location ILIKE $%d)", len(args), len(args))
	}
	if service := strings.TrimSpace(params.Service); service != "" {
		args = append(args, strings.ToLower(service))
		query += fmt.Sprintf(" AND $%d = ANY(services)", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY verified DESC, name ASC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("provider: list: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0, limit)
	for rows.Next() {
		var profile Profile
		if err := rows.Scan(&profile.ID, &profile.Name, &profile.Location, &profile.Services, &profile.Verified, &profile.CreatedAt); err != nil {
			return nil, fmt.Errorf("provider: scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("provider: iterate profiles: %w", err)
	}

	return profiles, nil
}
