package servicerequest

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"agriflow/requestfilter"
)

var (
	// ErrDuplicateIdempotencyKey signals the payment event was already applied.
	ErrDuplicateIdempotencyKey = errors.New("servicerequest: duplicate idempotency key")

	// ErrAmountMismatch signals a payment that does not settle the quoted price.
	ErrAmountMismatch = errors.New("servicerequest: payment amount does not match price")
)

// PaymentEvent is the payment provider's webhook payload normalized for the service.
type PaymentEvent struct {
	RequestID      string
	IdempotencyKey string
	AmountPaise    int64
	Reference      string
}

// IdempotencyStore reserves webhook keys inside a transaction.
type IdempotencyStore interface {
	InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error
}

// PGIdempotency stores keys in the idempotency table.
type PGIdempotency struct{}

// InsertIdempotencyKey attempts to reserve the key inside the active transaction.
func (PGIdempotency) InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error {
	if key == "" {
		return fmt.Errorf("servicerequest: empty idempotency key")
	}

	_, err := tx.Exec(ctx, `INSERT INTO idempotency (key) VALUES ($1)`, key)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("servicerequest: insert idempotency key: %w", err)
	}
	return nil
}

type PaymentService struct {
	requests *Service
	keys     IdempotencyStore
}

func NewPaymentService(requests *Service, keys IdempotencyStore) *PaymentService {
	if keys == nil {
		keys = PGIdempotency{}
	}
	return &PaymentService{requests: requests, keys: keys}
}

// HandlePaymentWebhook marks a Completed request Paid. Replays of the same
// idempotency key are accepted and do nothing. The amount must equal the
// request's price; a mismatch leaves the request and the key untouched.
func (s *PaymentService) HandlePaymentWebhook(ctx context.Context, ev PaymentEvent) error {
	if ev.IdempotencyKey == "" {
		return fmt.Errorf("servicerequest: missing idempotency key")
	}
	if ev.RequestID == "" {
		return fmt.Errorf("servicerequest: missing request id")
	}

	tx, err := s.requests.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("servicerequest: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.keys.InsertIdempotencyKey(ctx, tx, ev.IdempotencyKey); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return nil
		}
		return err
	}

	payload := map[string]any{
		"amount_paise": ev.AmountPaise,
		"reference":    ev.Reference,
	}
	matchesPrice := func(req Request) error {
		if req.PricePaise != ev.AmountPaise {
			return fmt.Errorf("%w: paid %d, price %d", ErrAmountMismatch, ev.AmountPaise, req.PricePaise)
		}
		return nil
	}
	updated, previous, err := s.requests.transitionTx(ctx, tx, ev.RequestID, Actor{Role: RoleAdmin}, requestfilter.StatusPaid, nil, matchesPrice, payload)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("servicerequest: commit payment: %w", err)
	}

	s.requests.observeTransition(previous, updated.Status)
	return nil
}
