// Package actors drives the request lifecycle concurrently against a real
// database. Each actor loops until stop closes or ctx ends.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"agriflow/requestfilter"
	"agriflow/servicerequest"
	"agriflow/spraying"
)

// Stats counts outcomes across all actors.
type Stats struct {
	Created    atomic.Int64
	Accepted   atomic.Int64
	Moved      atomic.Int64
	Canceled   atomic.Int64
	Paid       atomic.Int64
	Rejected   atomic.Int64
	Unexpected atomic.Int64
	lastErr    atomic.Pointer[error]
}

// LastUnexpected returns the most recent error no actor expected.
func (s *Stats) LastUnexpected() error {
	if p := s.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Stats) String() string {
	return fmt.Sprintf("created=%d accepted=%d moved=%d canceled=%d paid=%d rejected=%d unexpected=%d",
		s.Created.Load(), s.Accepted.Load(), s.Moved.Load(), s.Canceled.Load(),
		s.Paid.Load(), s.Rejected.Load(), s.Unexpected.Load())
}

// record sorts err into the counters. Lost races are expected; anything else
// is kept for the test to report, since chaos may legitimately kill backends.
func (s *Stats) record(ok *atomic.Int64, err error) {
	switch {
	case err == nil:
		if ok != nil {
			ok.Add(1)
		}
	case errors.Is(err, servicerequest.ErrInvalidTransition),
		errors.Is(err, servicerequest.ErrForbidden),
		errors.Is(err, servicerequest.ErrNotFound):
		s.Rejected.Add(1)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		s.unexpected(err)
	}
}

func (s *Stats) unexpected(err error) {
	s.Unexpected.Add(1)
	s.lastErr.Store(&err)
}

func done(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

func pause(base, spread int) {
	time.Sleep(time.Duration(base+rand.Intn(spread)) * time.Millisecond)
}

// randomForm builds a valid spraying form scheduled within the next month.
func randomForm(now time.Time) spraying.Form {
	day := now.AddDate(0, 0, 1+rand.Intn(28))
	tanks := 1 + rand.Intn(8)
	form := spraying.Form{
		Address:       fmt.Sprintf("Plot %d, Nashik", rand.Intn(500)),
		Acres:         fmt.Sprintf("%d", 1+rand.Intn(20)),
		NumberOfTanks: fmt.Sprintf("%d", tanks+rand.Intn(4)),
		TanksToSpray:  fmt.Sprintf("%d", tanks),
		SprayingDate:  day.Format("02/01/2006"),
		Agrochemical:  spraying.Agrochemicals[rand.Intn(len(spraying.Agrochemicals))],
		Crop:          spraying.Crops[rand.Intn(len(spraying.Crops))],
	}
	if rand.Intn(3) == 0 {
		form.Coupon = "FLAT20"
	}
	return form
}

// Farmer places requests, sometimes addressed to one of providerIDs, and
// occasionally cancels one of its own.
func Farmer(ctx context.Context, svc *servicerequest.Service, farmerID string, providerIDs []string, stats *Stats, stop <-chan struct{}) error {
	self := servicerequest.Actor{ID: farmerID, Role: servicerequest.RoleFarmer}
	for !done(ctx, stop) {
		params := servicerequest.CreateParams{FarmerID: farmerID, Form: randomForm(time.Now())}
		if len(providerIDs) > 0 && rand.Intn(4) == 0 {
			params.ProviderID = providerIDs[rand.Intn(len(providerIDs))]
		}
		_, err := svc.Create(ctx, params)
		stats.record(&stats.Created, err)

		if rand.Intn(5) == 0 {
			if req, ok := pick(ctx, svc, servicerequest.Filters{FarmerID: farmerID}); ok {
				reason := "weather"
				_, err := svc.Cancel(ctx, servicerequest.CancelParams{RequestID: req.ID, Actor: self, Reason: &reason})
				stats.record(&stats.Canceled, err)
			}
		}
		pause(20, 60)
	}
	return nil
}

// Provider races other providers to accept open requests and walks its own
// requests through random legal transitions.
func Provider(ctx context.Context, svc *servicerequest.Service, providerID string, stats *Stats, stop <-chan struct{}) error {
	self := servicerequest.Actor{ID: providerID, Role: servicerequest.RoleProvider}
	for !done(ctx, stop) {
		open := servicerequest.Filters{
			Unassigned: true,
			Query:      requestfilter.Query{Statuses: []requestfilter.Status{requestfilter.StatusPlaced}},
		}
		if req, ok := pick(ctx, svc, open); ok {
			_, err := svc.Accept(ctx, self, req.ID)
			stats.record(&stats.Accepted, err)
		}

		result, err := svc.List(ctx, servicerequest.Filters{ProviderID: providerID, PageSize: 20})
		if err != nil {
			stats.record(nil, err)
			pause(50, 50)
			continue
		}
		if len(result.Items) > 0 {
			req := result.Items[rand.Intn(len(result.Items))]
			if next, ok := nextFor(req.Status); ok {
				_, err := svc.Transition(ctx, servicerequest.TransitionParams{
					RequestID:  req.ID,
					Actor:      self,
					NextStatus: next,
					Payload:    map[string]any{"note": "stress"},
				})
				stats.record(&stats.Moved, err)
			}
		}
		pause(10, 40)
	}
	return nil
}

// providerMoves leaves out Canceled and Paid, which providers cannot reach.
var providerMoves = []requestfilter.Status{
	requestfilter.StatusAccepted,
	requestfilter.StatusInProgress,
	requestfilter.StatusCompleted,
	requestfilter.StatusRescheduled,
	requestfilter.StatusOnHold,
	requestfilter.StatusOutOfService,
}

func nextFor(from requestfilter.Status) (requestfilter.Status, bool) {
	var options []requestfilter.Status
	for _, to := range providerMoves {
		if servicerequest.CanTransition(from, to) {
			options = append(options, to)
		}
	}
	if len(options) == 0 {
		return "", false
	}
	// Bias towards finishing so payments have work.
	for _, to := range options {
		if (to == requestfilter.StatusInProgress || to == requestfilter.StatusCompleted) && rand.Intn(2) == 0 {
			return to, true
		}
	}
	return options[rand.Intn(len(options))], true
}

// Payer delivers payment webhooks for completed requests. Every delivery is
// sent twice with the same key, and sometimes again under a fresh key.
func Payer(ctx context.Context, svc *servicerequest.Service, payments *servicerequest.PaymentService, stats *Stats, stop <-chan struct{}) error {
	completed := servicerequest.Filters{
		Query: requestfilter.Query{Statuses: []requestfilter.Status{requestfilter.StatusCompleted}},
	}
	for !done(ctx, stop) {
		req, ok := pick(ctx, svc, completed)
		if !ok {
			pause(30, 50)
			continue
		}
		id := req.ID
		ev := servicerequest.PaymentEvent{
			RequestID:      id,
			IdempotencyKey: "pay-" + id,
			AmountPaise:    req.PricePaise,
			Reference:      fmt.Sprintf("ref-%d", rand.Int63()),
		}
		stats.record(&stats.Paid, payments.HandlePaymentWebhook(ctx, ev))
		_ = payments.HandlePaymentWebhook(ctx, ev)

		if rand.Intn(4) == 0 {
			ev.IdempotencyKey = fmt.Sprintf("pay-%s-%d", id, rand.Int63())
			err := payments.HandlePaymentWebhook(ctx, ev)
			if err == nil {
				// A second key must not pay twice.
				stats.unexpected(fmt.Errorf("request %s paid under a second key", id))
			} else {
				stats.record(nil, err)
			}
		}
		pause(10, 30)
	}
	return nil
}

func pick(ctx context.Context, svc *servicerequest.Service, filters servicerequest.Filters) (servicerequest.Request, bool) {
	filters.PageSize = 20
	result, err := svc.List(ctx, filters)
	if err != nil || len(result.Items) == 0 {
		return servicerequest.Request{}, false
	}
	return result.Items[rand.Intn(len(result.Items))], true
}

// OutboxWorker claims pending outbox rows with SKIP LOCKED and marks them
// processed, failing one in ten so attempts accumulate.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for !done(ctx, stop) {
		tx, err := pool.Begin(ctx)
		if err != nil {
			pause(50, 50)
			continue
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status = 'pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			pause(50, 50)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err == nil {
				ids = append(ids, id)
			}
		}
		rows.Close()

		for _, id := range ids {
			status := "processed"
			if rand.Intn(10) == 0 {
				status = "pending"
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status = $2, attempts = attempts + 1 WHERE id = $1`, id, status)
		}
		_ = tx.Commit(ctx)
		pause(80, 40)
	}
	return nil
}
