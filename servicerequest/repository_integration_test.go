package servicerequest

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agriflow/calendar"
	"agriflow/requestfilter"
	"agriflow/spraying"
	"agriflow/test/infra"
)

// TestLifecycle_Integration runs the request lifecycle against PostgreSQL.
// DATABASE_URL must point at a live server; the run uses its own schema.
func TestLifecycle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	h, err := infra.NewHarness(ctx, dsn)
	require.NoError(t, err)
	defer h.Close(context.Background())
	pool := h.Pool()

	seedUser := func(role string) string {
		var id string
		err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, $2, $3) RETURNING id`,
			fmt.Sprintf("%s-%d@example.com", role, time.Now().UnixNano()), "Integration "+role, role).Scan(&id)
		require.NoError(t, err)
		return id
	}
	farmerID := seedUser(RoleFarmer)
	providerID := seedUser(RoleProvider)
	_, err = pool.Exec(ctx, `INSERT INTO providers (id, name) VALUES ($1, $2)`, providerID, "Integration provider")
	require.NoError(t, err)

	svc := NewService(pool, nil)
	payments := NewPaymentService(svc, nil)

	form := spraying.Form{
		Address:       "Survey 42, Nashik",
		Acres:         "3",
		NumberOfTanks: "5",
		TanksToSpray:  "4",
		SprayingDate:  "13/03/2025",
		Agrochemical:  "Fungicide",
		Crop:          "Wheat",
	}
	created, err := svc.Create(ctx, CreateParams{FarmerID: farmerID, Form: form})
	require.NoError(t, err)
	require.Equal(t, requestfilter.StatusPlaced, created.Status)
	require.Equal(t, calendar.Date{Year: 2025, Month: time.March, Day: 13}, created.ScheduledOn)

	_, err = svc.Create(ctx, CreateParams{FarmerID: farmerID, ProviderID: farmerID, Form: form})
	require.ErrorIs(t, err, ErrUnknownProvider)
	_, err = svc.Create(ctx, CreateParams{FarmerID: farmerID, ProviderID: "not-a-uuid", Form: form})
	require.ErrorIs(t, err, ErrUnknownProvider)

	other := form
	other.SprayingDate = "02/04/2025"
	other.Crop = "Cotton"
	_, err = svc.Create(ctx, CreateParams{FarmerID: farmerID, Form: other})
	require.NoError(t, err)

	// The range is given backwards on purpose.
	march := &requestfilter.DateRange{
		Start: calendar.Date{Year: 2025, Month: time.March, Day: 31},
		End:   calendar.Date{Year: 2025, Month: time.March, Day: 1},
	}
	listed, err := svc.List(ctx, Filters{FarmerID: farmerID, Query: requestfilter.Query{Range: march}})
	require.NoError(t, err)
	require.Equal(t, 1, listed.Total)
	require.Equal(t, created.ID, listed.Items[0].ID)

	searched, err := svc.List(ctx, Filters{FarmerID: farmerID, Search: "cott"})
	require.NoError(t, err)
	require.Equal(t, 1, searched.Total)

	open, err := svc.List(ctx, Filters{Unassigned: true, Query: requestfilter.Query{Statuses: []requestfilter.Status{requestfilter.StatusPlaced}}})
	require.NoError(t, err)
	require.Equal(t, 2, open.Total)

	provider := Actor{ID: providerID, Role: RoleProvider}
	_, err = svc.Accept(ctx, provider, created.ID)
	require.NoError(t, err)
	for _, next := range []requestfilter.Status{requestfilter.StatusInProgress, requestfilter.StatusCompleted} {
		_, err = svc.Transition(ctx, TransitionParams{RequestID: created.ID, Actor: provider, NextStatus: next})
		require.NoError(t, err)
	}

	short := PaymentEvent{RequestID: created.ID, IdempotencyKey: "pay-short", AmountPaise: 160000, Reference: "utr-0"}
	require.ErrorIs(t, payments.HandlePaymentWebhook(ctx, short), ErrAmountMismatch)

	ev := PaymentEvent{RequestID: created.ID, IdempotencyKey: "pay-" + created.ID, AmountPaise: created.PricePaise, Reference: "utr-1"}
	require.Equal(t, int64(200000), created.PricePaise)
	require.NoError(t, payments.HandlePaymentWebhook(ctx, ev))
	require.NoError(t, payments.HandlePaymentWebhook(ctx, ev), "replayed key is a no-op")

	ev.IdempotencyKey = "pay-again"
	require.ErrorIs(t, payments.HandlePaymentWebhook(ctx, ev), ErrInvalidTransition)

	paid, err := svc.Get(ctx, Actor{ID: farmerID, Role: RoleFarmer}, created.ID)
	require.NoError(t, err)
	require.Equal(t, requestfilter.StatusPaid, paid.Status)
	require.Equal(t, providerID, *paid.ProviderID)

	events, err := svc.Timeline(ctx, Actor{ID: farmerID, Role: RoleFarmer}, created.ID)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, e := range events {
		require.Equal(t, i+1, e.Seq)
	}
	require.Equal(t, EventRequestPlaced, events[0].Type)
	require.Equal(t, EventRequestAccepted, events[1].Type)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE payload->>'request_id' = $1`, created.ID).Scan(&outboxRows))
	require.Equal(t, 5, outboxRows)

	var keys int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM idempotency WHERE key LIKE 'pay-%'`).Scan(&keys))
	require.Equal(t, 1, keys, "failed payment must not keep its key")

	_, err = svc.Cancel(ctx, CancelParams{RequestID: created.ID, Actor: Actor{ID: farmerID, Role: RoleFarmer}})
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, h.Reset(ctx))
	_, err = svc.Get(ctx, Actor{Role: RoleAdmin}, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
