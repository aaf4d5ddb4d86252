package servicerequest

import (
	"context"
	"errors"
	"testing"
	"time"

	"agriflow/calendar"
	"agriflow/requestfilter"
	"agriflow/spraying"
)

type harness struct {
	pool     *fakePool
	repo     *fakeRepository
	timeline *fakeTimeline
	outbox   *fakeOutbox
	metrics  *fakeMetrics
	svc      *Service
}

func newHarness() *harness {
	h := &harness{
		pool:    &fakePool{},
		repo:    newFakeRepository(),
		outbox:  &fakeOutbox{},
		metrics: &fakeMetrics{},
	}
	h.timeline = &fakeTimeline{repo: h.repo}
	h.svc = NewService(h.pool, h.repo).
		WithTimeline(h.timeline).
		WithOutbox(h.outbox).
		WithMetrics(h.metrics).
		WithIDGenerator(func() string { return "" })
	return h
}

func sprayingForm() spraying.Form {
	return spraying.Form{
		Address:       "Nashik",
		Acres:         "2",
		NumberOfTanks: "4",
		TanksToSpray:  "3",
		SprayingDate:  "13/03/2025",
		Agrochemical:  "Insecticide",
		Crop:          "Bajra",
		Coupon:        "FLAT20",
		Location:      &spraying.Location{Latitude: 19.99, Longitude: 73.78},
	}
}

func (h *harness) place(t *testing.T, farmerID string) Request {
	t.Helper()
	req, err := h.svc.Create(context.Background(), CreateParams{FarmerID: farmerID, Form: sprayingForm()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return req
}

func TestService_Create(t *testing.T) {
	h := newHarness()
	req := h.place(t, "farmer-1")

	if req.Status != requestfilter.StatusPlaced {
		t.Fatalf("expected status Placed, got %s", req.Status)
	}
	if req.PricePaise != 120000 || req.DiscountPaise != 30000 {
		t.Fatalf("unexpected price %d discount %d", req.PricePaise, req.DiscountPaise)
	}
	if req.ScheduledOn != (calendar.Date{Year: 2025, Month: time.March, Day: 13}) {
		t.Fatalf("unexpected scheduled date %v", req.ScheduledOn)
	}
	if req.Latitude == nil || *req.Latitude != 19.99 {
		t.Fatalf("expected latitude to be stored, got %v", req.Latitude)
	}
	if req.Coupon == nil || *req.Coupon != "FLAT20" {
		t.Fatalf("expected coupon FLAT20, got %v", req.Coupon)
	}

	tx := h.pool.last()
	if tx == nil || !tx.committed {
		t.Fatal("expected committed transaction")
	}
	if len(h.timeline.events) != 1 || h.timeline.events[0].eventType != EventRequestPlaced {
		t.Fatalf("unexpected timeline %+v", h.timeline.events)
	}
	if len(h.outbox.topics) != 1 || h.outbox.topics[0] != TopicRequestPlaced {
		t.Fatalf("unexpected outbox %+v", h.outbox.topics)
	}
	if h.metrics.placed != 1 {
		t.Fatalf("expected placed metric, got %d", h.metrics.placed)
	}
}

func TestService_CreateValidation(t *testing.T) {
	h := newHarness()
	form := sprayingForm()
	form.Crop = ""

	_, err := h.svc.Create(context.Background(), CreateParams{FarmerID: "farmer-1", Form: form})
	var verr *spraying.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Notice != "Please select a crop" {
		t.Fatalf("unexpected notice %q", verr.Notice)
	}
	if len(h.pool.txs) != 0 {
		t.Fatal("expected no transaction for invalid form")
	}

	if _, err := h.svc.Create(context.Background(), CreateParams{Form: sprayingForm()}); err == nil {
		t.Fatal("expected error for missing farmer")
	}
}

func TestService_CreateAddressedToProvider(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	req, err := h.svc.Create(ctx, CreateParams{FarmerID: "farmer-1", ProviderID: "provider-1", Form: sprayingForm()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.ProviderID == nil || *req.ProviderID != "provider-1" {
		t.Fatalf("expected request addressed to provider-1, got %v", req.ProviderID)
	}

	for _, id := range []string{"farmer-1", "not-a-uuid"} {
		_, err := h.svc.Create(ctx, CreateParams{FarmerID: "farmer-1", ProviderID: id, Form: sprayingForm()})
		if !errors.Is(err, ErrUnknownProvider) {
			t.Fatalf("provider %q: expected ErrUnknownProvider, got %v", id, err)
		}
		if tx := h.pool.last(); tx.committed || !tx.rolled {
			t.Fatalf("provider %q: expected rollback", id)
		}
	}
	if len(h.repo.requests) != 1 {
		t.Fatalf("expected only the addressed request stored, got %d", len(h.repo.requests))
	}
	if len(h.outbox.topics) != 1 {
		t.Fatalf("expected one outbox message, got %v", h.outbox.topics)
	}
}

func TestService_AcceptAndTransition(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := h.place(t, "farmer-1")
	provider := Actor{ID: "provider-1", Role: RoleProvider}

	accepted, err := h.svc.Accept(ctx, provider, req.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != requestfilter.StatusAccepted || accepted.ProviderID == nil || *accepted.ProviderID != "provider-1" {
		t.Fatalf("unexpected accepted request %+v", accepted)
	}

	if _, err := h.svc.Accept(ctx, Actor{ID: "provider-2", Role: RoleProvider}, req.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for second provider, got %v", err)
	}

	inProgress, err := h.svc.Transition(ctx, TransitionParams{RequestID: req.ID, Actor: provider, NextStatus: requestfilter.StatusInProgress})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if inProgress.Status != requestfilter.StatusInProgress {
		t.Fatalf("expected In Progress, got %s", inProgress.Status)
	}

	if _, err := h.svc.Transition(ctx, TransitionParams{RequestID: req.ID, Actor: provider, NextStatus: requestfilter.StatusPaid}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected providers to be unable to mark paid, got %v", err)
	}
	if _, err := h.svc.Transition(ctx, TransitionParams{RequestID: req.ID, Actor: provider, NextStatus: requestfilter.StatusPlaced}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := h.svc.Transition(ctx, TransitionParams{RequestID: req.ID, Actor: Actor{ID: "provider-9", Role: RoleProvider}, NextStatus: requestfilter.StatusCompleted}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for unassigned provider, got %v", err)
	}

	events, err := h.svc.Timeline(ctx, Actor{ID: "farmer-1", Role: RoleFarmer}, req.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	wantTypes := []string{EventRequestPlaced, EventRequestAccepted, EventRequestStatusChanged}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d", len(wantTypes), len(events))
	}
	for i, ev := range events {
		if ev.Type != wantTypes[i] || ev.Seq != i+1 {
			t.Fatalf("event %d: unexpected %+v", i, ev)
		}
	}
	if len(h.metrics.transitions) != 2 {
		t.Fatalf("expected 2 transition metrics, got %v", h.metrics.transitions)
	}
}

func TestService_TransitionToAcceptedNeedsProvider(t *testing.T) {
	h := newHarness()
	req := h.place(t, "farmer-1")
	admin := Actor{ID: "admin-1", Role: RoleAdmin}

	_, err := h.svc.Transition(context.Background(), TransitionParams{RequestID: req.ID, Actor: admin, NextStatus: requestfilter.StatusAccepted})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got := h.repo.requests[req.ID].Status; got != requestfilter.StatusPlaced {
		t.Fatalf("expected request to stay Placed, got %s", got)
	}
}

func TestService_Cancel(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := h.place(t, "farmer-1")

	if _, err := h.svc.Cancel(ctx, CancelParams{RequestID: req.ID, Actor: Actor{ID: "farmer-2", Role: RoleFarmer}}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	reason := "  rain expected  "
	canceled, err := h.svc.Cancel(ctx, CancelParams{RequestID: req.ID, Actor: Actor{ID: "farmer-1", Role: RoleFarmer}, Reason: &reason})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != requestfilter.StatusCanceled {
		t.Fatalf("expected Canceled, got %s", canceled.Status)
	}
	if canceled.CancelReason == nil || *canceled.CancelReason != "rain expected" {
		t.Fatalf("expected trimmed reason, got %v", canceled.CancelReason)
	}
	if got := h.outbox.topics[len(h.outbox.topics)-1]; got != TopicRequestCanceled {
		t.Fatalf("expected cancel topic, got %s", got)
	}

	if _, err := h.svc.Cancel(ctx, CancelParams{RequestID: req.ID, Actor: Actor{ID: "admin", Role: RoleAdmin}}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on canceled request, got %v", err)
	}
	if tx := h.pool.last(); !tx.rolled || tx.committed {
		t.Fatal("expected failed cancel to roll back")
	}
}

func TestService_GetVisibility(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := h.place(t, "farmer-1")

	if _, err := h.svc.Get(ctx, Actor{ID: "farmer-2", Role: RoleFarmer}, req.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other farmer, got %v", err)
	}
	if _, err := h.svc.Get(ctx, Actor{ID: "provider-1", Role: RoleProvider}, req.ID); err != nil {
		t.Fatalf("expected open request visible to providers, got %v", err)
	}
	if _, err := h.svc.Get(ctx, Actor{ID: "x", Role: "guest"}, req.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown role, got %v", err)
	}
}

func TestService_ListWithFilterController(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := h.place(t, "farmer-1")
	h.place(t, "farmer-1")
	if _, err := h.svc.Accept(ctx, Actor{ID: "provider-1", Role: RoleProvider}, req.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	clock := func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) }
	ctrl := requestfilter.New(clock).
		OpenCalendar(requestfilter.EndpointEnd).
		SelectDay(31).
		Apply().
		ToggleStatus(requestfilter.StatusAccepted)

	res, err := h.svc.List(ctx, Filters{FarmerID: "farmer-1", Query: ctrl.Query()})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Total != 1 || res.Items[0].ID != req.ID {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = h.svc.List(ctx, Filters{FarmerID: "farmer-1", Query: ctrl.ClearAll().Query()})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Total != 0 {
		t.Fatalf("expected no requests scheduled today, got %d", res.Total)
	}
}

func TestCanTransition(t *testing.T) {
	for _, s := range requestfilter.AllStatuses() {
		if CanTransition(requestfilter.StatusPaid, s) || CanTransition(requestfilter.StatusCanceled, s) {
			t.Fatalf("terminal status allowed transition to %s", s)
		}
		if StatusCode(s) == "" {
			t.Fatalf("missing code for %s", s)
		}
		back, err := StatusFromCode(StatusCode(s))
		if err != nil || back != s {
			t.Fatalf("code round trip for %s: %s %v", s, back, err)
		}
	}
	if !CanTransition(requestfilter.StatusCompleted, requestfilter.StatusPaid) {
		t.Fatal("expected Completed -> Paid")
	}
}
