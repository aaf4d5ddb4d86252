package servicerequest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"agriflow/requestfilter"
	"agriflow/spraying"
)

const (
	RoleFarmer   = "farmer"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

var (
	ErrForbidden         = errors.New("servicerequest: forbidden")
	ErrInvalidTransition = errors.New("servicerequest: invalid status transition")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Metrics receives lifecycle counts. A nil Metrics is ignored.
type Metrics interface {
	RequestPlaced(service string)
	StatusChanged(from, to Status)
}

// Actor is the authenticated caller of a mutation.
type Actor struct {
	ID   string
	Role string
}

type Service struct {
	pool        TxBeginner
	repo        Repository
	timeline    TimelineWriter
	outbox      OutboxWriter
	pricing     spraying.Pricing
	metrics     Metrics
	logger      *zap.Logger
	idGenerator func() string
}

type CreateParams struct {
	FarmerID   string
	ProviderID string
	Form       spraying.Form
}

type ListResult struct {
	Items []Request
	Total int
}

func NewService(pool TxBeginner, repo Repository) *Service {
	if repo == nil {
		if p, ok := pool.(*pgxpool.Pool); ok {
			repo = NewRepository(p)
		}
	}
	return &Service{
		pool:        pool,
		repo:        repo,
		timeline:    PGTimeline{},
		outbox:      PGOutbox{},
		pricing:     spraying.DefaultPricing(),
		logger:      zap.NewNop(),
		idGenerator: func() string { return uuid.NewString() },
	}
}

func (s *Service) WithTimeline(w TimelineWriter) *Service {
	s.timeline = w
	return s
}

func (s *Service) WithOutbox(w OutboxWriter) *Service {
	s.outbox = w
	return s
}

func (s *Service) WithPricing(p spraying.Pricing) *Service {
	s.pricing = p
	return s
}

func (s *Service) WithMetrics(m Metrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// Quote validates form and prices it without creating anything.
func (s *Service) Quote(form spraying.Form) (spraying.Quote, error) {
	booking, err := form.Booking()
	if err != nil {
		return spraying.Quote{}, err
	}
	return s.pricing.Quote(booking)
}

// Create validates and prices the spraying form, then stores it as a Placed request.
func (s *Service) Create(ctx context.Context, params CreateParams) (Request, error) {
	if params.FarmerID == "" {
		return Request{}, fmt.Errorf("servicerequest: missing farmer id")
	}

	booking, err := params.Form.Booking()
	if err != nil {
		return Request{}, err
	}
	quote, err := s.pricing.Quote(booking)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		ID:            s.idGenerator(),
		FarmerID:      params.FarmerID,
		Service:       ServiceSpraying,
		Address:       booking.Address,
		Acres:         booking.Acres,
		NumberOfTanks: booking.NumberOfTanks,
		TanksToSpray:  booking.TanksToSpray,
		ScheduledOn:   booking.Date,
		Agrochemical:  booking.Agrochemical,
		Crop:          booking.Crop,
		PricePaise:    quote.Final,
		DiscountPaise: quote.Discount,
		Status:        requestfilter.StatusPlaced,
	}
	if params.ProviderID != "" {
		providerID := params.ProviderID
		req.ProviderID = &providerID
	}
	if booking.Location != nil {
		lat, lng := booking.Location.Latitude, booking.Location.Longitude
		req.Latitude, req.Longitude = &lat, &lng
	}
	if quote.Coupon != "" {
		coupon := quote.Coupon
		req.Coupon = &coupon
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("servicerequest: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if req.ProviderID != nil {
		ok, err := s.repo.ProviderExists(ctx, tx, *req.ProviderID)
		if err != nil {
			return Request{}, err
		}
		if !ok {
			return Request{}, ErrUnknownProvider
		}
	}

	created, err := s.repo.Create(ctx, tx, req)
	if err != nil {
		return Request{}, err
	}

	payload := map[string]any{
		"request_id":   created.ID,
		"service":      created.Service,
		"scheduled_on": created.ScheduledOn.String(),
		"price_paise":  created.PricePaise,
	}
	if err := s.timeline.Append(ctx, tx, created.ID, EventRequestPlaced, params.FarmerID, payload); err != nil {
		return Request{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, TopicRequestPlaced, map[string]any{
		"request_id":  created.ID,
		"provider_id": created.ProviderID,
		"status":      StatusCode(created.Status),
	}); err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("servicerequest: commit tx: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RequestPlaced(created.Service)
	}
	s.logger.Info("service request placed",
		zap.String("request_id", created.ID),
		zap.String("farmer_id", created.FarmerID),
		zap.Int64("price_paise", created.PricePaise),
	)
	return created, nil
}

func (s *Service) List(ctx context.Context, filters Filters) (ListResult, error) {
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total}, nil
}

// Get returns the request if actor may see it.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !canView(actor, req) {
		return Request{}, ErrNotFound
	}
	return req, nil
}

// Timeline returns the request's events in order.
func (s *Service) Timeline(ctx context.Context, actor Actor, id string) ([]Event, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repo.Events(ctx, id)
}

type CancelParams struct {
	RequestID string
	Actor     Actor
	Reason    *string
}

// Cancel moves a request to Canceled. Only its farmer or an admin may cancel.
func (s *Service) Cancel(ctx context.Context, params CancelParams) (Request, error) {
	if params.RequestID == "" {
		return Request{}, fmt.Errorf("servicerequest: cancel missing request id")
	}
	if params.Actor.ID == "" {
		return Request{}, fmt.Errorf("servicerequest: cancel missing actor id")
	}

	var reason *string
	if params.Reason != nil {
		trimmed := strings.TrimSpace(*params.Reason)
		if trimmed != "" {
			reason = &trimmed
		}
	}

	return s.transition(ctx, params.RequestID, params.Actor, requestfilter.StatusCanceled, reason, func(req Request) error {
		switch strings.ToLower(params.Actor.Role) {
		case RoleAdmin:
			return nil
		case RoleFarmer:
			if req.FarmerID == params.Actor.ID {
				return nil
			}
		}
		return ErrForbidden
	})
}

type TransitionParams struct {
	RequestID  string
	Actor      Actor
	NextStatus Status
	Payload    map[string]any
}

// Transition moves a request along the status table. Providers act on
// requests assigned to them; admins on any. Cancellation goes through Cancel.
func (s *Service) Transition(ctx context.Context, params TransitionParams) (Request, error) {
	if !params.NextStatus.Valid() {
		return Request{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, params.NextStatus)
	}
	if params.NextStatus == requestfilter.StatusCanceled {
		return s.Cancel(ctx, CancelParams{RequestID: params.RequestID, Actor: params.Actor})
	}

	return s.transition(ctx, params.RequestID, params.Actor, params.NextStatus, nil, func(req Request) error {
		// Only Accept assigns a provider.
		if params.NextStatus == requestfilter.StatusAccepted && req.ProviderID == nil {
			return fmt.Errorf("%w: request has no provider", ErrInvalidTransition)
		}
		switch strings.ToLower(params.Actor.Role) {
		case RoleAdmin:
			return nil
		case RoleProvider:
			if req.ProviderID != nil && *req.ProviderID == params.Actor.ID && params.NextStatus != requestfilter.StatusPaid {
				return nil
			}
		}
		return ErrForbidden
	}, params.Payload)
}

// Accept lets a provider take a Placed request. A request addressed to a
// specific provider can only be accepted by that provider.
func (s *Service) Accept(ctx context.Context, actor Actor, requestID string) (Request, error) {
	if strings.ToLower(actor.Role) != RoleProvider {
		return Request{}, ErrForbidden
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("servicerequest: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.repo.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return Request{}, err
	}
	if req.ProviderID != nil && *req.ProviderID != actor.ID {
		return Request{}, ErrForbidden
	}
	if req.Status != requestfilter.StatusPlaced {
		return Request{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, requestfilter.StatusAccepted)
	}

	updated, err := s.repo.AssignProvider(ctx, tx, requestID, actor.ID, requestfilter.StatusAccepted)
	if err != nil {
		return Request{}, err
	}
	if err := s.timeline.Append(ctx, tx, requestID, EventRequestAccepted, actor.ID, map[string]any{
		"provider_id":     actor.ID,
		"previous_status": StatusCode(req.Status),
		"next_status":     StatusCode(updated.Status),
	}); err != nil {
		return Request{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, TopicRequestStatusChanged, map[string]any{
		"request_id": requestID,
		"previous":   StatusCode(req.Status),
		"next":       StatusCode(updated.Status),
	}); err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("servicerequest: commit accept: %w", err)
	}

	s.observeTransition(req.Status, updated.Status)
	return updated, nil
}

func (s *Service) transition(ctx context.Context, requestID string, actor Actor, next Status, reason *string, authorize func(Request) error, extra ...map[string]any) (Request, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("servicerequest: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	updated, previous, err := s.transitionTx(ctx, tx, requestID, actor, next, reason, authorize, extra...)
	if err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("servicerequest: commit transition: %w", err)
	}

	s.observeTransition(previous, updated.Status)
	return updated, nil
}

// transitionTx applies a validated status change with its timeline and outbox
// writes inside tx.
func (s *Service) transitionTx(ctx context.Context, tx pgx.Tx, requestID string, actor Actor, next Status, reason *string, authorize func(Request) error, extra ...map[string]any) (Request, Status, error) {
	req, err := s.repo.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return Request{}, "", err
	}
	if authorize != nil {
		if err := authorize(req); err != nil {
			return Request{}, "", err
		}
	}
	if !CanTransition(req.Status, next) {
		return Request{}, "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, next)
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, requestID, next, reason)
	if err != nil {
		return Request{}, "", err
	}

	payload := map[string]any{
		"previous_status": StatusCode(req.Status),
		"next_status":     StatusCode(next),
	}
	for _, m := range extra {
		for k, v := range m {
			payload[k] = v
		}
	}
	if reason != nil {
		payload["reason"] = *reason
	}
	if err := s.timeline.Append(ctx, tx, requestID, EventRequestStatusChanged, actor.ID, payload); err != nil {
		return Request{}, "", err
	}

	topic := TopicRequestStatusChanged
	if next == requestfilter.StatusCanceled {
		topic = TopicRequestCanceled
	}
	if err := s.outbox.Enqueue(ctx, tx, topic, map[string]any{
		"request_id": requestID,
		"previous":   StatusCode(req.Status),
		"next":       StatusCode(next),
	}); err != nil {
		return Request{}, "", err
	}

	return updated, req.Status, nil
}

func (s *Service) observeTransition(from, to Status) {
	if s.metrics != nil {
		s.metrics.StatusChanged(from, to)
	}
	s.logger.Debug("service request status changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

func canView(actor Actor, req Request) bool {
	switch strings.ToLower(actor.Role) {
	case RoleAdmin:
		return true
	case RoleFarmer:
		return req.FarmerID == actor.ID
	case RoleProvider:
		return req.ProviderID == nil || *req.ProviderID == actor.ID
	default:
		return false
	}
}
