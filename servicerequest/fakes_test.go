package servicerequest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakePool struct {
	txs []*fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakePool) last() *fakeTx {
	if len(f.txs) == 0 {
		return nil
	}
	return f.txs[len(f.txs)-1]
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}

// fakeRepository keeps requests in memory. Writes apply immediately; the
// tests only assert on committed paths.
type fakeRepository struct {
	mu        sync.Mutex
	requests  map[string]Request
	events    map[string][]Event
	providers map[string]bool
	lastList  Filters
	nextID    int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		requests:  make(map[string]Request),
		events:    make(map[string][]Event),
		providers: map[string]bool{"provider-1": true, "provider-2": true},
	}
}

func (f *fakeRepository) ProviderExists(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providers[id], nil
}

func (f *fakeRepository) Create(ctx context.Context, tx pgx.Tx, req Request) (Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if req.ID == "" {
		f.nextID++
		req.ID = fmt.Sprintf("req-%d", f.nextID)
	}
	now := time.Now().UTC()
	req.CreatedAt, req.UpdatedAt = now, now
	f.requests[req.ID] = req
	return req, nil
}

func (f *fakeRepository) List(ctx context.Context, filters Filters) ([]Request, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastList = filters
	out := []Request{}
	for _, req := range f.requests {
		if filters.FarmerID != "" && req.FarmerID != filters.FarmerID {
			continue
		}
		if filters.ProviderID != "" && (req.ProviderID == nil || *req.ProviderID != filters.ProviderID) {
			continue
		}
		if filters.Unassigned && req.ProviderID != nil {
			continue
		}
		if rng := filters.Query.Range; rng != nil && !rng.Contains(req.ScheduledOn) {
			continue
		}
		if len(filters.Query.Statuses) > 0 {
			match := false
			for _, s := range filters.Query.Statuses {
				if s == req.Status {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, req)
	}
	return out, len(out), nil
}

func (f *fakeRepository) Get(ctx context.Context, id string) (Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (f *fakeRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error) {
	return f.Get(ctx, id)
}

func (f *fakeRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status, cancelReason *string) (Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	req.Status = status
	if cancelReason != nil {
		req.CancelReason = cancelReason
	}
	req.UpdatedAt = time.Now().UTC()
	f.requests[id] = req
	return req, nil
}

func (f *fakeRepository) AssignProvider(ctx context.Context, tx pgx.Tx, id string, providerID string, status Status) (Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	req.ProviderID = &providerID
	req.Status = status
	f.requests[id] = req
	return req, nil
}

func (f *fakeRepository) Events(ctx context.Context, id string) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[id], nil
}

type recordedEvent struct {
	requestID string
	eventType string
	actorID   string
	payload   map[string]any
}

type fakeTimeline struct {
	repo   *fakeRepository
	events []recordedEvent
}

func (f *fakeTimeline) Append(ctx context.Context, tx pgx.Tx, requestID string, eventType string, actorID string, payload map[string]any) error {
	f.events = append(f.events, recordedEvent{requestID: requestID, eventType: eventType, actorID: actorID, payload: payload})
	if f.repo != nil {
		f.repo.mu.Lock()
		seq := len(f.repo.events[requestID]) + 1
		f.repo.events[requestID] = append(f.repo.events[requestID], Event{RequestID: requestID, Seq: seq, Type: eventType})
		f.repo.mu.Unlock()
	}
	return nil
}

type fakeOutbox struct {
	topics []string
}

func (f *fakeOutbox) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	f.topics = append(f.topics, topic)
	return nil
}

type fakeMetrics struct {
	placed      int
	transitions []string
}

func (f *fakeMetrics) RequestPlaced(string) {
	f.placed++
}

func (f *fakeMetrics) StatusChanged(from, to Status) {
	f.transitions = append(f.transitions, string(from)+"->"+string(to))
}
