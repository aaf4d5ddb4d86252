package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"agriflow/cache"
)

type stubRepo struct {
	profiles  []Profile
	listCalls int
	err       error
}

func (s *stubRepo) GetByID(_ context.Context, id string) (Profile, error) {
	for _, p := range s.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return Profile{}, ErrNotFound
}

func (s *stubRepo) List(_ context.Context, params ListParams) ([]Profile, error) {
	s.listCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.profiles, nil
}

type mapStore struct {
	data   map[string][]byte
	getErr error
}

func (m *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	b, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return b, nil
}

func (m *mapStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *mapStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func bluemeet() Profile {
	return Profile{
		ID:       "p1",
		Name:     "BlueMeet Spraying Services",
		Location: "Clearwater, Minnesota",
		Services: []string{"spraying"},
		Verified: true,
	}
}

func TestService_ListCachesResults(t *testing.T) {
	repo := &stubRepo{profiles: []Profile{bluemeet()}}
	store := &mapStore{data: map[string][]byte{}}
	svc := NewService(repo, cache.NewJSON(store, "test", time.Minute), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := svc.List(ctx, ListParams{Service: "Spraying", Limit: 10})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 1 || got[0].Name != "BlueMeet Spraying Services" {
			t.Fatalf("unexpected profiles %+v", got)
		}
	}
	if repo.listCalls != 1 {
		t.Fatalf("expected one repository call, got %d", repo.listCalls)
	}
	if _, ok := store.data["test:providers::spraying:10"]; !ok {
		t.Fatalf("expected cache entry, have %v", store.data)
	}
}

func TestService_ListCacheFailureFallsBack(t *testing.T) {
	repo := &stubRepo{profiles: []Profile{bluemeet()}}
	store := &mapStore{data: map[string][]byte{}, getErr: errors.New("connection refused")}
	svc := NewService(repo, cache.NewJSON(store, "", time.Minute), nil)

	got, err := svc.List(context.Background(), ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || repo.listCalls != 1 {
		t.Fatalf("expected repository fallback, got %d profiles and %d calls", len(got), repo.listCalls)
	}
}

func TestService_ListWithoutCache(t *testing.T) {
	repo := &stubRepo{err: errors.New("boom")}
	svc := NewService(repo, nil, nil)
	if _, err := svc.List(context.Background(), ListParams{}); err == nil {
		t.Fatal("expected repository error")
	}
}

func TestService_GetByID(t *testing.T) {
	svc := NewService(&stubRepo{profiles: []Profile{bluemeet()}}, nil, nil)
	if _, err := svc.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	p, err := svc.GetByID(context.Background(), "p1")
	if err != nil || p.Initial() != "B" {
		t.Fatalf("unexpected profile %+v (%v)", p, err)
	}
}
