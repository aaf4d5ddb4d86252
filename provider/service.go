package provider

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"agriflow/cache"
)

// ProfileReader abstracts repository operations for the service.
type ProfileReader interface {
	GetByID(ctx context.Context, id string) (Profile, error)
	List(ctx context.Context, params ListParams) ([]Profile, error)
}

// Service exposes business-level provider operations.
type Service struct {
	repo   ProfileReader
	cache  *cache.JSON
	logger *zap.Logger
}

// NewService builds a Service using the provided repository. cache may be nil.
func NewService(repo ProfileReader, c *cache.JSON, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, cache: c, logger: logger}
}

// GetByID returns the provider profile for the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns providers matching params, served from cache when possible.
// Cache failures fall back to the repository.
func (s *Service) List(ctx context.Context, params ListParams) ([]Profile, error) {
	if s.cache == nil {
		return s.repo.List(ctx, params)
	}

	key := s.cache.Key("providers",
		strings.ToLower(strings.TrimSpace(params.Search)),
		strings.ToLower(strings.TrimSpace(params.Service)),
		strconv.Itoa(params.Limit),
	)

	var cached []Profile
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("provider cache read failed", zap.String("key", key), zap.Error(err))
	}

	profiles, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, profiles); err != nil {
		s.logger.Warn("provider cache write failed", zap.String("key", key), zap.Error(err))
	}
	return profiles, nil
}
