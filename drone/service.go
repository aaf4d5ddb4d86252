package drone

import (
	"context"
	"errors"
)

// ErrInvalidDistance is returned for a negative search radius.
var ErrInvalidDistance = errors.New("drone: invalid distance")

// Service serves the "Buy a Drone" screen.
type Service struct {
	repo Reader
}

func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// Nearby lists available drones within maxDistanceKm; zero means any distance.
// An empty result is returned as a non-nil slice.
func (s *Service) Nearby(ctx context.Context, maxDistanceKm float64) ([]Listing, error) {
	if maxDistanceKm < 0 {
		return nil, ErrInvalidDistance
	}
	listings, err := s.repo.ListAvailable(ctx, maxDistanceKm)
	if err != nil {
		return nil, err
	}
	if listings == nil {
		listings = []Listing{}
	}
	return listings, nil
}
