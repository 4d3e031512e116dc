package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/citysignal/citysignal/internal/geo"
)

// InMemoryRepository is an in-memory implementation of Repository. This is
// intended for testing.
type InMemoryRepository struct {
	mu   sync.RWMutex
	subs map[string]*Subscription // keyed by ID
}

// NewInMemoryRepository creates a new in-memory subscription repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{subs: make(map[string]*Subscription)}
}

// Get retrieves a subscription by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cpy := *s
	return &cpy, nil
}

// UpsertByEndpoint creates or updates the subscription for an endpoint.
func (r *InMemoryRepository) UpsertByEndpoint(_ context.Context, sub *Subscription) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, existing := range r.subs {
		if existing.Endpoint == sub.Endpoint {
			existing.Keys = sub.Keys
			existing.RadiusKM = sub.RadiusKM
			existing.Active = true
			existing.UpdatedAt = now
			if sub.OwnerID != "" {
				existing.OwnerID = sub.OwnerID
			}
			if sub.Location != nil {
				loc := *sub.Location
				existing.Location = &loc
			}
			if sub.Zone != nil {
				zone := *sub.Zone
				existing.Zone = &zone
			}
			cpy := *existing
			return &cpy, nil
		}
	}

	cpy := *sub
	cpy.Active = true
	cpy.CreatedAt = now
	cpy.UpdatedAt = now
	r.subs[sub.ID] = &cpy

	out := cpy
	return &out, nil
}

// FindCandidatesNear returns active subscriptions stored within maxRadiusKM
// of the point, nearest first.
func (r *InMemoryRepository) FindCandidatesNear(_ context.Context, lat, lng, maxRadiusKM float64, limit int) ([]*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	maxMeters := geo.Meters(maxRadiusKM)

	type candidate struct {
		sub  *Subscription
		dist float64
	}
	var candidates []candidate
	for _, s := range r.subs {
		if !s.Active || s.Location == nil {
			continue
		}
		d := geo.HaversineMeters(lat, lng, s.Location.Lat, s.Location.Lng)
		if d > maxMeters {
			continue
		}
		cpy := *s
		candidates = append(candidates, candidate{sub: &cpy, dist: d})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].dist < candidates[j].dist
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	subs := make([]*Subscription, 0, len(candidates))
	for _, c := range candidates {
		subs = append(subs, c.sub)
	}
	return subs, nil
}

// Deactivate sets active=false.
func (r *InMemoryRepository) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	s.Active = false
	s.UpdatedAt = time.Now()
	return nil
}

// Ensure InMemoryRepository implements Repository.
var _ Repository = (*InMemoryRepository)(nil)
