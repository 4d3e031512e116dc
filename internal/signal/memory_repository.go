package signal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/citysignal/citysignal/internal/geo"
)

// InMemoryRepository is an in-memory implementation of Repository with the
// same filter, ordering, and pagination semantics as the Mongo store. It is
// intended for testing.
type InMemoryRepository struct {
	mu      sync.RWMutex
	signals map[string]*Signal

	// failWith, when set, is returned by every operation. Used to exercise
	// degraded-store behavior in tests.
	failWith error
}

// NewInMemoryRepository creates a new in-memory signal repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{signals: make(map[string]*Signal)}
}

// FailWith makes every subsequent operation return err (nil restores
// normal operation).
func (r *InMemoryRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

// Get retrieves a signal by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.failWith != nil {
		return nil, r.failWith
	}
	s, ok := r.signals[id]
	if !ok {
		return nil, ErrSignalNotFound
	}
	cpy := *s
	return &cpy, nil
}

// FindNearby executes a planned feed query against the in-memory set.
func (r *InMemoryRepository) FindNearby(_ context.Context, q *FeedQuery) (*FeedResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.failWith != nil {
		return nil, r.failWith
	}

	since := time.Now().Add(-time.Duration(q.WindowDays) * 24 * time.Hour)
	maxMeters := geo.Meters(q.RadiusKM)

	var items []*Signal
	for _, s := range r.signals {
		if s.Status == StatusResolved || s.CreatedAt.Before(since) {
			continue
		}
		cpy := *s
		if !q.Global {
			d := geo.HaversineMeters(q.Center.Lat, q.Center.Lng, s.Location.Lat, s.Location.Lng)
			if d > maxMeters {
				continue
			}
			cpy.DistanceMeters = d
		}
		items = append(items, &cpy)
	}

	if c := q.Page.Cursor; c != nil {
		items = filterAfterCursor(q.Sort, c, items)
	}

	sort.Slice(items, lessFor(q.Sort, items))

	if q.Page.Mode == PaginateOffset {
		skip := (q.Page.Page - 1) * q.Page.PageSize
		if skip >= len(items) {
			return &FeedResult{}, nil
		}
		items = items[skip:]
		result := &FeedResult{Items: items}
		if len(items) > q.Page.PageSize {
			result.Items = items[:q.Page.PageSize]
			result.NextPage = q.Page.Page + 1
		}
		return result, nil
	}

	result := &FeedResult{Items: items}
	if len(items) > q.Limit {
		result.Items = items[:q.Limit]
		result.NextCursor = EncodeCursor(q.Sort, items[q.Limit-1])
	}
	return result, nil
}

// filterAfterCursor keeps items strictly after the cursor position in the
// mode's descending order.
func filterAfterCursor(mode SortMode, c *Cursor, items []*Signal) []*Signal {
	afterTime := func(s *Signal) bool {
		if s.CreatedAt.Before(c.CreatedAt) {
			return true
		}
		return s.CreatedAt.Equal(c.CreatedAt) && s.ID < c.ID
	}

	var out []*Signal
	for _, s := range items {
		keep := false
		if mode == SortSeverity && c.HasSeverity {
			keep = s.Severity < c.Severity || (s.Severity == c.Severity && afterTime(s))
		} else {
			keep = afterTime(s)
		}
		if keep {
			out = append(out, s)
		}
	}
	return out
}

// lessFor returns the sort.Slice comparison implementing the mode's full
// tie-break chain.
func lessFor(mode SortMode, items []*Signal) func(i, j int) bool {
	timeLess := func(a, b *Signal) (bool, bool) {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt), true
		}
		if a.ID != b.ID {
			return a.ID > b.ID, true
		}
		return false, false
	}

	return func(i, j int) bool {
		a, b := items[i], items[j]
		switch mode {
		case SortSeverity, SortMixed:
			if a.Severity != b.Severity {
				return a.Severity > b.Severity
			}
		case SortRecommended:
			if a.Score != b.Score {
				return a.Score > b.Score
			}
		case SortDistance:
			if a.DistanceMeters != b.DistanceMeters {
				return a.DistanceMeters < b.DistanceMeters
			}
		case SortSeverityDistance:
			if a.Severity != b.Severity {
				return a.Severity > b.Severity
			}
			if a.DistanceMeters != b.DistanceMeters {
				return a.DistanceMeters < b.DistanceMeters
			}
		}
		less, decided := timeLess(a, b)
		return decided && less
	}
}

// Insert persists a new signal.
func (r *InMemoryRepository) Insert(_ context.Context, s *Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWith != nil {
		return r.failWith
	}
	cpy := *s
	r.signals[s.ID] = &cpy
	return nil
}

// UpdateStatus transitions a signal's status.
func (r *InMemoryRepository) UpdateStatus(_ context.Context, id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWith != nil {
		return r.failWith
	}
	s, ok := r.signals[id]
	if !ok {
		return ErrSignalNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return nil
}

// Ensure InMemoryRepository implements Repository.
var _ Repository = (*InMemoryRepository)(nil)
