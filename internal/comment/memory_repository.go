package comment

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository implements Repository in memory for testing.
type InMemoryRepository struct {
	mu       sync.RWMutex
	comments []*Comment
}

// NewInMemoryRepository creates an in-memory comment repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// ListBySignal returns the newest comments for a signal.
func (r *InMemoryRepository) ListBySignal(_ context.Context, signalID string, limit int) ([]*Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}

	var matched []*Comment
	for _, c := range r.comments {
		if c.SignalID == signalID {
			copied := *c
			matched = append(matched, &copied)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Insert stores a new comment.
func (r *InMemoryRepository) Insert(_ context.Context, c *Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *c
	r.comments = append(r.comments, &copied)
	return nil
}
