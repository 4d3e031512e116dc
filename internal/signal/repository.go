package signal

import "context"

// FeedResult is one page of feed results plus its continuation. Exactly one
// of NextCursor/NextPage is meaningful, matching the query's pagination
// mode; both are zero when no further results exist.
type FeedResult struct {
	Items      []*Signal
	NextCursor string
	NextPage   int
}

// Repository defines persistence for signals.
type Repository interface {
	// Get retrieves a signal by ID. Returns ErrSignalNotFound if absent.
	Get(ctx context.Context, id string) (*Signal, error)

	// FindNearby executes a planned feed query: time-window and status
	// filters, optional spherical radius membership, the query's sort order
	// with full tie-breaks, and cursor or offset pagination.
	FindNearby(ctx context.Context, q *FeedQuery) (*FeedResult, error)

	// Insert persists a new signal.
	Insert(ctx context.Context, s *Signal) error

	// UpdateStatus transitions a signal's status. Returns ErrSignalNotFound
	// if the signal does not exist.
	UpdateStatus(ctx context.Context, id string, status Status) error
}
