package comment

import "context"

// Repository defines the interface for comment storage.
type Repository interface {
	// ListBySignal returns the newest comments for a signal, most
	// recent first, up to limit.
	ListBySignal(ctx context.Context, signalID string, limit int) ([]*Comment, error)

	// Insert stores a new comment.
	Insert(ctx context.Context, c *Comment) error
}
