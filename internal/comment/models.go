// Package comment provides threaded discussion on signals.
package comment

import (
	"errors"
	"time"
)

// ErrCommentNotFound is returned when a comment does not exist.
var ErrCommentNotFound = errors.New("comment not found")

// MaxContentLength is the maximum comment length in bytes.
const MaxContentLength = 1000

// DefaultListLimit caps how many comments a single list call returns.
const DefaultListLimit = 50

// Comment is a single remark on a signal.
type Comment struct {
	ID        string    `json:"id"`
	SignalID  string    `json:"signalId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
