package models

import "time"

// Comment represents a remark on a signal.
type Comment struct {
	ID        string    `json:"id"`
	SignalID  string    `json:"signalId"`
	AuthorID  string    `json:"authorId,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentCreateRequest is the request body for posting a comment.
type CommentCreateRequest struct {
	Content string `json:"content" validate:"required,min=1,max=1000"`
}

// CommentsResponse is a list of comments on a signal.
type CommentsResponse struct {
	Items []Comment `json:"items"`
}
