package models

import "time"

// SignalLocation represents where a signal was reported.
type SignalLocation struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Signal represents a hazard report.
type Signal struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Severity       int            `json:"severity"`
	Category       string         `json:"category,omitempty"`
	Location       SignalLocation `json:"location"`
	Zone           *Zone          `json:"zone,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Score          int            `json:"score"`
	Status         string         `json:"status"`
	Source         string         `json:"source"`
	DistanceMeters *float64       `json:"distanceMeters,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// SignalCreateRequest is the request body for reporting a signal.
type SignalCreateRequest struct {
	Title       string   `json:"title" validate:"required,min=1,max=120"`
	Description string   `json:"description,omitempty" validate:"omitempty,max=5000"`
	Category    string   `json:"category,omitempty" validate:"omitempty,max=64"`
	Address     string   `json:"address,omitempty" validate:"omitempty,max=256"`
	Lat         float64  `json:"lat" validate:"gte=-90,lte=90"`
	Lng         float64  `json:"lng" validate:"gte=-180,lte=180"`
	Zone        *Zone    `json:"zone,omitempty"`
	Severity    int      `json:"severity,omitempty" validate:"omitempty,gte=1,lte=5"`
	Tags        []string `json:"tags,omitempty"`
}

// SignalStatusRequest is the request body for changing a signal's status.
type SignalStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active resolved"`
}

// FeedResponse is one page of the signal feed.
type FeedResponse struct {
	Items      []Signal `json:"items"`
	NextCursor *string  `json:"nextCursor,omitempty"`
	NextPage   *int     `json:"nextPage,omitempty"`
	Degraded   bool     `json:"degraded,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// SignalCreateResponse wraps a created signal with its fanout outcomes.
type SignalCreateResponse struct {
	Signal   Signal           `json:"signal"`
	Notified []NotifiedResult `json:"notified,omitempty"`
}

// NotifiedResult is the delivery outcome for one push recipient.
type NotifiedResult struct {
	RecipientID string `json:"recipientId"`
	OK          bool   `json:"ok"`
	Gone        bool   `json:"gone,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
	Error       string `json:"error,omitempty"`
}
