// Package signal provides the hazard report domain: feed queries with
// multiple sort and pagination strategies, report creation with severity
// classification, and status transitions.
package signal

import (
	"errors"
	"time"
)

// Domain errors.
var (
	ErrSignalNotFound   = errors.New("signal not found")
	ErrForbidden        = errors.New("not authorized to modify this signal")
	ErrInvalidQuery     = errors.New("invalid feed query")
	ErrMalformedCursor  = errors.New("malformed cursor")
	ErrStoreUnavailable = errors.New("signal store unavailable")
)

// Validation constants.
const (
	MaxTitleLength       = 120
	MaxDescriptionLength = 5000
	MaxCategoryLength    = 64
	MaxAddressLength     = 256

	MinSeverity = 1
	MaxSeverity = 5
)

// Status is the lifecycle state of a signal.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusResolved
}

// Source identifies how a signal entered the system.
type Source string

const (
	SourceUser Source = "user"
	SourceSeed Source = "seed"
	SourceAI   Source = "ai"

	// SourceSynthetic marks degraded-mode placeholder items. It is never
	// written to the store.
	SourceSynthetic Source = "synthetic"
)

// Point is a geographic coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// Location is where a signal was reported, with an optional formatted address.
type Location struct {
	Lat     float64
	Lng     float64
	Address string
}

// Zone is a coarse administrative bucket used for grouping notifications,
// e.g. key "아산시 탕정면" with sub holding the 읍/면/동 part.
type Zone struct {
	Key string
	Sub string
}

// Signal is a reported hazard.
type Signal struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Severity    int // 1 (info) .. 5 (critical)
	Category    string
	Location    Location
	Zone        *Zone
	Tags        []string
	Score       int // recommendation score, maintained outside this package
	Status      Status
	Source      Source

	// DistanceMeters is populated only by distance-ranked queries.
	DistanceMeters float64

	CreatedAt time.Time
	UpdatedAt time.Time
}
