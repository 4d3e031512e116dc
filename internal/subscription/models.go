// Package subscription manages push notification subscriptions: idempotent
// registration keyed by endpoint, radius-based candidate lookup for
// notification fanout, and deactivation of dead endpoints.
package subscription

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// DefaultRadiusKM is the radius recorded for subscribers who do not choose
// one.
const DefaultRadiusKM = 2.0

// Point is a subscriber's stored coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// Zone mirrors the signal-side administrative bucket recorded at subscribe
// time.
type Zone struct {
	Key string
	Sub string
}

// Keys is the subscription's encryption material. The core never interprets
// it; it is handed verbatim to the push transport.
type Keys struct {
	P256dh string
	Auth   string
}

// Subscription is a registered push endpoint. Endpoint is globally unique
// and serves as the upsert key; OwnerID is empty for anonymous subscribers.
type Subscription struct {
	ID       string
	OwnerID  string
	Endpoint string
	Keys     Keys
	Location *Point
	Zone     *Zone
	RadiusKM float64
	Active   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
