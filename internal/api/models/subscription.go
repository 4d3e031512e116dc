package models

import "time"

// SubscriptionKeys holds the Web Push encryption keys for an endpoint.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// SubscriptionRequest is the request body for registering a push
// subscription.
type SubscriptionRequest struct {
	Endpoint string           `json:"endpoint" validate:"required,url"`
	Keys     SubscriptionKeys `json:"keys" validate:"required"`
	Location *Point           `json:"location,omitempty"`
	Zone     *Zone            `json:"zone,omitempty"`
	RadiusKM float64          `json:"radiusKm,omitempty" validate:"omitempty,gt=0"`
}

// SubscriptionResponse confirms a registered subscription.
type SubscriptionResponse struct {
	ID        string    `json:"id"`
	RadiusKM  float64   `json:"radiusKm"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}
