package subscription

import "context"

// Repository defines persistence for push subscriptions.
type Repository interface {
	// Get retrieves a subscription by ID.
	Get(ctx context.Context, id string) (*Subscription, error)

	// UpsertByEndpoint creates or updates the subscription for an endpoint.
	// Re-registering an existing endpoint updates the stored record and
	// reactivates it rather than creating a duplicate.
	UpsertByEndpoint(ctx context.Context, sub *Subscription) (*Subscription, error)

	// FindCandidatesNear returns active subscriptions whose stored location
	// lies within maxRadiusKM of the point, capped at limit. This is a broad
	// prefilter: each subscriber's personal radius is applied later by the
	// fanout's exact distance check.
	FindCandidatesNear(ctx context.Context, lat, lng, maxRadiusKM float64, limit int) ([]*Subscription, error)

	// Deactivate sets active=false. Used when the push service reports the
	// endpoint permanently gone; there is no separate sweep job.
	Deactivate(ctx context.Context, id string) error
}
