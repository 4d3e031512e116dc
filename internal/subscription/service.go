package subscription

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/citysignal/citysignal/internal/api/models"
)

// Service provides subscription operations.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new subscription service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// UpsertInput is the payload for registering or refreshing a subscription.
type UpsertInput struct {
	OwnerID  string // empty for anonymous subscribers
	Endpoint string
	Keys     Keys
	Location *Point
	Zone     *Zone
	RadiusKM float64 // 0 means DefaultRadiusKM
}

// Upsert registers or refreshes the subscription for an endpoint. The
// operation is idempotent: the endpoint is the key, and re-registering
// updates and reactivates the existing record.
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (*Subscription, error) {
	if fieldErrors := validateUpsert(&input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	radius := input.RadiusKM
	if radius == 0 {
		radius = DefaultRadiusKM
	}

	sub := &Subscription{
		ID:       "sub_" + uuid.New().String()[:22],
		OwnerID:  input.OwnerID,
		Endpoint: input.Endpoint,
		Keys:     input.Keys,
		Location: input.Location,
		Zone:     input.Zone,
		RadiusKM: radius,
	}

	saved, err := s.repo.UpsertByEndpoint(ctx, sub)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("subscription_id", saved.ID).
		Bool("has_location", saved.Location != nil).
		Float64("radius_km", saved.RadiusKM).
		Msg("subscription upserted")

	return saved, nil
}

func validateUpsert(input *UpsertInput) []models.FieldError {
	var errs []models.FieldError

	if input.Endpoint == "" {
		errs = append(errs, models.FieldError{Field: "subscription.endpoint", Message: "is required"})
	}
	if input.Keys.P256dh == "" {
		errs = append(errs, models.FieldError{Field: "subscription.keys.p256dh", Message: "is required"})
	}
	if input.Keys.Auth == "" {
		errs = append(errs, models.FieldError{Field: "subscription.keys.auth", Message: "is required"})
	}
	if input.RadiusKM < 0 {
		errs = append(errs, models.FieldError{Field: "radiusKm", Message: "must be positive"})
	}
	if input.Location != nil {
		if input.Location.Lat < -90 || input.Location.Lat > 90 {
			errs = append(errs, models.FieldError{Field: "lat", Message: "must be between -90 and 90"})
		}
		if input.Location.Lng < -180 || input.Location.Lng > 180 {
			errs = append(errs, models.FieldError{Field: "lng", Message: "must be between -180 and 180"})
		}
	}

	return errs
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
