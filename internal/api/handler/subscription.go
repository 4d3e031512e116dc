package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/citysignal/citysignal/internal/api/models"
	"github.com/citysignal/citysignal/internal/api/response"
	"github.com/citysignal/citysignal/internal/subscription"
)

// SubscriptionHandler handles push subscription endpoints.
type SubscriptionHandler struct {
	service *subscription.Service
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(service *subscription.Service) *SubscriptionHandler {
	return &SubscriptionHandler{service: service}
}

// Upsert handles POST /v1/push/subscriptions - register or refresh a
// push subscription. Registration is idempotent per endpoint.
func (h *SubscriptionHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var input models.SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	upsert := subscription.UpsertInput{
		OwnerID:  GetUserID(r.Context()),
		Endpoint: input.Endpoint,
		Keys: subscription.Keys{
			P256dh: input.Keys.P256dh,
			Auth:   input.Keys.Auth,
		},
		RadiusKM: input.RadiusKM,
	}
	if input.Location != nil {
		upsert.Location = &subscription.Point{Lat: input.Location.Lat, Lng: input.Location.Lng}
	}
	if input.Zone != nil {
		upsert.Zone = &subscription.Zone{Key: input.Zone.Key, Sub: input.Zone.Sub}
	}

	sub, err := h.service.Upsert(r.Context(), upsert)
	if err != nil {
		var validationErr *subscription.ValidationError
		if errors.As(err, &validationErr) {
			response.BadRequest(w, r, "invalid subscription", validationErr.Errors)
			return
		}
		response.InternalError(w, r, "failed to register subscription")
		return
	}

	response.JSON(w, r, http.StatusOK, models.SubscriptionResponse{
		ID:        sub.ID,
		RadiusKM:  sub.RadiusKM,
		Active:    sub.Active,
		CreatedAt: sub.CreatedAt,
	})
}
