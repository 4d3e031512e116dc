// Package handler provides HTTP handlers for the CitySignal API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/citysignal/citysignal/internal/api/models"
	"github.com/citysignal/citysignal/internal/api/response"
	"github.com/citysignal/citysignal/internal/notify"
	"github.com/citysignal/citysignal/internal/signal"
)

// SignalHandler handles signal feed and report endpoints.
type SignalHandler struct {
	service *signal.Service
}

// NewSignalHandler creates a new SignalHandler.
func NewSignalHandler(service *signal.Service) *SignalHandler {
	return &SignalHandler{service: service}
}

// Feed handles GET /v1/signals - the proximity feed.
func (h *SignalHandler) Feed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := signal.FeedParams{
		Lat:      q.Get("lat"),
		Lng:      q.Get("lng"),
		RadiusKM: q.Get("radiusKm"),
		Days:     q.Get("days"),
		Limit:    q.Get("limit"),
		Sort:     q.Get("sort"),
		Cursor:   q.Get("cursor"),
		Page:     q.Get("page"),
		PageSize: q.Get("pageSize"),
		Global:   q.Get("global") == "true" || q.Get("global") == "1",
	}

	page, err := h.service.Feed(r.Context(), params)
	if err != nil {
		switch {
		case errors.Is(err, signal.ErrMalformedCursor):
			response.BadRequest(w, r, "malformed cursor", nil)
		case errors.Is(err, signal.ErrInvalidQuery):
			response.BadRequest(w, r, err.Error(), nil)
		case errors.Is(err, signal.ErrStoreUnavailable):
			response.ServiceUnavailable(w, r, "signal store is unavailable")
		default:
			response.InternalError(w, r, "failed to load feed")
		}
		return
	}

	resp := models.FeedResponse{
		Items:    make([]models.Signal, 0, len(page.Items)),
		Degraded: page.Degraded,
	}
	for _, sig := range page.Items {
		resp.Items = append(resp.Items, toSignalModel(sig))
	}
	if page.NextCursor != "" {
		resp.NextCursor = &page.NextCursor
	}
	if page.NextPage > 0 {
		resp.NextPage = &page.NextPage
	}
	if page.Degraded {
		resp.Source = "synthetic"
	}

	response.JSON(w, r, http.StatusOK, resp)
}

// Get handles GET /v1/signals/{signalId}.
func (h *SignalHandler) Get(w http.ResponseWriter, r *http.Request) {
	signalID := chi.URLParam(r, "signalId")
	if signalID == "" {
		response.BadRequest(w, r, "signalId is required", nil)
		return
	}

	sig, err := h.service.Get(r.Context(), signalID)
	if err != nil {
		if errors.Is(err, signal.ErrSignalNotFound) {
			response.NotFound(w, r, "signal not found")
			return
		}
		response.InternalError(w, r, "failed to load signal")
		return
	}

	response.JSON(w, r, http.StatusOK, toSignalModel(sig))
}

// Create handles POST /v1/signals - report a new hazard.
func (h *SignalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input models.SignalCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	sig, notified, err := h.service.Create(r.Context(), GetUserID(r.Context()), signal.CreateInput{
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Address:     input.Address,
		Lat:         input.Lat,
		Lng:         input.Lng,
		Zone:        toZone(input.Zone),
		Severity:    input.Severity,
		Tags:        input.Tags,
	})
	if err != nil {
		var validationErr *signal.ValidationError
		if errors.As(err, &validationErr) {
			response.BadRequest(w, r, "invalid signal", validationErr.Errors)
			return
		}
		response.InternalError(w, r, "failed to create signal")
		return
	}

	resp := models.SignalCreateResponse{
		Signal:   toSignalModel(sig),
		Notified: toNotifiedModels(notified),
	}
	response.Created(w, r, fmt.Sprintf("/v1/signals/%s", sig.ID), resp)
}

// SetStatus handles POST /v1/signals/{signalId}/status - owner-only
// lifecycle transition.
func (h *SignalHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	signalID := chi.URLParam(r, "signalId")
	if signalID == "" {
		response.BadRequest(w, r, "signalId is required", nil)
		return
	}

	var input models.SignalStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	sig, err := h.service.SetStatus(r.Context(), signalID, GetUserID(r.Context()), signal.Status(input.Status))
	if err != nil {
		var validationErr *signal.ValidationError
		switch {
		case errors.As(err, &validationErr):
			response.BadRequest(w, r, "invalid status", validationErr.Errors)
		case errors.Is(err, signal.ErrSignalNotFound):
			response.NotFound(w, r, "signal not found")
		case errors.Is(err, signal.ErrForbidden):
			response.Forbidden(w, r, "only the reporter can change a signal's status")
		default:
			response.InternalError(w, r, "failed to update signal status")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, toSignalModel(sig))
}

// Vote handles POST /v1/signals/{signalId}/vote. Voting has been
// retired; scores are maintained by the ranking pipeline.
func (h *SignalHandler) Vote(w http.ResponseWriter, r *http.Request) {
	response.Gone(w, r, "voting has been retired; signal scores are maintained automatically")
}

func toSignalModel(sig *signal.Signal) models.Signal {
	m := models.Signal{
		ID:          sig.ID,
		Title:       sig.Title,
		Description: sig.Description,
		Severity:    sig.Severity,
		Category:    sig.Category,
		Location: models.SignalLocation{
			Lat:     sig.Location.Lat,
			Lng:     sig.Location.Lng,
			Address: sig.Location.Address,
		},
		Tags:      sig.Tags,
		Score:     sig.Score,
		Status:    string(sig.Status),
		Source:    string(sig.Source),
		CreatedAt: sig.CreatedAt,
		UpdatedAt: sig.UpdatedAt,
	}
	if sig.DistanceMeters > 0 {
		d := sig.DistanceMeters
		m.DistanceMeters = &d
	}
	if sig.Zone != nil {
		m.Zone = &models.Zone{Key: sig.Zone.Key, Sub: sig.Zone.Sub}
	}
	return m
}

func toZone(z *models.Zone) *signal.Zone {
	if z == nil {
		return nil
	}
	return &signal.Zone{Key: z.Key, Sub: z.Sub}
}

func toNotifiedModels(results []notify.Result) []models.NotifiedResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]models.NotifiedResult, 0, len(results))
	for _, res := range results {
		out = append(out, models.NotifiedResult{
			RecipientID: res.RecipientID,
			OK:          res.OK,
			Gone:        res.Gone,
			Skipped:     res.Skipped,
			Error:       res.Error,
		})
	}
	return out
}
