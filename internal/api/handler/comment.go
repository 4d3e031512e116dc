package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/citysignal/citysignal/internal/api/models"
	"github.com/citysignal/citysignal/internal/api/response"
	"github.com/citysignal/citysignal/internal/comment"
	"github.com/citysignal/citysignal/internal/signal"
)

// CommentHandler handles signal comment endpoints.
type CommentHandler struct {
	service *comment.Service
}

// NewCommentHandler creates a new CommentHandler.
func NewCommentHandler(service *comment.Service) *CommentHandler {
	return &CommentHandler{service: service}
}

// List handles GET /v1/signals/{signalId}/comments.
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	signalID := chi.URLParam(r, "signalId")
	if signalID == "" {
		response.BadRequest(w, r, "signalId is required", nil)
		return
	}

	comments, err := h.service.List(r.Context(), signalID, comment.DefaultListLimit)
	if err != nil {
		if errors.Is(err, signal.ErrSignalNotFound) {
			response.NotFound(w, r, "signal not found")
			return
		}
		response.InternalError(w, r, "failed to load comments")
		return
	}

	resp := models.CommentsResponse{Items: make([]models.Comment, 0, len(comments))}
	for _, c := range comments {
		resp.Items = append(resp.Items, toCommentModel(c))
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// Create handles POST /v1/signals/{signalId}/comments.
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	signalID := chi.URLParam(r, "signalId")
	if signalID == "" {
		response.BadRequest(w, r, "signalId is required", nil)
		return
	}

	var input models.CommentCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	c, err := h.service.Create(r.Context(), signalID, GetUserID(r.Context()), input.Content)
	if err != nil {
		var validationErr *comment.ValidationError
		switch {
		case errors.As(err, &validationErr):
			response.BadRequest(w, r, "invalid comment", validationErr.Errors)
		case errors.Is(err, signal.ErrSignalNotFound):
			response.NotFound(w, r, "signal not found")
		default:
			response.InternalError(w, r, "failed to create comment")
		}
		return
	}

	response.Created(w, r, "", toCommentModel(c))
}

func toCommentModel(c *comment.Comment) models.Comment {
	return models.Comment{
		ID:        c.ID,
		SignalID:  c.SignalID,
		AuthorID:  c.AuthorID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
	}
}
