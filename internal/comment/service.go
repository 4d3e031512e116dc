package comment

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/citysignal/citysignal/internal/api/models"
)

// SignalChecker verifies that a signal exists before accepting comments
// on it.
type SignalChecker interface {
	Exists(ctx context.Context, signalID string) error
}

// Service provides comment operations.
type Service struct {
	repo    Repository
	signals SignalChecker
}

// NewService creates a new comment service.
func NewService(repo Repository, signals SignalChecker) *Service {
	return &Service{repo: repo, signals: signals}
}

// List returns the newest comments on a signal.
func (s *Service) List(ctx context.Context, signalID string, limit int) ([]*Comment, error) {
	if err := s.signals.Exists(ctx, signalID); err != nil {
		return nil, err
	}
	return s.repo.ListBySignal(ctx, signalID, limit)
}

// Create validates and stores a new comment on a signal.
func (s *Service) Create(ctx context.Context, signalID, authorID, content string) (*Comment, error) {
	content = strings.TrimSpace(content)
	if fieldErrors := validateContent(content); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	if err := s.signals.Exists(ctx, signalID); err != nil {
		return nil, err
	}

	c := &Comment{
		ID:        "cmt_" + uuid.New().String()[:22],
		SignalID:  signalID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func validateContent(content string) []models.FieldError {
	var errs []models.FieldError
	if content == "" {
		errs = append(errs, models.FieldError{Field: "content", Message: "is required"})
	} else if utf8.RuneCountInString(content) > MaxContentLength {
		errs = append(errs, models.FieldError{Field: "content", Message: fmt.Sprintf("must be at most %d characters", MaxContentLength)})
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
