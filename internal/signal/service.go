package signal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/citysignal/citysignal/internal/api/models"
	"github.com/citysignal/citysignal/internal/notify"
)

// Default feed center used by the degraded fallback when the request
// carries no center of its own (global feeds).
const (
	fallbackCenterLat = 37.5665
	fallbackCenterLng = 126.9780
)

// Classifier assigns a severity level to free-form report text.
type Classifier interface {
	Classify(ctx context.Context, text string) (int, error)
}

// Notifier delivers an alert to nearby subscribers and reports the
// per-recipient outcomes.
type Notifier interface {
	Notify(ctx context.Context, alert notify.Alert) []notify.Result
}

// AsyncPublisher hands fanout work to a background worker instead of
// running it inline.
type AsyncPublisher interface {
	PublishFanout(ctx context.Context, signalID string) error
}

// SyntheticSource produces placeholder feed items when the store is
// unreachable.
type SyntheticSource interface {
	Generate(center Point, radiusKM float64, windowDays int) []*Signal
}

// ServiceConfig holds the dependencies for the signal service.
type ServiceConfig struct {
	Repo       Repository
	Classifier Classifier
	Notifier   Notifier
	Async      AsyncPublisher // optional; when set, fanout is queued instead of inline
	Synthetic  SyntheticSource
	// DegradedFallback serves synthetic items when the store is
	// unavailable instead of surfacing the error.
	DegradedFallback bool
	Logger           zerolog.Logger
}

// Service provides signal operations.
type Service struct {
	repo       Repository
	classifier Classifier
	notifier   Notifier
	async      AsyncPublisher
	synthetic  SyntheticSource
	degraded   bool
	logger     zerolog.Logger
}

// NewService creates a new signal service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:       cfg.Repo,
		classifier: cfg.Classifier,
		notifier:   cfg.Notifier,
		async:      cfg.Async,
		synthetic:  cfg.Synthetic,
		degraded:   cfg.DegradedFallback,
		logger:     cfg.Logger,
	}
}

// FeedPage is one page of the signal feed.
type FeedPage struct {
	Items      []*Signal
	NextCursor string
	NextPage   int
	Degraded   bool
}

// Feed plans and executes a feed query. When the store is unreachable
// and the degraded fallback is enabled, it serves synthetic items
// flagged as degraded rather than failing the request.
func (s *Service) Feed(ctx context.Context, params FeedParams) (*FeedPage, error) {
	q, err := PlanFeedQuery(params)
	if err != nil {
		return nil, err
	}

	result, err := s.repo.FindNearby(ctx, q)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) && s.degraded && s.synthetic != nil {
			return s.degradedPage(q), nil
		}
		return nil, err
	}

	return &FeedPage{
		Items:      result.Items,
		NextCursor: result.NextCursor,
		NextPage:   result.NextPage,
	}, nil
}

func (s *Service) degradedPage(q *FeedQuery) *FeedPage {
	center := Point{Lat: fallbackCenterLat, Lng: fallbackCenterLng}
	if q.Center != nil {
		center = *q.Center
	}

	items := s.synthetic.Generate(center, q.RadiusKM, q.WindowDays)
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}

	s.logger.Warn().
		Int("count", len(items)).
		Msg("store unavailable, serving synthetic feed")

	return &FeedPage{Items: items, Degraded: true}
}

// Get retrieves a single signal by ID.
func (s *Service) Get(ctx context.Context, id string) (*Signal, error) {
	return s.repo.Get(ctx, id)
}

// Exists reports whether a signal exists, returning ErrSignalNotFound
// when it does not.
func (s *Service) Exists(ctx context.Context, id string) error {
	_, err := s.repo.Get(ctx, id)
	return err
}

// CreateInput is the payload for reporting a new signal.
type CreateInput struct {
	Title       string
	Description string
	Category    string
	Address     string
	Lat         float64
	Lng         float64
	Zone        *Zone
	Severity    int // 0 means classify from text
	Tags        []string
}

// Create validates and persists a new signal report, classifying its
// severity when the reporter did not supply one, then fans out a push
// alert to nearby subscribers. Fanout failures never fail the create.
func (s *Service) Create(ctx context.Context, ownerID string, input CreateInput) (*Signal, []notify.Result, error) {
	if fieldErrors := validateCreateInput(&input); len(fieldErrors) > 0 {
		return nil, nil, &ValidationError{Errors: fieldErrors}
	}

	severity := input.Severity
	if severity == 0 {
		severity = s.classify(ctx, input.Title, input.Description)
	}

	now := time.Now()
	sig := &Signal{
		ID:          "sig_" + uuid.New().String()[:22],
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Severity:    severity,
		Category:    input.Category,
		Location: Location{
			Lat:     input.Lat,
			Lng:     input.Lng,
			Address: input.Address,
		},
		Zone:      input.Zone,
		Tags:      input.Tags,
		Status:    StatusActive,
		Source:    SourceUser,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, sig); err != nil {
		return nil, nil, err
	}

	s.logger.Info().
		Str("signal_id", sig.ID).
		Int("severity", sig.Severity).
		Str("category", sig.Category).
		Msg("signal created")

	results := s.fanout(ctx, sig)
	return sig, results, nil
}

func (s *Service) classify(ctx context.Context, title, description string) int {
	if s.classifier == nil {
		return MinSeverity
	}

	text := title
	if description != "" {
		text += "\n" + description
	}

	level, err := s.classifier.Classify(ctx, text)
	if err != nil {
		s.logger.Warn().Err(err).Msg("severity classification failed, defaulting to minimum")
		return MinSeverity
	}
	if level < MinSeverity || level > MaxSeverity {
		return MinSeverity
	}
	return level
}

func (s *Service) fanout(ctx context.Context, sig *Signal) []notify.Result {
	if s.async != nil {
		if err := s.async.PublishFanout(ctx, sig.ID); err != nil {
			s.logger.Error().Err(err).Str("signal_id", sig.ID).Msg("failed to queue fanout")
		}
		return nil
	}
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Notify(ctx, AlertFor(sig))
}

// AlertFor builds the push alert for a signal.
func AlertFor(sig *Signal) notify.Alert {
	alert := notify.Alert{
		SignalID:  sig.ID,
		Title:     sig.Title,
		Body:      fmt.Sprintf("위험도 %d단계", sig.Severity),
		Level:     sig.Severity,
		Address:   sig.Location.Address,
		Lat:       sig.Location.Lat,
		Lng:       sig.Location.Lng,
		CreatedAt: sig.CreatedAt,
	}
	if sig.Location.Address != "" {
		alert.Body += " · " + sig.Location.Address
	}
	if sig.Zone != nil {
		alert.ZoneKey = sig.Zone.Key
	}
	return alert
}

// SetStatus transitions a signal's lifecycle status. Only the owner may
// change it.
func (s *Service) SetStatus(ctx context.Context, id, callerID string, status Status) (*Signal, error) {
	if !status.Valid() {
		return nil, &ValidationError{Errors: []models.FieldError{
			{Field: "status", Message: "must be one of: active, resolved"},
		}}
	}

	sig, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sig.OwnerID == "" || sig.OwnerID != callerID {
		return nil, ErrForbidden
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("signal_id", id).
		Str("status", string(status)).
		Msg("signal status changed")

	return s.repo.Get(ctx, id)
}

func validateCreateInput(input *CreateInput) []models.FieldError {
	var errs []models.FieldError

	// Limits count characters, not bytes. Korean text is 3 bytes per
	// rune in UTF-8, so byte limits would reject normal-length titles.
	title := strings.TrimSpace(input.Title)
	if title == "" {
		errs = append(errs, models.FieldError{Field: "title", Message: "is required"})
	} else if utf8.RuneCountInString(title) > MaxTitleLength {
		errs = append(errs, models.FieldError{Field: "title", Message: fmt.Sprintf("must be at most %d characters", MaxTitleLength)})
	}
	if utf8.RuneCountInString(input.Description) > MaxDescriptionLength {
		errs = append(errs, models.FieldError{Field: "description", Message: fmt.Sprintf("must be at most %d characters", MaxDescriptionLength)})
	}
	if utf8.RuneCountInString(input.Category) > MaxCategoryLength {
		errs = append(errs, models.FieldError{Field: "category", Message: fmt.Sprintf("must be at most %d characters", MaxCategoryLength)})
	}
	if utf8.RuneCountInString(input.Address) > MaxAddressLength {
		errs = append(errs, models.FieldError{Field: "address", Message: fmt.Sprintf("must be at most %d characters", MaxAddressLength)})
	}
	if input.Lat < -90 || input.Lat > 90 {
		errs = append(errs, models.FieldError{Field: "lat", Message: "must be between -90 and 90"})
	}
	if input.Lng < -180 || input.Lng > 180 {
		errs = append(errs, models.FieldError{Field: "lng", Message: "must be between -180 and 180"})
	}
	if input.Severity != 0 && (input.Severity < MinSeverity || input.Severity > MaxSeverity) {
		errs = append(errs, models.FieldError{Field: "severity", Message: fmt.Sprintf("must be between %d and %d", MinSeverity, MaxSeverity)})
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
