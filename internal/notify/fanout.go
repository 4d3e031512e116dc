package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/citysignal/citysignal/internal/geo"
	"github.com/citysignal/citysignal/internal/subscription"
)

// Fanout defaults.
const (
	// DefaultBatchSize bounds concurrent in-flight dispatches. Batches are
	// processed sequentially; within a batch dispatches run concurrently.
	DefaultBatchSize = 10

	// DefaultBroadRadiusKM is the prefilter radius for candidate discovery,
	// independent of each subscriber's personal radius.
	DefaultBroadRadiusKM = 5

	// DefaultSubscriberRadiusKM is the floor applied to each subscriber's
	// configured radius during the exact distance check.
	DefaultSubscriberRadiusKM = 5

	// DefaultCandidateLimit caps the candidate set per fanout.
	DefaultCandidateLimit = 500
)

// Alert is the notification-relevant view of a newly created signal.
type Alert struct {
	SignalID  string
	Title     string
	Body      string
	Level     int
	Address   string
	ZoneKey   string
	Lat       float64
	Lng       float64
	CreatedAt time.Time
}

// Result is the per-recipient outcome of one fanout. Skipped recipients
// failed the exact radius check and were not dispatched to; this is not an
// error.
type Result struct {
	RecipientID string `json:"recipientId"`
	OK          bool   `json:"ok"`
	Gone        bool   `json:"gone,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Directory is the subscriber lookup surface the fanout needs.
type Directory interface {
	FindCandidatesNear(ctx context.Context, lat, lng, maxRadiusKM float64, limit int) ([]*subscription.Subscription, error)
	Deactivate(ctx context.Context, id string) error
}

// FanoutConfig configures a Fanout.
type FanoutConfig struct {
	Directory Directory
	Transport Transport
	Logger    zerolog.Logger

	// BatchSize, BroadRadiusKM, SubscriberRadiusKM, and CandidateLimit
	// default to the package constants when zero.
	BatchSize          int
	BroadRadiusKM      float64
	SubscriberRadiusKM float64
	CandidateLimit     int
}

// Fanout discovers in-radius subscribers for a new signal and dispatches
// notifications in fixed-size concurrent batches.
type Fanout struct {
	dir          Directory
	transport    Transport
	logger       zerolog.Logger
	batchSize    int
	broadKM      float64
	subscriberKM float64
	limit        int
}

// NewFanout creates a Fanout.
func NewFanout(cfg FanoutConfig) *Fanout {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BroadRadiusKM <= 0 {
		cfg.BroadRadiusKM = DefaultBroadRadiusKM
	}
	if cfg.SubscriberRadiusKM <= 0 {
		cfg.SubscriberRadiusKM = DefaultSubscriberRadiusKM
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	return &Fanout{
		dir:          cfg.Directory,
		transport:    cfg.Transport,
		logger:       cfg.Logger,
		batchSize:    cfg.BatchSize,
		broadKM:      cfg.BroadRadiusKM,
		subscriberKM: cfg.SubscriberRadiusKM,
		limit:        cfg.CandidateLimit,
	}
}

// Notify runs the fanout for one alert and returns every per-recipient
// outcome. Individual failures never abort the loop; only context
// cancellation stops it, and then only between batches (a started batch
// always settles). Errors discovering candidates are logged and yield an
// empty result set; fanout is best-effort and must never fail the
// caller's request.
func (f *Fanout) Notify(ctx context.Context, alert Alert) []Result {
	candidates, err := f.dir.FindCandidatesNear(ctx, alert.Lat, alert.Lng, f.broadKM, f.limit)
	if err != nil {
		f.logger.Error().Err(err).Str("signal_id", alert.SignalID).Msg("fanout candidate lookup failed")
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	payload := Payload{
		Title:     alert.Title,
		Body:      alert.Body,
		Level:     alert.Level,
		Address:   alert.Address,
		ZoneKey:   alert.ZoneKey,
		SignalID:  alert.SignalID,
		CreatedAt: alert.CreatedAt.UTC().Format(time.RFC3339),
	}

	results := make([]Result, len(candidates))
	dispatched := len(candidates)

	for start := 0; start < len(candidates); start += f.batchSize {
		if ctx.Err() != nil {
			f.logger.Warn().
				Str("signal_id", alert.SignalID).
				Int("remaining", len(candidates)-start).
				Msg("fanout aborted between batches")
			dispatched = start
			break
		}

		end := start + f.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int, sub *subscription.Subscription) {
				defer wg.Done()
				results[i] = f.dispatch(ctx, sub, alert, payload)
			}(i, candidates[i])
		}
		wg.Wait()
	}

	results = results[:dispatched]
	f.logSummary(alert.SignalID, results)
	return results
}

// dispatch performs the exact radius check and, if the subscriber is in
// range, sends the notification. A subscriber without a stored location is
// treated as in-radius: missing an urgent alert is worse than an extra one.
func (f *Fanout) dispatch(ctx context.Context, sub *subscription.Subscription, alert Alert, payload Payload) Result {
	if sub.Location != nil {
		maxMeters := geo.Meters(f.subscriberKM)
		if sub.RadiusKM > f.subscriberKM {
			maxMeters = geo.Meters(sub.RadiusKM)
		}
		d := geo.HaversineMeters(alert.Lat, alert.Lng, sub.Location.Lat, sub.Location.Lng)
		if d > maxMeters {
			return Result{RecipientID: sub.ID, Skipped: true}
		}
	}

	delivery := f.transport.Send(ctx, sub, payload)

	if delivery.Gone {
		if err := f.dir.Deactivate(ctx, sub.ID); err != nil {
			f.logger.Error().Err(err).Str("subscription_id", sub.ID).Msg("failed to deactivate gone subscription")
		}
	}

	res := Result{RecipientID: sub.ID, OK: delivery.OK, Gone: delivery.Gone}
	if delivery.Err != nil {
		res.Error = delivery.Err.Error()
	}
	return res
}

func (f *Fanout) logSummary(signalID string, results []Result) {
	var ok, gone, skipped, failed int
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
		case r.OK:
			ok++
		default:
			failed++
		}
		if r.Gone {
			gone++
		}
	}
	f.logger.Info().
		Str("signal_id", signalID).
		Int("candidates", len(results)).
		Int("delivered", ok).
		Int("failed", failed).
		Int("skipped", skipped).
		Int("gone", gone).
		Msg("fanout completed")
}
