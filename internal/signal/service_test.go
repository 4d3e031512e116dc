package signal_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/citysignal/citysignal/internal/notify"
	"github.com/citysignal/citysignal/internal/severity"
	"github.com/citysignal/citysignal/internal/signal"
)

type fakeNotifier struct {
	alerts  []notify.Alert
	results []notify.Result
}

func (n *fakeNotifier) Notify(_ context.Context, alert notify.Alert) []notify.Result {
	n.alerts = append(n.alerts, alert)
	return n.results
}

type fakePublisher struct {
	signalIDs []string
	err       error
}

func (p *fakePublisher) PublishFanout(_ context.Context, signalID string) error {
	p.signalIDs = append(p.signalIDs, signalID)
	return p.err
}

func newTestService(t *testing.T, repo *signal.InMemoryRepository, notifier signal.Notifier) *signal.Service {
	t.Helper()
	return signal.NewService(signal.ServiceConfig{
		Repo:       repo,
		Classifier: severity.NewHeuristicClassifier(),
		Notifier:   notifier,
		Logger:     zerolog.Nop(),
	})
}

func seedSignal(t *testing.T, repo *signal.InMemoryRepository, id string, sev int, age time.Duration) *signal.Signal {
	t.Helper()
	now := time.Now().Add(-age)
	s := &signal.Signal{
		ID:       id,
		Title:    "테스트 신고",
		Severity: sev,
		Location: signal.Location{Lat: 37.5665, Lng: 126.9780},
		Status:   signal.StatusActive,
		Source:   signal.SourceUser,
		// Millisecond precision so encoded cursors survive the round trip.
		CreatedAt: now.Truncate(time.Millisecond),
		UpdatedAt: now.Truncate(time.Millisecond),
	}
	if err := repo.Insert(context.Background(), s); err != nil {
		t.Fatalf("failed to seed signal: %v", err)
	}
	return s
}

func TestService_Create(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	notifier := &fakeNotifier{results: []notify.Result{{RecipientID: "sub_1", OK: true}}}
	service := newTestService(t, repo, notifier)
	ctx := context.Background()

	sig, results, err := service.Create(ctx, "usr_reporter", signal.CreateInput{
		Title:       "폭발 위험 가스 누출",
		Description: "지하 주차장에서 가스 냄새가 심하게 납니다",
		Category:    "safety",
		Address:     "세종대로 110",
		Lat:         37.5665,
		Lng:         126.9780,
	})
	if err != nil {
		t.Fatalf("failed to create signal: %v", err)
	}

	if !strings.HasPrefix(sig.ID, "sig_") {
		t.Errorf("expected signal ID to start with 'sig_', got %q", sig.ID)
	}
	if sig.Severity < 4 {
		t.Errorf("expected classified severity >= 4 for gas leak report, got %d", sig.Severity)
	}
	if sig.Status != signal.StatusActive {
		t.Errorf("expected status active, got %q", sig.Status)
	}
	if sig.OwnerID != "usr_reporter" {
		t.Errorf("expected owner usr_reporter, got %q", sig.OwnerID)
	}

	// Fanout ran inline and its results surfaced to the caller.
	if len(results) != 1 || results[0].RecipientID != "sub_1" {
		t.Errorf("expected fanout results to pass through, got %+v", results)
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(notifier.alerts))
	}
	alert := notifier.alerts[0]
	if alert.SignalID != sig.ID {
		t.Errorf("expected alert for %q, got %q", sig.ID, alert.SignalID)
	}
	if !strings.Contains(alert.Body, "위험도") || !strings.Contains(alert.Body, "세종대로 110") {
		t.Errorf("expected alert body with level and address, got %q", alert.Body)
	}

	// Created signal is readable back.
	got, err := service.Get(ctx, sig.ID)
	if err != nil {
		t.Fatalf("failed to fetch created signal: %v", err)
	}
	if got.Title != "폭발 위험 가스 누출" {
		t.Errorf("unexpected title %q", got.Title)
	}
}

func TestService_Create_ExplicitSeverity(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	service := newTestService(t, repo, &fakeNotifier{})

	sig, _, err := service.Create(context.Background(), "usr_1", signal.CreateInput{
		Title:    "폭발 위험 가스 누출",
		Lat:      37.5,
		Lng:      127.0,
		Severity: 2,
	})
	if err != nil {
		t.Fatalf("failed to create signal: %v", err)
	}
	if sig.Severity != 2 {
		t.Errorf("expected reporter-supplied severity 2, got %d", sig.Severity)
	}
}

func TestService_Create_ValidationErrors(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	service := newTestService(t, repo, &fakeNotifier{})
	ctx := context.Background()

	tests := []struct {
		name      string
		input     signal.CreateInput
		wantField string
	}{
		{
			name:      "empty title",
			input:     signal.CreateInput{Title: "   ", Lat: 37.5, Lng: 127.0},
			wantField: "title",
		},
		{
			name:      "title too long",
			input:     signal.CreateInput{Title: strings.Repeat("a", 121), Lat: 37.5, Lng: 127.0},
			wantField: "title",
		},
		{
			name:      "latitude out of range",
			input:     signal.CreateInput{Title: "t", Lat: 95, Lng: 127.0},
			wantField: "lat",
		},
		{
			name:      "severity out of range",
			input:     signal.CreateInput{Title: "t", Lat: 37.5, Lng: 127.0, Severity: 9},
			wantField: "severity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := service.Create(ctx, "usr_1", tt.input)

			var valErr *signal.ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			found := false
			for _, fe := range valErr.Errors {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on field %q, got %+v", tt.wantField, valErr.Errors)
			}
		})
	}
}

func TestService_Create_KoreanLengthLimitsCountRunes(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	service := newTestService(t, repo, &fakeNotifier{})
	ctx := context.Background()

	// 100 characters of Korean text is 300 bytes in UTF-8. The title
	// limit counts characters, so this must be accepted.
	title := strings.Repeat("가", 100)
	sig, _, err := service.Create(ctx, "usr_1", signal.CreateInput{
		Title: title,
		Lat:   37.5665,
		Lng:   126.9780,
	})
	if err != nil {
		t.Fatalf("100-character Korean title rejected: %v", err)
	}
	if sig.Title != title {
		t.Errorf("title was altered: %q", sig.Title)
	}

	// 121 characters is over the limit regardless of encoding.
	_, _, err = service.Create(ctx, "usr_1", signal.CreateInput{
		Title: strings.Repeat("가", 121),
		Lat:   37.5665,
		Lng:   126.9780,
	})
	var valErr *signal.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error for 121-character title, got %v", err)
	}
}

func TestService_Create_AsyncFanout(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	notifier := &fakeNotifier{results: []notify.Result{{RecipientID: "sub_1", OK: true}}}
	publisher := &fakePublisher{}
	service := signal.NewService(signal.ServiceConfig{
		Repo:       repo,
		Classifier: severity.NewHeuristicClassifier(),
		Notifier:   notifier,
		Async:      publisher,
		Logger:     zerolog.Nop(),
	})

	sig, results, err := service.Create(context.Background(), "usr_1", signal.CreateInput{
		Title: "도로 침수",
		Lat:   37.5,
		Lng:   127.0,
	})
	if err != nil {
		t.Fatalf("failed to create signal: %v", err)
	}

	if len(publisher.signalIDs) != 1 || publisher.signalIDs[0] != sig.ID {
		t.Errorf("expected fanout queued for %q, got %v", sig.ID, publisher.signalIDs)
	}
	if len(notifier.alerts) != 0 {
		t.Error("expected no inline fanout when async publisher is configured")
	}
	if results != nil {
		t.Errorf("expected nil results for queued fanout, got %+v", results)
	}
}

func TestService_Create_PublishFailureDoesNotFailCreate(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	publisher := &fakePublisher{err: errors.New("pubsub unavailable")}
	service := signal.NewService(signal.ServiceConfig{
		Repo:       repo,
		Classifier: severity.NewHeuristicClassifier(),
		Async:      publisher,
		Logger:     zerolog.Nop(),
	})

	sig, _, err := service.Create(context.Background(), "usr_1", signal.CreateInput{
		Title: "가로등 고장",
		Lat:   37.5,
		Lng:   127.0,
	})
	if err != nil {
		t.Fatalf("expected create to succeed despite publish failure, got %v", err)
	}
	if _, err := service.Get(context.Background(), sig.ID); err != nil {
		t.Errorf("expected signal persisted, got %v", err)
	}
}

func TestService_Feed_SeveritySortAndCursor(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	service := newTestService(t, repo, &fakeNotifier{})
	ctx := context.Background()

	// Two severity bands; within a band, newer first.
	seedSignal(t, repo, "sig_a", 5, 3*time.Hour)
	seedSignal(t, repo, "sig_b", 5, 1*time.Hour)
	seedSignal(t, repo, "sig_c", 3, 30*time.Minute)
	seedSignal(t, repo, "sig_d", 3, 2*time.Hour)
	seedSignal(t, repo, "sig_e", 1, 10*time.Minute)

	params := signal.FeedParams{Lat: "37.5665", Lng: "126.9780", Sort: "severity", Limit: "2"}

	page1, err := service.Feed(ctx, params)
	if err != nil {
		t.Fatalf("failed to fetch first page: %v", err)
	}
	if got := ids(page1.Items); !equalIDs(got, []string{"sig_b", "sig_a"}) {
		t.Errorf("unexpected first page order: %v", got)
	}
	if page1.NextCursor == "" {
		t.Fatal("expected continuation cursor")
	}

	params.Cursor = page1.NextCursor
	page2, err := service.Feed(ctx, params)
	if err != nil {
		t.Fatalf("failed to fetch second page: %v", err)
	}
	if got := ids(page2.Items); !equalIDs(got, []string{"sig_c", "sig_d"}) {
		t.Errorf("unexpected second page order: %v", got)
	}

	params.Cursor = page2.NextCursor
	page3, err := service.Feed(ctx, params)
	if err != nil {
		t.Fatalf("failed to fetch third page: %v", err)
	}
	if got := ids(page3.Items); !equalIDs(got, []string{"sig_e"}) {
		t.Errorf("unexpected third page: %v", got)
	}
	if page3.NextCursor != "" {
		t.Errorf("expected no cursor on final page, got %q", page3.NextCursor)
	}
}

func TestService_Feed_OffsetPagination(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	service := newTestService(t, repo, &fakeNotifier{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedSignal(t, repo, fmt.Sprintf("sig_%d", i), 3, time.Duration(i)*time.Hour)
	}

	page1, err := service.Feed(ctx, signal.FeedParams{
		Lat: "37.5665", Lng: "126.9780", Sort: "distance", Page: "1", PageSize: "2",
	})
	if err != nil {
		t.Fatalf("failed to fetch first page: %v", err)
	}
	if len(page1.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page1.Items))
	}
	if page1.NextPage != 2 {
		t.Errorf("expected next page 2, got %d", page1.NextPage)
	}

	page3, err := service.Feed(ctx, signal.FeedParams{
		Lat: "37.5665", Lng: "126.9780", Sort: "distance", Page: "3", PageSize: "2",
	})
	if err != nil {
		t.Fatalf("failed to fetch third page: %v", err)
	}
	if len(page3.Items) != 1 {
		t.Errorf("expected 1 item on final page, got %d", len(page3.Items))
	}
	if page3.NextPage != 0 {
		t.Errorf("expected no next page, got %d", page3.NextPage)
	}
}

func TestService_Feed_ExcludesResolvedAndStale(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	service := newTestService(t, repo, &fakeNotifier{})
	ctx := context.Background()

	fresh := seedSignal(t, repo, "sig_fresh", 3, time.Hour)
	seedSignal(t, repo, "sig_old", 5, 10*24*time.Hour)
	resolved := seedSignal(t, repo, "sig_done", 4, time.Hour)
	if err := repo.UpdateStatus(ctx, resolved.ID, signal.StatusResolved); err != nil {
		t.Fatalf("failed to resolve signal: %v", err)
	}

	page, err := service.Feed(ctx, signal.FeedParams{Lat: "37.5665", Lng: "126.9780", Days: "3"})
	if err != nil {
		t.Fatalf("failed to fetch feed: %v", err)
	}
	if got := ids(page.Items); !equalIDs(got, []string{fresh.ID}) {
		t.Errorf("expected only the fresh active signal, got %v", got)
	}
}

func TestService_Feed_DegradedFallback(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	repo.FailWith(signal.ErrStoreUnavailable)

	service := signal.NewService(signal.ServiceConfig{
		Repo:             repo,
		Classifier:       severity.NewHeuristicClassifier(),
		Synthetic:        signal.NewSeededSyntheticGenerator(42),
		DegradedFallback: true,
		Logger:           zerolog.Nop(),
	})

	page, err := service.Feed(context.Background(), signal.FeedParams{
		Lat: "37.5665", Lng: "126.9780", Limit: "5",
	})
	if err != nil {
		t.Fatalf("expected synthetic fallback, got error: %v", err)
	}
	if !page.Degraded {
		t.Error("expected page to be flagged degraded")
	}
	if len(page.Items) == 0 || len(page.Items) > 5 {
		t.Errorf("expected 1..5 synthetic items, got %d", len(page.Items))
	}
	for _, item := range page.Items {
		if item.Source != signal.SourceSynthetic {
			t.Errorf("expected synthetic source, got %q", item.Source)
		}
	}
}

func TestService_Feed_StoreErrorWithoutFallback(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	repo.FailWith(signal.ErrStoreUnavailable)
	service := newTestService(t, repo, &fakeNotifier{})

	_, err := service.Feed(context.Background(), signal.FeedParams{Lat: "37.5665", Lng: "126.9780"})
	if !errors.Is(err, signal.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestService_SetStatus(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	service := newTestService(t, repo, &fakeNotifier{})
	ctx := context.Background()

	sig, _, err := service.Create(ctx, "usr_owner", signal.CreateInput{
		Title: "인도 파손",
		Lat:   37.5,
		Lng:   127.0,
	})
	if err != nil {
		t.Fatalf("failed to create signal: %v", err)
	}

	updated, err := service.SetStatus(ctx, sig.ID, "usr_owner", signal.StatusResolved)
	if err != nil {
		t.Fatalf("failed to set status: %v", err)
	}
	if updated.Status != signal.StatusResolved {
		t.Errorf("expected resolved, got %q", updated.Status)
	}
}

func TestService_SetStatus_Forbidden(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	service := newTestService(t, repo, &fakeNotifier{})
	ctx := context.Background()

	sig, _, err := service.Create(ctx, "usr_owner", signal.CreateInput{
		Title: "인도 파손",
		Lat:   37.5,
		Lng:   127.0,
	})
	if err != nil {
		t.Fatalf("failed to create signal: %v", err)
	}

	if _, err := service.SetStatus(ctx, sig.ID, "usr_other", signal.StatusResolved); !errors.Is(err, signal.ErrForbidden) {
		t.Errorf("expected ErrForbidden for non-owner, got %v", err)
	}

	// Anonymous reports have no owner; nobody can change them.
	anon, _, err := service.Create(ctx, "", signal.CreateInput{
		Title: "소음 신고",
		Lat:   37.5,
		Lng:   127.0,
	})
	if err != nil {
		t.Fatalf("failed to create anonymous signal: %v", err)
	}
	if _, err := service.SetStatus(ctx, anon.ID, "usr_other", signal.StatusResolved); !errors.Is(err, signal.ErrForbidden) {
		t.Errorf("expected ErrForbidden for anonymous signal, got %v", err)
	}
}

func TestService_SetStatus_InvalidStatus(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	service := newTestService(t, repo, &fakeNotifier{})

	_, err := service.SetStatus(context.Background(), "sig_x", "usr_1", signal.Status("archived"))
	var valErr *signal.ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("expected validation error for unknown status, got %v", err)
	}
}

func TestService_SetStatus_NotFound(t *testing.T) {
	repo := signal.NewInMemoryRepository()
	service := newTestService(t, repo, &fakeNotifier{})

	if _, err := service.SetStatus(context.Background(), "sig_missing", "usr_1", signal.StatusResolved); !errors.Is(err, signal.ErrSignalNotFound) {
		t.Errorf("expected ErrSignalNotFound, got %v", err)
	}
}

func ids(items []*signal.Signal) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = s.ID
	}
	return out
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
