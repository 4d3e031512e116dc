package comment_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/citysignal/citysignal/internal/comment"
	"github.com/citysignal/citysignal/internal/signal"
)

type fakeSignalChecker struct {
	existing map[string]bool
}

func (c *fakeSignalChecker) Exists(_ context.Context, signalID string) error {
	if c.existing[signalID] {
		return nil
	}
	return signal.ErrSignalNotFound
}

func newTestService(signalIDs ...string) *comment.Service {
	existing := make(map[string]bool)
	for _, id := range signalIDs {
		existing[id] = true
	}
	return comment.NewService(comment.NewInMemoryRepository(), &fakeSignalChecker{existing: existing})
}

func TestService_CreateAndList(t *testing.T) {
	service := newTestService("sig_1")
	ctx := context.Background()

	first, err := service.Create(ctx, "sig_1", "usr_a", "여기 지금 통제 중인가요?")
	if err != nil {
		t.Fatalf("failed to create comment: %v", err)
	}
	if !strings.HasPrefix(first.ID, "cmt_") {
		t.Errorf("expected comment ID to start with 'cmt_', got %q", first.ID)
	}
	if first.AuthorID != "usr_a" {
		t.Errorf("expected author usr_a, got %q", first.AuthorID)
	}

	second, err := service.Create(ctx, "sig_1", "usr_b", "네, 경찰이 와 있어요")
	if err != nil {
		t.Fatalf("failed to create comment: %v", err)
	}

	got, err := service.List(ctx, "sig_1", 10)
	if err != nil {
		t.Fatalf("failed to list comments: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(got))
	}
	// Newest first.
	if got[0].ID != second.ID || got[1].ID != first.ID {
		t.Errorf("expected newest-first order, got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestService_Create_TrimsContent(t *testing.T) {
	service := newTestService("sig_1")

	c, err := service.Create(context.Background(), "sig_1", "usr_a", "  공백 포함 댓글  ")
	if err != nil {
		t.Fatalf("failed to create comment: %v", err)
	}
	if c.Content != "공백 포함 댓글" {
		t.Errorf("expected trimmed content, got %q", c.Content)
	}
}

func TestService_Create_ValidationErrors(t *testing.T) {
	service := newTestService("sig_1")
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
	}{
		{name: "empty content", content: ""},
		{name: "whitespace only", content: "   "},
		{name: "too long", content: strings.Repeat("a", 1001)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(ctx, "sig_1", "usr_a", tt.content)

			var valErr *comment.ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(valErr.Errors) == 0 || valErr.Errors[0].Field != "content" {
				t.Errorf("expected error on content field, got %+v", valErr.Errors)
			}
		})
	}
}

func TestService_Create_KoreanContentCountsRunes(t *testing.T) {
	service := newTestService("sig_1")

	// 600 Korean characters is 1800 bytes but well under the
	// 1000-character limit.
	content := strings.Repeat("글", 600)
	c, err := service.Create(context.Background(), "sig_1", "usr_a", content)
	if err != nil {
		t.Fatalf("600-character Korean comment rejected: %v", err)
	}
	if c.Content != content {
		t.Errorf("content was altered")
	}

	_, err = service.Create(context.Background(), "sig_1", "usr_a", strings.Repeat("글", 1001))
	var valErr *comment.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error for 1001-character comment, got %v", err)
	}
}

func TestService_Create_MissingSignal(t *testing.T) {
	service := newTestService()

	if _, err := service.Create(context.Background(), "sig_missing", "usr_a", "댓글"); !errors.Is(err, signal.ErrSignalNotFound) {
		t.Errorf("expected ErrSignalNotFound, got %v", err)
	}
}

func TestService_List_MissingSignal(t *testing.T) {
	service := newTestService()

	if _, err := service.List(context.Background(), "sig_missing", 10); !errors.Is(err, signal.ErrSignalNotFound) {
		t.Errorf("expected ErrSignalNotFound, got %v", err)
	}
}

func TestService_List_Limit(t *testing.T) {
	service := newTestService("sig_1")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := service.Create(ctx, "sig_1", "usr_a", strings.Repeat("a", i+1)); err != nil {
			t.Fatalf("failed to create comment: %v", err)
		}
	}

	got, err := service.List(ctx, "sig_1", 3)
	if err != nil {
		t.Fatalf("failed to list comments: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected limit of 3 comments, got %d", len(got))
	}
}
