package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/terra-clan/challenge-tracker/internal/models"
)

func TestInProcessPublisherCallsHandler(t *testing.T) {
	var got []models.CompletionEvent
	p := NewInProcessPublisher(func(ctx context.Context, e models.CompletionEvent) error {
		got = append(got, e)
		return nil
	})

	event := NewCompletionEvent("u1", "c1", false, 1000, 6, time.Unix(0, 0))
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].EventID == "" {
		t.Error("expected event id to be set")
	}
	if got[0].Timestamp != "1970-01-01T00:00:00Z" {
		t.Errorf("unexpected timestamp %q", got[0].Timestamp)
	}
}

func TestInProcessPublisherPropagatesError(t *testing.T) {
	want := errors.New("boom")
	p := NewInProcessPublisher(func(ctx context.Context, e models.CompletionEvent) error {
		return want
	})

	if err := p.Publish(context.Background(), models.CompletionEvent{}); !errors.Is(err, want) {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestNewCompletionEventUniqueIDs(t *testing.T) {
	a := NewCompletionEvent("u", "c", false, 0, 0, time.Now())
	b := NewCompletionEvent("u", "c", false, 0, 0, time.Now())
	if a.EventID == b.EventID {
		t.Error("expected distinct event ids")
	}
}
