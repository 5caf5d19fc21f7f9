package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/terra-clan/challenge-tracker/internal/metrics"
	"github.com/terra-clan/challenge-tracker/internal/models"
	"github.com/terra-clan/challenge-tracker/internal/storage"
)

type recordingPublisher struct {
	events []models.CompletionEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e models.CompletionEvent) error {
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T, points int) (*Service, *storage.MemoryRepository, *recordingPublisher, *fakeClock) {
	t.Helper()

	repo := storage.NewMemoryRepository()
	repo.PutUser(&models.User{ID: validID, Username: "camper", Points: points})

	pub := &recordingPublisher{}
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}

	svc := NewService(repo, zerolog.Nop(), WithPublisher(pub), WithClock(clock.Now))
	return svc, repo, pub, clock
}

func modernSubmission(contents string) Submission {
	return Submission{
		Variant: VariantModern,
		ID:      "abc123",
		Files:   map[string]models.File{"index.js": {Contents: contents}},
	}
}

func TestCompleteFirstTimeThenResubmit(t *testing.T) {
	ctx := context.Background()
	svc, repo, pub, clock := newTestService(t, 5)
	first := clock.Now().UnixMilli()

	res, err := svc.Complete(ctx, validID, modernSubmission("code"))
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if res.Points != 6 || res.AlreadyCompleted || res.CompletedDate != first {
		t.Errorf("unexpected first result: %+v", res)
	}

	// the persisted total is maintained elsewhere; simulate the accrual
	if _, err := repo.IncrementPoints(ctx, validID, 1); err != nil {
		t.Fatalf("IncrementPoints failed: %v", err)
	}

	clock.Advance(time.Hour)
	res, err = svc.Complete(ctx, validID, modernSubmission("better code"))
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if res.Points != 6 || !res.AlreadyCompleted || res.CompletedDate != first {
		t.Errorf("unexpected resubmission result: %+v", res)
	}

	user, _ := repo.GetUser(ctx, validID)
	if len(user.CompletedChallenges) != 1 {
		t.Fatalf("expected 1 completed challenge, got %d", len(user.CompletedChallenges))
	}
	if user.CompletedChallenges[0].CompletedDate != first {
		t.Errorf("completedDate changed to %d", user.CompletedChallenges[0].CompletedDate)
	}
	if user.CompletedChallenges[0].Files["index.js"].Contents != "better code" {
		t.Error("expected files from the resubmission")
	}
	if len(user.ProgressTimestamps) != 1 {
		t.Errorf("expected 1 progress timestamp, got %v", user.ProgressTimestamps)
	}

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.events))
	}
	if pub.events[0].AlreadyCompleted || !pub.events[1].AlreadyCompleted {
		t.Errorf("unexpected event flags: %+v", pub.events)
	}
}

func TestCompleteProgressLogPerDistinctID(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newTestService(t, 0)

	for _, id := range []string{"a", "b", "a", "c", "b"} {
		if _, err := svc.Complete(ctx, validID, Submission{Variant: VariantSimple, ID: id}); err != nil {
			t.Fatalf("Complete(%s) failed: %v", id, err)
		}
	}

	user, _ := repo.GetUser(ctx, validID)
	if len(user.ProgressTimestamps) != 3 {
		t.Errorf("expected 3 progress timestamps, got %d", len(user.ProgressTimestamps))
	}
	if len(user.CompletedChallenges) != 3 {
		t.Errorf("expected 3 completed challenges, got %d", len(user.CompletedChallenges))
	}
}

func TestCompleteTimezoneFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newTestService(t, 0)

	svc.Complete(ctx, validID, Submission{Variant: VariantSimple, ID: "a", Timezone: "Europe/Berlin"})
	svc.Complete(ctx, validID, Submission{Variant: VariantSimple, ID: "b", Timezone: "Asia/Tokyo"})

	user, _ := repo.GetUser(ctx, validID)
	if user.Timezone != "Europe/Berlin" {
		t.Errorf("expected Europe/Berlin, got %q", user.Timezone)
	}
}

func TestCompleteUnknownUser(t *testing.T) {
	svc, _, pub, _ := newTestService(t, 0)

	_, err := svc.Complete(context.Background(), "5f1b8e3c2a4d6e0f1a2b3c4e", modernSubmission("x"))
	if !errors.Is(err, storage.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Error("no event should be published for a missing user")
	}
}

func TestCompletePublishFailureStillSucceeds(t *testing.T) {
	svc, repo, pub, _ := newTestService(t, 2)
	pub.err = errors.New("broker down")

	res, err := svc.Complete(context.Background(), validID, modernSubmission("x"))
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if res.Points != 3 {
		t.Errorf("expected points 3, got %d", res.Points)
	}

	user, _ := repo.GetUser(context.Background(), validID)
	if len(user.CompletedChallenges) != 1 {
		t.Error("completion should be stored even when publishing fails")
	}
}

func TestCompleteRecordsMetrics(t *testing.T) {
	repo := storage.NewMemoryRepository()
	repo.PutUser(&models.User{ID: validID})
	m := metrics.New(prometheus.NewRegistry())

	svc := NewService(repo, zerolog.Nop(), WithMetrics(m))
	svc.Complete(context.Background(), validID, Submission{Variant: VariantBackend, ID: "a"})
	svc.Complete(context.Background(), validID, Submission{Variant: VariantBackend, ID: "a"})

	if got := testutil.ToFloat64(m.CompletionsTotal.WithLabelValues("backend", "true")); got != 1 {
		t.Errorf("expected 1 repeated backend completion, got %v", got)
	}
}
