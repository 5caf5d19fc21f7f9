package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckAll(t *testing.T) {
	r := NewRegistry(50 * time.Millisecond)
	r.Register("database", CheckerFunc(func(ctx context.Context) error { return nil }))
	r.Register("redis", CheckerFunc(func(ctx context.Context) error { return errors.New("connection refused") }))
	r.Register("slow", CheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	results := r.CheckAll(context.Background())

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results["database"] != nil {
		t.Errorf("expected database healthy, got %v", results["database"])
	}
	if results["redis"] == nil {
		t.Error("expected redis failure")
	}
	if !errors.Is(results["slow"], context.DeadlineExceeded) {
		t.Errorf("expected slow check to time out, got %v", results["slow"])
	}
}

func TestRegisterUnregister(t *testing.T) {
	r := NewRegistry(0)
	ok := CheckerFunc(func(ctx context.Context) error { return nil })
	r.Register("b", ok)
	r.Register("a", ok)

	names := r.List()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("unexpected names: %v", names)
	}

	r.Unregister("a")
	if len(r.List()) != 1 {
		t.Errorf("expected 1 checker after unregister, got %v", r.List())
	}
}
