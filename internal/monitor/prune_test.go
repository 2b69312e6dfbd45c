package monitor

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingPruner struct{ calls int }

func (p *countingPruner) PruneStaleIssues(time.Duration) (int, error) {
	p.calls++
	return 0, nil
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule("0 3 * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	from := time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)
	if next := sched.Next(from); !next.Equal(time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next run %s", next)
	}
	if _, err := ParseSchedule("every day"); err == nil {
		t.Fatal("expected invalid schedule error")
	}
}

func TestRunPruneScheduler_DisabledAndInvalid(t *testing.T) {
	p := &countingPruner{}
	if err := RunPruneScheduler(context.Background(), "", time.UTC, time.Hour, p, zap.NewNop()); err != nil {
		t.Fatalf("empty schedule should disable, got %v", err)
	}
	if err := RunPruneScheduler(context.Background(), "bad", time.UTC, time.Hour, p, zap.NewNop()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestRunPruneScheduler_StopsOnCancel(t *testing.T) {
	p := &countingPruner{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunPruneScheduler(ctx, "0 3 1 1 *", time.UTC, time.Hour, p, zap.NewNop()) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if p.calls != 0 {
		t.Fatalf("prune should not have run, calls=%d", p.calls)
	}
}
