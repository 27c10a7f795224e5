package usecase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSupervisorTracksAndJoinsTasks(t *testing.T) {
	s := NewSupervisor(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		s.Go(ctx, WatcherImport, "task", func(ctx context.Context) error {
			started <- struct{}{}
			<-ctx.Done()
			return ctx.Err()
		})
	}
	<-started
	<-started
	if got := s.InFlight(WatcherImport); got != 2 {
		t.Fatalf("InFlight = %d, want 2", got)
	}

	cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := s.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := s.InFlight(WatcherImport); got != 0 {
		t.Fatalf("InFlight after Wait = %d, want 0", got)
	}
}

func TestSupervisorWaitTimesOut(t *testing.T) {
	s := NewSupervisor(discardLogger())
	release := make(chan struct{})
	defer close(release)

	s.Go(context.Background(), WatcherSeeding, "stuck", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err = %v, want deadline exceeded", err)
	}
}

func TestSupervisorSurvivesTaskErrors(t *testing.T) {
	s := NewSupervisor(discardLogger())
	s.Go(context.Background(), WatcherRetry, "failing", func(context.Context) error { return errBoom })
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
