package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/elsbrock/putioarr/internal/domain"
	"github.com/elsbrock/putioarr/internal/domain/ports"
	"github.com/elsbrock/putioarr/internal/metrics"
)

// Supervised task kinds, also the label values of the active watcher gauge.
const (
	WatcherImport  = "import"
	WatcherSeeding = "seeding"
	WatcherRetry   = "retry"
)

// Orchestrator drives a transfer through the pipeline stages. Any number of
// orchestrators may consume the same event stream; follow-up events are fed
// back into it.
type Orchestrator struct {
	Planner     TargetPlanner
	Imports     ImportWatcher
	Seeding     SeedingWatcher
	Supervisor  *Supervisor
	Tracker     *Tracker
	Failures    ports.FailedTransferRepository
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *slog.Logger

	emit     func(Event) bool
	dispatch func(dispatch) bool
	forget   func(context.Context, domain.TransferID)
}

func (o Orchestrator) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			o.handle(ctx, ev)
		}
	}
}

func (o Orchestrator) handle(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case QueuedForDownload:
		o.download(ctx, e.Transfer)
	case Downloaded:
		o.watchImport(ctx, e.Transfer)
	case Imported:
		o.watchSeeding(ctx, e.Transfer)
	default:
		o.Logger.Error("orchestrator: unknown event", slog.String("transfer", ev.transfer().String()))
	}
}

func (o Orchestrator) download(ctx context.Context, t domain.Transfer) {
	targets, err := o.Planner.PlanTransfer(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.PlanningFailuresTotal.Inc()
		o.Logger.Warn("orchestrator: planning failed",
			slog.String("transfer", t.String()),
			slog.String("error", wrapPlanning(err).Error()),
		)
		if errors.Is(err, domain.ErrUnsafePath) {
			// Replanning yields the same names; keep the id seen.
			t.Attempt++
			o.deadLetter(ctx, t, err.Error(), nil)
			return
		}
		o.Tracker.Remove(t.ID)
		o.forget(ctx, t.ID)
		return
	}
	t.Targets = targets
	o.advance(t, domain.StageDownloading)

	replies := make([]chan DownloadOutcome, len(targets))
	for i, target := range targets {
		reply := make(chan DownloadOutcome, 1)
		replies[i] = reply
		if !o.dispatch(dispatch{target: target, reply: reply}) {
			return
		}
	}

	var failed []DownloadFailed
	for _, reply := range replies {
		select {
		case <-ctx.Done():
			return
		case outcome := <-reply:
			switch out := outcome.(type) {
			case DownloadSucceeded:
			case DownloadFailed:
				failed = append(failed, out)
			}
		}
	}

	if len(failed) > 0 {
		o.Logger.Warn("orchestrator: not all targets downloaded",
			slog.String("transfer", t.String()),
			slog.Int("failed", len(failed)),
			slog.Int("targets", len(targets)),
		)
		o.retryOrFail(ctx, t, failed)
		return
	}

	o.Logger.Info("orchestrator: downloaded", slog.String("transfer", t.String()))
	o.advance(t, domain.StageDownloaded)
	o.emit(Downloaded{Transfer: t})
}

// retryOrFail requeues t with a linearly growing delay until MaxAttempts is
// reached, then dead-letters it.
func (o Orchestrator) retryOrFail(ctx context.Context, t domain.Transfer, failed []DownloadFailed) {
	attempt := t.Attempt + 1
	if attempt >= o.MaxAttempts {
		reasons := make([]string, 0, len(failed))
		for _, f := range failed {
			reasons = append(reasons, f.Target.To)
		}
		t.Attempt = attempt
		o.deadLetter(ctx, t, failed[0].Err.Error(), reasons)
		return
	}

	next := t
	next.Attempt = attempt
	next.Targets = nil
	delay := time.Duration(attempt) * o.RetryDelay
	metrics.TransferRetriesTotal.Inc()
	o.Tracker.Set(next, domain.StageQueued)
	o.Logger.Info("orchestrator: requeueing",
		slog.String("transfer", t.String()),
		slog.Int("attempt", attempt+1),
		slog.Duration("delay", delay),
	)

	o.Supervisor.Go(ctx, WatcherRetry, next.String(), func(ctx context.Context) error {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		o.emit(QueuedForDownload{Transfer: next})
		return nil
	})
}

func (o Orchestrator) watchImport(ctx context.Context, t domain.Transfer) {
	if _, ok := t.TopLevel(); !ok {
		o.Logger.Warn("orchestrator: nothing to import", slog.String("transfer", t.String()))
		t.Attempt++
		o.deadLetter(ctx, t, "no downloadable content", nil)
		return
	}
	o.Supervisor.Go(ctx, WatcherImport, t.String(), func(ctx context.Context) error {
		if err := o.Imports.Watch(ctx, t); err != nil {
			o.watcherFailed(ctx, t, err)
			return err
		}
		o.advance(t, domain.StageImported)
		o.emit(Imported{Transfer: t})
		return nil
	})
}

func (o Orchestrator) watchSeeding(ctx context.Context, t domain.Transfer) {
	o.Supervisor.Go(ctx, WatcherSeeding, t.String(), func(ctx context.Context) error {
		if err := o.Seeding.Watch(ctx, t); err != nil {
			o.watcherFailed(ctx, t, err)
			return err
		}
		metrics.TransfersTotal.WithLabelValues(string(domain.StageDone)).Inc()
		o.Tracker.Remove(t.ID)
		o.Logger.Info("orchestrator: done", slog.String("transfer", t.String()))
		return nil
	})
}

func (o Orchestrator) advance(t domain.Transfer, stage domain.Stage) {
	metrics.TransfersTotal.WithLabelValues(string(stage)).Inc()
	o.Tracker.Set(t, stage)
}

// watcherFailed dead-letters t unless the watcher was stopped by shutdown.
func (o Orchestrator) watcherFailed(ctx context.Context, t domain.Transfer, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	t.Attempt++
	o.deadLetter(ctx, t, err.Error(), nil)
}

func (o Orchestrator) markFailed(t domain.Transfer) {
	o.advance(t, domain.StageFailed)
}

func (o Orchestrator) deadLetter(ctx context.Context, t domain.Transfer, reason string, targets []string) {
	o.markFailed(t)
	o.Logger.Error("orchestrator: giving up on transfer",
		slog.String("transfer", t.String()),
		slog.Int("attempts", t.Attempt),
		slog.String("reason", reason),
	)
	if o.Failures == nil {
		return
	}
	err := o.Failures.Record(ctx, domain.FailedTransfer{
		TransferID: t.ID,
		Name:       t.Name,
		Hash:       t.Hash,
		Attempts:   t.Attempt,
		Reason:     reason,
		Targets:    targets,
		FailedAt:   time.Now().UTC(),
	})
	if err != nil {
		o.Logger.Warn("orchestrator: record failed transfer",
			slog.String("transfer", t.String()),
			slog.String("error", err.Error()),
		)
	}
}
