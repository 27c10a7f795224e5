package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/elsbrock/putioarr/internal/domain"
	"github.com/elsbrock/putioarr/internal/domain/ports"
	"github.com/elsbrock/putioarr/internal/metrics"
)

const (
	heartbeatInterval = 60 * time.Second
	listTimeout       = 30 * time.Second
)

// TransferProducer discovers remote transfers and feeds new ones into the
// pipeline. It is the only owner of the seen set; other goroutines reach it
// through Inject and Forget.
type TransferProducer struct {
	Remote   ports.RemoteTransferClient
	Planner  TargetPlanner
	Startup  domain.StartupContext
	Interval time.Duration
	Logger   *slog.Logger

	emit          func(Event) bool
	vanished      func(domain.TransferID)
	inject        chan domain.Transfer
	forget        chan domain.TransferID
	seen          map[domain.TransferID]struct{}
	lastHeartbeat time.Time
	now           func() time.Time
}

func NewTransferProducer(remote ports.RemoteTransferClient, planner TargetPlanner, startup domain.StartupContext, interval time.Duration, logger *slog.Logger, emit func(Event) bool) *TransferProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransferProducer{
		Remote:   remote,
		Planner:  planner,
		Startup:  startup,
		Interval: interval,
		Logger:   logger,
		emit:     emit,
		inject:   make(chan domain.Transfer, 64),
		forget:   make(chan domain.TransferID, 64),
		seen:     make(map[domain.TransferID]struct{}),
		now:      time.Now,
	}
}

// Inject hands an externally added transfer to the producer, which queues it
// unless it was already seen.
func (p *TransferProducer) Inject(ctx context.Context, t domain.Transfer) error {
	select {
	case p.inject <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forget removes id from the seen set so the next poll may queue it again.
func (p *TransferProducer) Forget(ctx context.Context, id domain.TransferID) {
	select {
	case p.forget <- id:
	case <-ctx.Done():
	}
}

// Reconcile plans every downloadable transfer already stored under the root
// folder without queueing it. Transfers that fail to plan are logged and
// skipped. Only a failure to list transfers is returned.
func (p *TransferProducer) Reconcile(ctx context.Context) ([]domain.Transfer, error) {
	listCtx, cancel := context.WithTimeout(ctx, listTimeout)
	remote, err := p.Remote.ListTransfers(listCtx)
	cancel()
	if err != nil {
		return nil, err
	}

	var planned []domain.Transfer
	for _, rt := range remote {
		if rt.SaveParentID != p.Startup.RootFolderID || !rt.Downloadable() {
			continue
		}
		t := domain.TransferFromRemote(rt)
		targets, err := p.Planner.PlanTransfer(ctx, t)
		if err != nil {
			p.Logger.Warn("producer: reconcile planning failed",
				slog.String("transfer", t.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		t.Targets = targets
		p.Logger.Debug("producer: reconciled transfer",
			slog.String("transfer", t.String()),
			slog.Int("targets", len(targets)),
		)
		planned = append(planned, t)
	}
	return planned, nil
}

// Run reconciles once and then polls until ctx is done. The only error it
// returns is a failed startup listing.
func (p *TransferProducer) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	if _, err := p.Reconcile(ctx); err != nil {
		return err
	}
	p.lastHeartbeat = p.now()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-p.inject:
			p.enqueue(t)
		case id := <-p.forget:
			delete(p.seen, id)
		case <-timer.C:
			p.poll(ctx)
			timer.Reset(interval)
		}
	}
}

func (p *TransferProducer) poll(ctx context.Context) {
	listCtx, cancel := context.WithTimeout(ctx, listTimeout)
	remote, err := p.Remote.ListTransfers(listCtx)
	cancel()
	if err != nil {
		metrics.RemoteListFailuresTotal.Inc()
		p.Logger.Warn("producer: list transfers failed", slog.String("error", err.Error()))
		return
	}
	metrics.RemoteTransfers.Set(float64(len(remote)))
	p.observe(remote)
	p.heartbeat(len(remote))
}

// observe queues every unseen downloadable transfer and prunes the seen set
// to the ids present in this snapshot. Pruned ids are reported to the
// vanished hook.
func (p *TransferProducer) observe(remote []domain.RemoteTransfer) {
	present := make(map[domain.TransferID]struct{}, len(remote))
	for _, rt := range remote {
		present[rt.ID] = struct{}{}
		p.enqueue(domain.TransferFromRemote(rt))
	}
	for id := range p.seen {
		if _, ok := present[id]; !ok {
			delete(p.seen, id)
			if p.vanished != nil {
				p.vanished(id)
			}
		}
	}
}

func (p *TransferProducer) enqueue(t domain.Transfer) {
	if !t.Downloadable() {
		return
	}
	if _, ok := p.seen[t.ID]; ok {
		return
	}
	if !p.emit(QueuedForDownload{Transfer: t}) {
		return
	}
	p.seen[t.ID] = struct{}{}
	p.Logger.Info("producer: queued for download", slog.String("transfer", t.String()))
}

func (p *TransferProducer) heartbeat(active int) {
	now := p.now()
	if now.Sub(p.lastHeartbeat) < heartbeatInterval {
		return
	}
	p.lastHeartbeat = now
	p.Logger.Info("producer: active transfers", slog.Int("count", active))
}
