package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elsbrock/putioarr/internal/domain"
	"github.com/elsbrock/putioarr/internal/domain/ports"
)

const watcherShutdownGrace = 10 * time.Second

type PipelineConfig struct {
	PollingInterval      time.Duration
	DownloadWorkers      int
	OrchestrationWorkers int
	SkipDirectories      []string
	DownloadDir          string
	MaxAttempts          int
}

type Dependencies struct {
	Remote   ports.RemoteTransferClient
	Storage  ports.LocalStorage
	Oracle   ports.ImportOracle
	Failures ports.FailedTransferRepository
	Logger   *slog.Logger
}

// Pipeline wires the producer, the orchestration and download worker pools
// and the watcher supervisor around two unbounded queues.
type Pipeline struct {
	cfg          PipelineConfig
	logger       *slog.Logger
	failures     ports.FailedTransferRepository
	events       *queue[Event]
	dispatches   *queue[dispatch]
	tracker      *Tracker
	supervisor   *Supervisor
	producer     *TransferProducer
	orchestrator Orchestrator
	downloader   DownloadWorker

	started atomic.Bool
	stopped atomic.Bool
}

func NewPipeline(cfg PipelineConfig, startup domain.StartupContext, deps Dependencies) *Pipeline {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 10 * time.Second
	}
	if cfg.DownloadWorkers <= 0 {
		cfg.DownloadWorkers = 4
	}
	if cfg.OrchestrationWorkers <= 0 {
		cfg.OrchestrationWorkers = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		cfg:        cfg,
		logger:     logger,
		failures:   deps.Failures,
		events:     newQueue[Event](),
		dispatches: newQueue[dispatch](),
		tracker:    NewTracker(),
		supervisor: NewSupervisor(logger),
	}

	planner := TargetPlanner{
		Remote:          deps.Remote,
		DownloadDir:     cfg.DownloadDir,
		SkipDirectories: cfg.SkipDirectories,
		Logger:          logger,
	}
	p.producer = NewTransferProducer(deps.Remote, planner, startup, cfg.PollingInterval, logger, p.emit)
	p.producer.vanished = p.releaseFailed
	p.orchestrator = Orchestrator{
		Planner: planner,
		Imports: ImportWatcher{
			Oracle:   deps.Oracle,
			Storage:  deps.Storage,
			Root:     cfg.DownloadDir,
			Interval: cfg.PollingInterval,
			Logger:   logger,
		},
		Seeding: SeedingWatcher{
			Remote:   deps.Remote,
			Interval: cfg.PollingInterval,
			Logger:   logger,
		},
		Supervisor:  p.supervisor,
		Tracker:     p.tracker,
		Failures:    deps.Failures,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.PollingInterval,
		Logger:      logger,
		emit:        p.emit,
		dispatch:    p.dispatches.Push,
		forget:      p.producer.Forget,
	}
	p.downloader = DownloadWorker{Storage: deps.Storage, Logger: logger}
	return p
}

// Run blocks until ctx is done or the producer fails at startup. On return
// every worker and watcher has stopped.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrPipelineClosed
	}
	p.logger.Info("pipeline: starting",
		slog.Int("orchestration_workers", p.cfg.OrchestrationWorkers),
		slog.Int("download_workers", p.cfg.DownloadWorkers),
		slog.Duration("interval", p.cfg.PollingInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.producer.Run(gctx) })
	for i := 0; i < p.cfg.OrchestrationWorkers; i++ {
		g.Go(func() error {
			p.orchestrator.Run(gctx, p.events.Out())
			return nil
		})
	}
	for i := 0; i < p.cfg.DownloadWorkers; i++ {
		g.Go(func() error {
			p.downloader.Run(gctx, p.dispatches.Out())
			return nil
		})
	}

	err := g.Wait()
	p.stopped.Store(true)
	p.events.Close()
	p.dispatches.Close()

	waitCtx, cancel := context.WithTimeout(context.Background(), watcherShutdownGrace)
	defer cancel()
	if werr := p.supervisor.Wait(waitCtx); werr != nil {
		p.logger.Warn("pipeline: watchers did not stop in time", slog.String("error", werr.Error()))
	}
	p.logger.Info("pipeline: stopped")
	return err
}

// Enqueue injects a transfer added through the RPC facade. Transfers the
// producer already queued are ignored.
func (p *Pipeline) Enqueue(ctx context.Context, t domain.Transfer) error {
	if p.stopped.Load() {
		return ErrPipelineClosed
	}
	return p.producer.Inject(ctx, t)
}

func (p *Pipeline) Snapshot() []domain.TrackedTransfer {
	return p.tracker.Snapshot()
}

// Lookup returns the tracked state of one transfer.
func (p *Pipeline) Lookup(id domain.TransferID) (domain.TrackedTransfer, bool) {
	return p.tracker.Get(id)
}

func (p *Pipeline) FailedTransfers(ctx context.Context) ([]domain.FailedTransfer, error) {
	if p.failures == nil {
		return nil, nil
	}
	return p.failures.List(ctx)
}

// Watchers returns the number of running watchers of kind "import",
// "seeding" or "retry".
func (p *Pipeline) Watchers(kind string) int {
	return p.supervisor.InFlight(kind)
}

// releaseFailed stops reporting a failed transfer once the remote side no
// longer lists it. Its dead-letter record stays.
func (p *Pipeline) releaseFailed(id domain.TransferID) {
	if p.tracker.RemoveIf(id, domain.StageFailed) {
		p.logger.Debug("pipeline: released failed transfer", slog.Int64("transferId", int64(id)))
	}
}

func (p *Pipeline) emit(ev Event) bool {
	if q, ok := ev.(QueuedForDownload); ok {
		p.tracker.Set(q.Transfer, domain.StageQueued)
		if !p.events.Push(ev) {
			p.tracker.Remove(q.Transfer.ID)
			return false
		}
		return true
	}
	return p.events.Push(ev)
}
