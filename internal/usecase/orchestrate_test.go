package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elsbrock/putioarr/internal/domain"
)

type orchestratorHarness struct {
	remote   *fakeRemote
	storage  *fakeStorage
	oracle   *fakeOracle
	failures *fakeFailures
	sink     *emitted
	orch     Orchestrator

	mu        sync.Mutex
	forgotten []domain.TransferID
}

func newOrchestratorHarness(t *testing.T, ctx context.Context, maxAttempts int) *orchestratorHarness {
	t.Helper()
	h := &orchestratorHarness{
		remote:   scenarioTree(),
		storage:  newFakeStorage(),
		oracle:   &fakeOracle{},
		failures: &fakeFailures{},
		sink:     &emitted{},
	}

	dispatches := newQueue[dispatch]()
	t.Cleanup(dispatches.Close)
	worker := DownloadWorker{Storage: h.storage, Logger: discardLogger()}
	go worker.Run(ctx, dispatches.Out())
	go worker.Run(ctx, dispatches.Out())

	h.orch = Orchestrator{
		Planner: TargetPlanner{
			Remote:          h.remote,
			DownloadDir:     "/downloads/Show",
			SkipDirectories: []string{"sample"},
			Logger:          discardLogger(),
		},
		Imports:     ImportWatcher{Oracle: h.oracle, Storage: h.storage, Interval: 5 * time.Millisecond, Logger: discardLogger()},
		Seeding:     SeedingWatcher{Remote: h.remote, Interval: 5 * time.Millisecond, Logger: discardLogger()},
		Supervisor:  NewSupervisor(discardLogger()),
		Tracker:     NewTracker(),
		Failures:    h.failures,
		MaxAttempts: maxAttempts,
		RetryDelay:  5 * time.Millisecond,
		Logger:      discardLogger(),
		emit:        h.sink.emit,
		dispatch:    dispatches.Push,
		forget: func(_ context.Context, id domain.TransferID) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.forgotten = append(h.forgotten, id)
		},
	}
	return h
}

func queuedScenario() domain.Transfer {
	return domain.Transfer{ID: 42, Name: "Show S01", Hash: "abcd1234", FileID: 100}
}

func TestOrchestratorEmitsDownloadedWhenAllTargetsSucceed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newOrchestratorHarness(t, ctx, 1)

	h.orch.handle(ctx, QueuedForDownload{Transfer: queuedScenario()})

	if h.sink.count() != 1 {
		t.Fatalf("emitted %d events, want 1", h.sink.count())
	}
	ev, ok := h.sink.events[0].(Downloaded)
	if !ok {
		t.Fatalf("event %T, want Downloaded", h.sink.events[0])
	}
	if len(ev.Transfer.Targets) != 3 {
		t.Fatalf("targets = %+v, want 3", ev.Transfer.Targets)
	}
	if len(h.storage.dirs) != 1 || len(h.storage.written) != 2 {
		t.Fatalf("dirs = %v, written = %v", h.storage.dirs, h.storage.written)
	}
	tracked, ok := h.orch.Tracker.Get(42)
	if !ok || tracked.Stage != domain.StageDownloaded {
		t.Fatalf("tracked = %+v, want downloaded", tracked)
	}
}

func TestOrchestratorSuppressesDownloadedOnFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newOrchestratorHarness(t, ctx, 1)
	h.storage.writeErr["/downloads/Show/Season 01/e01.mkv"] = errBoom

	h.orch.handle(ctx, QueuedForDownload{Transfer: queuedScenario()})

	if h.sink.count() != 0 {
		t.Fatalf("emitted %d events, want none", h.sink.count())
	}
	records, _ := h.failures.List(ctx)
	if len(records) != 1 {
		t.Fatalf("failure records = %+v, want 1", records)
	}
	if records[0].Attempts != 1 || len(records[0].Targets) != 1 || records[0].Targets[0] != "/downloads/Show/Season 01/e01.mkv" {
		t.Fatalf("record = %+v", records[0])
	}
	tracked, _ := h.orch.Tracker.Get(42)
	if tracked.Stage != domain.StageFailed {
		t.Fatalf("stage = %s, want failed", tracked.Stage)
	}
}

func TestOrchestratorRequeuesPartialFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newOrchestratorHarness(t, ctx, 3)
	h.storage.writeErr["/downloads/Show/Season 01/e02.mkv"] = errBoom

	h.orch.handle(ctx, QueuedForDownload{Transfer: queuedScenario()})

	if !waitFor(func() bool { return h.sink.count() == 1 }) {
		t.Fatalf("emitted %d events, want a requeue", h.sink.count())
	}
	ev, ok := h.sink.events[0].(QueuedForDownload)
	if !ok {
		t.Fatalf("event %T, want QueuedForDownload", h.sink.events[0])
	}
	if ev.Transfer.Attempt != 1 || ev.Transfer.Targets != nil {
		t.Fatalf("requeued transfer = %+v", ev.Transfer)
	}

	// The second and third attempts fail the same way.
	h.orch.handle(ctx, ev)
	if !waitFor(func() bool { return h.sink.count() == 2 }) {
		t.Fatal("second requeue missing")
	}
	h.orch.handle(ctx, h.sink.events[1])

	records, _ := h.failures.List(ctx)
	if len(records) != 1 || records[0].Attempts != 3 {
		t.Fatalf("records = %+v, want one after three attempts", records)
	}
	time.Sleep(30 * time.Millisecond)
	if h.sink.count() != 2 {
		t.Fatalf("emitted %d events, want no requeue after the last attempt", h.sink.count())
	}
}

func TestOrchestratorPlanningFailureForgetsTransfer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newOrchestratorHarness(t, ctx, 1)
	h.remote.listFilesErr[100] = errBoom

	h.orch.handle(ctx, QueuedForDownload{Transfer: queuedScenario()})

	if h.sink.count() != 0 {
		t.Fatalf("emitted %d events", h.sink.count())
	}
	if len(h.forgotten) != 1 || h.forgotten[0] != 42 {
		t.Fatalf("forgotten = %v, want [42]", h.forgotten)
	}
	if _, ok := h.orch.Tracker.Get(42); ok {
		t.Fatal("transfer should not stay tracked")
	}
}

func TestOrchestratorWaitsOnPrivateReplies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newOrchestratorHarness(t, ctx, 1)

	var mu sync.Mutex
	var pending []dispatch
	h.orch.dispatch = func(d dispatch) bool {
		mu.Lock()
		defer mu.Unlock()
		pending = append(pending, d)
		if len(pending) == 3 {
			// Complete in reverse order.
			go func(ds []dispatch) {
				for i := len(ds) - 1; i >= 0; i-- {
					ds[i].reply <- DownloadSucceeded{Target: ds[i].target}
				}
			}(append([]dispatch(nil), pending...))
		}
		return true
	}

	h.orch.handle(ctx, QueuedForDownload{Transfer: queuedScenario()})

	if h.sink.count() != 1 {
		t.Fatalf("emitted %d events, want Downloaded", h.sink.count())
	}
	if _, ok := h.sink.events[0].(Downloaded); !ok {
		t.Fatalf("event %T, want Downloaded", h.sink.events[0])
	}
}

func TestOrchestratorStopsWaitingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newOrchestratorHarness(t, ctx, 1)
	h.orch.dispatch = func(dispatch) bool { return true }

	done := make(chan struct{})
	go func() {
		h.orch.handle(ctx, QueuedForDownload{Transfer: queuedScenario()})
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not return after cancel")
	}
}

func TestOrchestratorDeadLettersTransferWithoutTopLevel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newOrchestratorHarness(t, ctx, 1)

	h.orch.handle(ctx, Downloaded{Transfer: domain.Transfer{ID: 7, Name: "empty", Targets: []domain.DownloadTarget{}}})

	records, _ := h.failures.List(ctx)
	if len(records) != 1 || records[0].Reason != "no downloadable content" {
		t.Fatalf("records = %+v", records)
	}
	if h.orch.Supervisor.InFlight(WatcherImport) != 0 {
		t.Fatal("import watcher should not start")
	}
}

func TestOrchestratorWatchersAdvanceStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newOrchestratorHarness(t, ctx, 1)
	h.storage.kinds["/downloads/Show/Season 01"] = domain.PathDirectory
	tr := scenarioTransfer()

	h.orch.handle(ctx, Downloaded{Transfer: tr})
	if !waitFor(func() bool { return h.sink.count() == 1 }) {
		t.Fatal("Imported was not emitted")
	}
	if _, ok := h.sink.events[0].(Imported); !ok {
		t.Fatalf("event %T, want Imported", h.sink.events[0])
	}
	if tracked, _ := h.orch.Tracker.Get(42); tracked.Stage != domain.StageImported {
		t.Fatalf("stage = %s, want imported", tracked.Stage)
	}

	h.orch.handle(ctx, h.sink.events[0])
	if !waitFor(func() bool { _, ok := h.orch.Tracker.Get(42); return !ok }) {
		t.Fatal("transfer still tracked after seeding finished")
	}
	if err := h.orch.Supervisor.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if h.sink.count() != 1 {
		t.Fatalf("seeding watcher emitted events: %d", h.sink.count())
	}
}

func TestOrchestratorMarksFailedImport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newOrchestratorHarness(t, ctx, 1)

	h.orch.handle(ctx, Downloaded{Transfer: scenarioTransfer()})
	if err := h.orch.Supervisor.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	tracked, _ := h.orch.Tracker.Get(42)
	if tracked.Stage != domain.StageFailed {
		t.Fatalf("stage = %s, want failed", tracked.Stage)
	}
	if h.sink.count() != 0 {
		t.Fatal("Imported emitted for a missing path")
	}
	records, _ := h.failures.List(ctx)
	if len(records) != 1 || records[0].TransferID != 42 || records[0].Attempts != 1 {
		t.Fatalf("records = %+v, want one record for 42", records)
	}
	if !strings.Contains(records[0].Reason, domain.ErrUnexpectedPath.Error()) {
		t.Fatalf("reason = %q", records[0].Reason)
	}
}

func TestOrchestratorDeadLettersSeedingFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newOrchestratorHarness(t, ctx, 1)
	h.remote.removeErr = errBoom

	h.orch.handle(ctx, Imported{Transfer: scenarioTransfer()})
	if err := h.orch.Supervisor.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	records, _ := h.failures.List(ctx)
	if len(records) != 1 || !strings.Contains(records[0].Reason, "boom") {
		t.Fatalf("records = %+v", records)
	}
	if tracked, _ := h.orch.Tracker.Get(42); tracked.Stage != domain.StageFailed {
		t.Fatalf("stage = %s, want failed", tracked.Stage)
	}
}

func TestOrchestratorCancelledWatcherIsNotDeadLettered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newOrchestratorHarness(t, ctx, 1)
	h.oracle.answers = []bool{false}

	watchCtx, stopWatchers := context.WithCancel(ctx)
	h.orch.handle(watchCtx, Downloaded{Transfer: scenarioTransfer()})
	if !waitFor(func() bool { return h.oracle.callCount() > 0 }) {
		t.Fatal("import watcher did not start")
	}
	stopWatchers()
	if err := h.orch.Supervisor.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if records, _ := h.failures.List(ctx); len(records) != 0 {
		t.Fatalf("records = %+v, want none", records)
	}
}

func TestOrchestratorDeadLettersUnsafeNames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newOrchestratorHarness(t, ctx, 1)
	h.remote.folder(100, "Season 01",
		domain.RemoteFile{ID: 101, Name: "../../etc/evil.mkv", Type: domain.FileTypeVideo},
	)

	h.orch.handle(ctx, QueuedForDownload{Transfer: queuedScenario()})

	if h.sink.count() != 0 {
		t.Fatalf("emitted %d events", h.sink.count())
	}
	if len(h.storage.dirs)+len(h.storage.written) != 0 {
		t.Fatalf("local writes: dirs=%v files=%v", h.storage.dirs, h.storage.written)
	}
	h.mu.Lock()
	forgotten := len(h.forgotten)
	h.mu.Unlock()
	if forgotten != 0 {
		t.Fatal("unsafe transfer must stay seen so it is not replanned")
	}
	records, _ := h.failures.List(ctx)
	if len(records) != 1 || !strings.Contains(records[0].Reason, domain.ErrUnsafePath.Error()) {
		t.Fatalf("records = %+v", records)
	}
	if tracked, _ := h.orch.Tracker.Get(42); tracked.Stage != domain.StageFailed {
		t.Fatalf("stage = %s, want failed", tracked.Stage)
	}
}

func TestOrchestratorRunReturnsOnClosedStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newOrchestratorHarness(t, ctx, 1)
	events := make(chan Event)
	close(events)

	done := make(chan struct{})
	go func() {
		h.orch.Run(ctx, events)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
