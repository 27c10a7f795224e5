package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/elsbrock/putioarr/internal/domain"
	"github.com/elsbrock/putioarr/internal/domain/ports"
)

// ImportWatcher waits until a downloaded transfer has been imported
// downstream and then removes its local artifact.
type ImportWatcher struct {
	Oracle  ports.ImportOracle
	Storage ports.LocalStorage
	// Root, when set, is the directory every deleted path must lie below.
	Root     string
	Interval time.Duration
	Logger   *slog.Logger
}

// Watch returns nil once the top-level path has been deleted. Filesystem
// anomalies end only this watcher.
func (w ImportWatcher) Watch(ctx context.Context, t domain.Transfer) error {
	top, ok := t.TopLevel()
	if !ok {
		return fmt.Errorf("%s: %w", t, domain.ErrNoTopLevelTarget)
	}
	if w.Root != "" && !withinDir(w.Root, top.To) {
		return fmt.Errorf("%s: %w: %s is outside %s", t, domain.ErrUnsafePath, top.To, w.Root)
	}
	w.Logger.Info("import: watching", slog.String("transfer", t.String()))

	if err := poll(ctx, w.Interval, func() bool { return w.imported(ctx, t) }); err != nil {
		return err
	}
	w.Logger.Info("import: imported", slog.String("transfer", t.String()))

	kind, err := w.Storage.Stat(top.To)
	if err != nil {
		return fmt.Errorf("%s: stat %s: %w", t, top.To, err)
	}
	switch kind {
	case domain.PathDirectory:
		err = w.Storage.RemoveAll(top.To)
	case domain.PathFile:
		err = w.Storage.Remove(top.To)
	default:
		return fmt.Errorf("%s: %s is %s: %w", t, top.To, kind, domain.ErrUnexpectedPath)
	}
	if err != nil {
		return fmt.Errorf("%s: delete %s: %w", t, top.To, err)
	}
	w.Logger.Info("import: deleted", slog.String("target", top.String()))
	return nil
}

// imported reports whether every file of the transfer was picked up. The
// download clients only record files, so a transfer without file targets
// has nothing left to import.
func (w ImportWatcher) imported(ctx context.Context, t domain.Transfer) bool {
	paths := make([]string, 0, len(t.Targets))
	for _, target := range t.Targets {
		if target.Kind == domain.TargetFile {
			paths = append(paths, target.To)
		}
	}
	if len(paths) == 0 {
		w.Logger.Info("import: no files to import", slog.String("transfer", t.String()))
		return true
	}
	for _, path := range paths {
		ok, err := w.Oracle.IsImported(ctx, path)
		if err != nil {
			w.Logger.Warn("import: check failed",
				slog.String("transfer", t.String()),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// poll calls check immediately and then once per interval until it returns
// true or ctx is done.
func poll(ctx context.Context, interval time.Duration, check func() bool) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	for {
		if check() {
			return nil
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
