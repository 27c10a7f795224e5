package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elsbrock/putioarr/internal/domain"
	"github.com/elsbrock/putioarr/internal/domain/ports"
)

// SeedingWatcher waits until the remote side stops seeding an imported
// transfer and then releases its remote resources.
type SeedingWatcher struct {
	Remote   ports.RemoteTransferClient
	Interval time.Duration
	Logger   *slog.Logger
}

func (w SeedingWatcher) Watch(ctx context.Context, t domain.Transfer) error {
	w.Logger.Info("seeding: watching", slog.String("transfer", t.String()))

	gone := false
	err := poll(ctx, w.Interval, func() bool {
		rt, err := w.Remote.GetTransfer(ctx, t.ID)
		if errors.Is(err, domain.ErrNotFound) {
			gone = true
			return true
		}
		if err != nil {
			w.Logger.Warn("seeding: status check failed",
				slog.String("transfer", t.String()),
				slog.String("error", err.Error()),
			)
			return false
		}
		return rt.Status != domain.RemoteSeeding
	})
	if err != nil {
		return err
	}
	w.Logger.Info("seeding: stopped", slog.String("transfer", t.String()))

	if gone {
		w.Logger.Info("seeding: transfer already removed", slog.String("transfer", t.String()))
	} else {
		if err := w.Remote.RemoveTransfer(ctx, t.ID); err != nil {
			return fmt.Errorf("%s: remove transfer: %w", t, err)
		}
		w.Logger.Info("seeding: removed transfer", slog.String("transfer", t.String()))
	}

	if t.FileID != 0 {
		if err := w.Remote.DeleteFile(ctx, t.FileID); err != nil {
			w.Logger.Warn("seeding: unable to delete remote files",
				slog.String("transfer", t.String()),
				slog.String("error", err.Error()),
			)
		} else {
			w.Logger.Info("seeding: deleted remote files", slog.String("transfer", t.String()))
		}
	}
	return nil
}
