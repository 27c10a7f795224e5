package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/elsbrock/putioarr/internal/domain"
	"github.com/elsbrock/putioarr/internal/domain/ports"
	"github.com/elsbrock/putioarr/internal/metrics"
)

// DownloadWorker executes dispatched targets one at a time. Every dispatch
// receives exactly one outcome on its reply channel.
type DownloadWorker struct {
	Storage ports.LocalStorage
	Logger  *slog.Logger
}

func (w DownloadWorker) Run(ctx context.Context, dispatches <-chan dispatch) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-dispatches:
			if !ok {
				return
			}
			d.reply <- w.execute(ctx, d.target)
		}
	}
}

func (w DownloadWorker) execute(ctx context.Context, target domain.DownloadTarget) (outcome DownloadOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = DownloadFailed{Target: target, Err: fmt.Errorf("panic: %v", r)}
		}
		switch o := outcome.(type) {
		case DownloadSucceeded:
			metrics.TargetsTotal.WithLabelValues(string(target.Kind), "success").Inc()
			metrics.DownloadedBytesTotal.Add(float64(o.Bytes))
		case DownloadFailed:
			metrics.TargetsTotal.WithLabelValues(string(target.Kind), "failed").Inc()
			w.Logger.Warn("download: target failed",
				slog.String("target", target.String()),
				slog.String("error", o.Err.Error()),
			)
		}
	}()

	switch target.Kind {
	case domain.TargetDirectory:
		if err := w.Storage.CreateDir(target.To); err != nil {
			return DownloadFailed{Target: target, Err: err}
		}
		w.Logger.Debug("download: directory created", slog.String("target", target.String()))
		return DownloadSucceeded{Target: target}
	case domain.TargetFile:
		w.Logger.Info("download: started", slog.String("target", target.String()))
		n, err := w.Storage.WriteStream(ctx, target.From, target.To)
		if err != nil {
			return DownloadFailed{Target: target, Err: err}
		}
		w.Logger.Info("download: done", slog.String("target", target.String()), slog.Int64("bytes", n))
		return DownloadSucceeded{Target: target, Bytes: n}
	default:
		return DownloadFailed{Target: target, Err: fmt.Errorf("unknown target kind %q", target.Kind)}
	}
}
