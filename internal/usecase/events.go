package usecase

import "github.com/elsbrock/putioarr/internal/domain"

// Event is a pipeline message. The set of implementations is closed:
// QueuedForDownload, Downloaded and Imported.
type Event interface {
	transfer() domain.Transfer
}

type QueuedForDownload struct {
	Transfer domain.Transfer
}

// Downloaded carries a transfer whose targets are all on local disk.
type Downloaded struct {
	Transfer domain.Transfer
}

// Imported carries a transfer whose local artifact was consumed and removed.
type Imported struct {
	Transfer domain.Transfer
}

func (e QueuedForDownload) transfer() domain.Transfer { return e.Transfer }
func (e Downloaded) transfer() domain.Transfer        { return e.Transfer }
func (e Imported) transfer() domain.Transfer          { return e.Transfer }

// DownloadOutcome is the result of executing one target. The set of
// implementations is closed: DownloadSucceeded and DownloadFailed.
type DownloadOutcome interface {
	target() domain.DownloadTarget
}

type DownloadSucceeded struct {
	Target domain.DownloadTarget
	Bytes  int64
}

type DownloadFailed struct {
	Target domain.DownloadTarget
	Err    error
}

func (o DownloadSucceeded) target() domain.DownloadTarget { return o.Target }
func (o DownloadFailed) target() domain.DownloadTarget    { return o.Target }

// dispatch pairs a target with its private, single-use reply channel.
type dispatch struct {
	target domain.DownloadTarget
	reply  chan<- DownloadOutcome
}
