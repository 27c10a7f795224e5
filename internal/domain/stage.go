package domain

import "time"

// Stage is the pipeline position of a tracked transfer.
type Stage string

const (
	StageQueued      Stage = "queued"
	StageDownloading Stage = "downloading"
	StageDownloaded  Stage = "downloaded"
	StageImported    Stage = "imported"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// LocallyComplete reports whether every target of the transfer is on disk
// or has already been consumed downstream.
func (s Stage) LocallyComplete() bool {
	return s == StageDownloaded || s == StageImported || s == StageDone
}

type TrackedTransfer struct {
	Transfer  Transfer  `json:"transfer"`
	Stage     Stage     `json:"stage"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StartupContext carries values resolved once before the pipeline starts.
type StartupContext struct {
	RootFolderID FileID
}
