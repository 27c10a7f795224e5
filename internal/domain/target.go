package domain

import "fmt"

type TargetKind string

const (
	TargetDirectory TargetKind = "directory"
	TargetFile      TargetKind = "file"
)

// DownloadTarget is one unit of local work: a directory to create or a file
// to fetch. From is empty for directories.
type DownloadTarget struct {
	From         string     `json:"from,omitempty"`
	To           string     `json:"to"`
	Kind         TargetKind `json:"kind"`
	TopLevel     bool       `json:"topLevel"`
	TransferHash string     `json:"transferHash"`
}

func (t DownloadTarget) String() string {
	return fmt.Sprintf("[%s: %s]", ShortHash(t.TransferHash), t.To)
}
