package domain

import "fmt"

type TransferID int64

// FileID identifies a file or folder on the remote service. Zero means absent.
type FileID int64

const unknownHash = "0000"

// Transfer is one remote download job moving through the pipeline.
type Transfer struct {
	ID      TransferID       `json:"id"`
	Name    string           `json:"name"`
	Hash    string           `json:"hash,omitempty"`
	FileID  FileID           `json:"fileId,omitempty"`
	Targets []DownloadTarget `json:"targets,omitempty"`
	Attempt int              `json:"attempt"`
}

// TransferFromRemote builds a pipeline transfer from a remote listing entry.
func TransferFromRemote(rt RemoteTransfer) Transfer {
	return Transfer{
		ID:     rt.ID,
		Name:   rt.Name,
		Hash:   rt.Hash,
		FileID: rt.FileID,
	}
}

// Downloadable reports whether the remote side exposes a root file.
func (t Transfer) Downloadable() bool {
	return t.FileID != 0
}

// TopLevel returns the target that represents the transfer's root local path.
func (t Transfer) TopLevel() (DownloadTarget, bool) {
	for _, target := range t.Targets {
		if target.TopLevel {
			return target, true
		}
	}
	return DownloadTarget{}, false
}

func (t Transfer) ShortHash() string {
	return ShortHash(t.Hash)
}

func (t Transfer) String() string {
	return fmt.Sprintf("[%s: %s]", t.ShortHash(), t.Name)
}

// ShortHash returns the first four characters of a content hash for log
// correlation.
func ShortHash(hash string) string {
	if hash == "" {
		return unknownHash
	}
	if len(hash) < 4 {
		return hash
	}
	return hash[:4]
}
