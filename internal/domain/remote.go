package domain

import "time"

// RemoteStatus is the transfer status reported by the remote service.
type RemoteStatus string

const (
	RemoteInQueue           RemoteStatus = "IN_QUEUE"
	RemoteWaiting           RemoteStatus = "WAITING"
	RemotePreparingDownload RemoteStatus = "PREPARING_DOWNLOAD"
	RemoteDownloading       RemoteStatus = "DOWNLOADING"
	RemoteCompleting        RemoteStatus = "COMPLETING"
	RemoteSeeding           RemoteStatus = "SEEDING"
	RemoteCompleted         RemoteStatus = "COMPLETED"
	RemoteError             RemoteStatus = "ERROR"
)

// Finished reports whether the remote side holds the complete payload.
func (s RemoteStatus) Finished() bool {
	return s == RemoteSeeding || s == RemoteCompleted
}

type RemoteTransfer struct {
	ID             TransferID
	Name           string
	Status         RemoteStatus
	FileID         FileID
	Hash           string
	SaveParentID   FileID
	Size           int64
	Downloaded     int64
	PercentDone    int
	EstimatedTime  int64
	SecondsSeeding int64
	ErrorMessage   string
	CreatedAt      time.Time
}

func (t RemoteTransfer) Downloadable() bool {
	return t.FileID != 0
}

type FileType string

const (
	FileTypeFolder FileType = "FOLDER"
	FileTypeVideo  FileType = "VIDEO"
)

type RemoteFile struct {
	ID          FileID
	Name        string
	Type        FileType
	ContentType string
	Size        int64
}

// FileListing is a remote node together with its immediate children.
type FileListing struct {
	Parent RemoteFile
	Files  []RemoteFile
}
