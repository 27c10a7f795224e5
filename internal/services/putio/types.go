package putio

import (
	"strings"
	"time"

	"github.com/elsbrock/putioarr/internal/domain"
)

type AccountInfo struct {
	Username      string `json:"username"`
	Mail          string `json:"mail"`
	AccountActive bool   `json:"account_active"`
	UserID        int64  `json:"user_id"`
	Disk          struct {
		Avail int64 `json:"avail"`
		Size  int64 `json:"size"`
		Used  int64 `json:"used"`
	} `json:"disk"`
}

type accountInfoResponse struct {
	Info AccountInfo `json:"info"`
}

type transferJSON struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	FileID         *int64  `json:"file_id"`
	Hash           *string `json:"hash"`
	SaveParentID   *int64  `json:"save_parent_id"`
	Size           *int64  `json:"size"`
	Downloaded     *int64  `json:"downloaded"`
	PercentDone    *int    `json:"percent_done"`
	EstimatedTime  *int64  `json:"estimated_time"`
	SecondsSeeding *int64  `json:"seconds_seeding"`
	ErrorMessage   *string `json:"error_message"`
	CreatedAt      string  `json:"created_at"`
}

type listTransfersResponse struct {
	Transfers []transferJSON `json:"transfers"`
}

type transferResponse struct {
	Transfer transferJSON `json:"transfer"`
}

type fileJSON struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FileType    string `json:"file_type"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	ParentID    int64  `json:"parent_id"`
}

type listFilesResponse struct {
	Parent fileJSON   `json:"parent"`
	Files  []fileJSON `json:"files"`
}

type fileResponse struct {
	File fileJSON `json:"file"`
}

type urlResponse struct {
	URL string `json:"url"`
}

// uploadResponse is returned by the upload host. Torrent files become a
// transfer; any other file is stored as-is.
type uploadResponse struct {
	Transfer *transferJSON `json:"transfer"`
	File     *fileJSON     `json:"file"`
}

type oobCodeResponse struct {
	Code string `json:"code"`
}

type oobTokenResponse struct {
	OAuthToken string `json:"oauth_token"`
}

// put.io timestamps carry no zone and are UTC.
const timeLayout = "2006-01-02T15:04:05"

func (t transferJSON) toDomain() domain.RemoteTransfer {
	rt := domain.RemoteTransfer{
		ID:             domain.TransferID(t.ID),
		Name:           t.Name,
		Status:         domain.RemoteStatus(strings.ToUpper(t.Status)),
		FileID:         domain.FileID(deref(t.FileID)),
		Hash:           deref(t.Hash),
		SaveParentID:   domain.FileID(deref(t.SaveParentID)),
		Size:           deref(t.Size),
		Downloaded:     deref(t.Downloaded),
		PercentDone:    deref(t.PercentDone),
		EstimatedTime:  deref(t.EstimatedTime),
		SecondsSeeding: deref(t.SecondsSeeding),
		ErrorMessage:   deref(t.ErrorMessage),
	}
	if created, err := time.Parse(timeLayout, t.CreatedAt); err == nil {
		rt.CreatedAt = created.UTC()
	}
	return rt
}

func (f fileJSON) toDomain() domain.RemoteFile {
	return domain.RemoteFile{
		ID:          domain.FileID(f.ID),
		Name:        f.Name,
		Type:        domain.FileType(f.FileType),
		ContentType: f.ContentType,
		Size:        f.Size,
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
