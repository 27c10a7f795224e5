package ports

import (
	"context"

	"github.com/elsbrock/putioarr/internal/domain"
)

// RemoteTransferClient is the subset of the remote service API the pipeline
// consumes.
type RemoteTransferClient interface {
	ListTransfers(ctx context.Context) ([]domain.RemoteTransfer, error)
	GetTransfer(ctx context.Context, id domain.TransferID) (domain.RemoteTransfer, error)
	ListFiles(ctx context.Context, parent domain.FileID) (domain.FileListing, error)
	DownloadURL(ctx context.Context, id domain.FileID) (string, error)
	RemoveTransfer(ctx context.Context, id domain.TransferID) error
	DeleteFile(ctx context.Context, id domain.FileID) error
}
