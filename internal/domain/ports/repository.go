package ports

import (
	"context"

	"github.com/elsbrock/putioarr/internal/domain"
)

type FailedTransferRepository interface {
	Record(ctx context.Context, f domain.FailedTransfer) error
	List(ctx context.Context) ([]domain.FailedTransfer, error)
}
