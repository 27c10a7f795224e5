package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/elsbrock/putioarr/internal/domain"
)

// FailedTransferRepository keeps dead-lettered transfers for the lifetime of
// the process.
type FailedTransferRepository struct {
	mu      sync.RWMutex
	records map[domain.TransferID]domain.FailedTransfer
}

func NewFailedTransferRepository() *FailedTransferRepository {
	return &FailedTransferRepository{records: make(map[domain.TransferID]domain.FailedTransfer)}
}

func (r *FailedTransferRepository) Record(_ context.Context, f domain.FailedTransfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.Targets = append([]string(nil), f.Targets...)
	r.records[f.TransferID] = f
	return nil
}

// List returns the most recent failures first.
func (r *FailedTransferRepository) List(_ context.Context) ([]domain.FailedTransfer, error) {
	r.mu.RLock()
	out := make([]domain.FailedTransfer, 0, len(r.records))
	for _, f := range r.records {
		out = append(out, f)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].FailedAt.Equal(out[j].FailedAt) {
			return out[i].TransferID < out[j].TransferID
		}
		return out[i].FailedAt.After(out[j].FailedAt)
	})
	return out, nil
}
