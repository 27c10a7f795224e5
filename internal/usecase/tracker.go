package usecase

import (
	"sort"
	"sync"
	"time"

	"github.com/elsbrock/putioarr/internal/domain"
)

// Tracker records the pipeline stage of every in-flight transfer so the
// HTTP facade can report status. Pipeline decisions never read from it.
type Tracker struct {
	mu        sync.RWMutex
	transfers map[domain.TransferID]domain.TrackedTransfer
	now       func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		transfers: make(map[domain.TransferID]domain.TrackedTransfer),
		now:       time.Now,
	}
}

func (t *Tracker) Set(tr domain.Transfer, stage domain.Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transfers[tr.ID] = domain.TrackedTransfer{
		Transfer:  tr,
		Stage:     stage,
		UpdatedAt: t.now().UTC(),
	}
}

func (t *Tracker) Remove(id domain.TransferID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.transfers, id)
}

// RemoveIf drops id only while it is tracked at stage.
func (t *Tracker) RemoveIf(id domain.TransferID, stage domain.Stage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.transfers[id]
	if !ok || tr.Stage != stage {
		return false
	}
	delete(t.transfers, id)
	return true
}

func (t *Tracker) Get(id domain.TransferID) (domain.TrackedTransfer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.transfers[id]
	return tr, ok
}

// Snapshot returns all tracked transfers ordered by id.
func (t *Tracker) Snapshot() []domain.TrackedTransfer {
	t.mu.RLock()
	out := make([]domain.TrackedTransfer, 0, len(t.transfers))
	for _, tr := range t.transfers {
		out = append(out, tr)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Transfer.ID < out[j].Transfer.ID })
	return out
}
