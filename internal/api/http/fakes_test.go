package apihttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/elsbrock/putioarr/internal/domain"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

var errBoom = errors.New("boom")

type fakeRemote struct {
	mu        sync.Mutex
	transfers []domain.RemoteTransfer
	listErr   error
	removeErr error
	added     domain.RemoteTransfer
	calls     []string
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) ListTransfers(context.Context) ([]domain.RemoteTransfer, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.transfers, nil
}

func (f *fakeRemote) AddTransfer(_ context.Context, link string, parent domain.FileID) (domain.RemoteTransfer, error) {
	f.record(fmt.Sprintf("add %s %d", link, parent))
	return f.added, nil
}

func (f *fakeRemote) UploadTorrent(_ context.Context, filename string, data []byte, parent domain.FileID) (domain.RemoteTransfer, error) {
	f.record(fmt.Sprintf("upload %s %d", filename, parent))
	return f.added, nil
}

func (f *fakeRemote) RemoveTransfer(_ context.Context, id domain.TransferID) error {
	f.record(fmt.Sprintf("remove %d", id))
	return f.removeErr
}

func (f *fakeRemote) DeleteFile(_ context.Context, id domain.FileID) error {
	f.record(fmt.Sprintf("delete %d", id))
	return nil
}

type fakePipeline struct {
	mu       sync.Mutex
	tracked  map[domain.TransferID]domain.TrackedTransfer
	failed   []domain.FailedTransfer
	enqueued []domain.Transfer
	watchers map[string]int
}

func (f *fakePipeline) Enqueue(_ context.Context, t domain.Transfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, t)
	return nil
}

func (f *fakePipeline) Snapshot() []domain.TrackedTransfer {
	out := make([]domain.TrackedTransfer, 0, len(f.tracked))
	for _, tt := range f.tracked {
		out = append(out, tt)
	}
	return out
}

func (f *fakePipeline) Lookup(id domain.TransferID) (domain.TrackedTransfer, bool) {
	tt, ok := f.tracked[id]
	return tt, ok
}

func (f *fakePipeline) FailedTransfers(context.Context) ([]domain.FailedTransfer, error) {
	return f.failed, nil
}

func (f *fakePipeline) Watchers(kind string) int {
	return f.watchers[kind]
}

func (f *fakePipeline) enqueuedTransfers() []domain.Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Transfer(nil), f.enqueued...)
}
