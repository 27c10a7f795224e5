package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/elsbrock/putioarr/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// --- remote ---

type fakeRemote struct {
	mu sync.Mutex

	transfers []domain.RemoteTransfer
	listErr   error
	listCalls int

	listings     map[domain.FileID]domain.FileListing
	listFilesErr map[domain.FileID]error
	listedFiles  []domain.FileID

	statuses []domain.RemoteStatus
	getErr   error
	getCalls int

	removeErr error
	deleteErr error
	calls     []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		listings:     make(map[domain.FileID]domain.FileListing),
		listFilesErr: make(map[domain.FileID]error),
	}
}

// folder registers a folder listing and returns its metadata.
func (f *fakeRemote) folder(id domain.FileID, name string, children ...domain.RemoteFile) domain.RemoteFile {
	node := domain.RemoteFile{ID: id, Name: name, Type: domain.FileTypeFolder}
	f.listings[id] = domain.FileListing{Parent: node, Files: children}
	return node
}

// leaf registers a non-folder node so it can also be listed directly.
func (f *fakeRemote) leaf(id domain.FileID, name string, typ domain.FileType) domain.RemoteFile {
	node := domain.RemoteFile{ID: id, Name: name, Type: typ}
	f.listings[id] = domain.FileListing{Parent: node}
	return node
}

func (f *fakeRemote) setTransfers(ts ...domain.RemoteTransfer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = ts
}

func (f *fakeRemote) ListTransfers(ctx context.Context) ([]domain.RemoteTransfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.RemoteTransfer, len(f.transfers))
	copy(out, f.transfers)
	return out, nil
}

func (f *fakeRemote) GetTransfer(ctx context.Context, id domain.TransferID) (domain.RemoteTransfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	f.calls = append(f.calls, fmt.Sprintf("get %d", id))
	if f.getErr != nil {
		return domain.RemoteTransfer{}, f.getErr
	}
	if len(f.statuses) == 0 {
		return domain.RemoteTransfer{ID: id, Status: domain.RemoteCompleted}, nil
	}
	i := f.getCalls - 1
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return domain.RemoteTransfer{ID: id, Status: f.statuses[i]}, nil
}

func (f *fakeRemote) ListFiles(ctx context.Context, parent domain.FileID) (domain.FileListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listedFiles = append(f.listedFiles, parent)
	if err := f.listFilesErr[parent]; err != nil {
		return domain.FileListing{}, err
	}
	listing, ok := f.listings[parent]
	if !ok {
		return domain.FileListing{}, domain.ErrNotFound
	}
	return listing, nil
}

func (f *fakeRemote) DownloadURL(ctx context.Context, id domain.FileID) (string, error) {
	return fmt.Sprintf("https://dl.example/%d", id), nil
}

func (f *fakeRemote) RemoveTransfer(ctx context.Context, id domain.TransferID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("remove %d", id))
	return f.removeErr
}

func (f *fakeRemote) DeleteFile(ctx context.Context, id domain.FileID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("delete %d", id))
	return f.deleteErr
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// --- storage ---

type fakeStorage struct {
	mu sync.Mutex

	dirs       []string
	written    []string
	writeErr   map[string]error
	kinds      map[string]domain.PathKind
	statErr    error
	removed    []string
	removedAll []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		writeErr: make(map[string]error),
		kinds:    make(map[string]domain.PathKind),
	}
}

func (f *fakeStorage) CreateDir(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs = append(f.dirs, path)
	if _, ok := f.kinds[path]; !ok {
		f.kinds[path] = domain.PathDirectory
	}
	return nil
}

func (f *fakeStorage) WriteStream(ctx context.Context, source, path string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr[path]; err != nil {
		return 0, err
	}
	f.written = append(f.written, path)
	f.kinds[path] = domain.PathFile
	return 1024, nil
}

func (f *fakeStorage) Stat(path string) (domain.PathKind, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statErr != nil {
		return domain.PathMissing, f.statErr
	}
	kind, ok := f.kinds[path]
	if !ok {
		return domain.PathMissing, nil
	}
	return kind, nil
}

func (f *fakeStorage) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	delete(f.kinds, path)
	return nil
}

func (f *fakeStorage) RemoveAll(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedAll = append(f.removedAll, path)
	delete(f.kinds, path)
	return nil
}

func (f *fakeStorage) removedAllPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.removedAll))
	copy(out, f.removedAll)
	return out
}

// --- oracle ---

type fakeOracle struct {
	mu      sync.Mutex
	answers []bool
	err     error
	calls   int
	paths   []string
}

func (f *fakeOracle) IsImported(ctx context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.paths = append(f.paths, path)
	if f.err != nil {
		return false, f.err
	}
	if len(f.answers) == 0 {
		return true, nil
	}
	i := f.calls - 1
	if i >= len(f.answers) {
		i = len(f.answers) - 1
	}
	return f.answers[i], nil
}

func (f *fakeOracle) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// --- failures ---

type fakeFailures struct {
	mu      sync.Mutex
	records []domain.FailedTransfer
	err     error
}

func (f *fakeFailures) Record(ctx context.Context, ft domain.FailedTransfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, ft)
	return nil
}

func (f *fakeFailures) List(ctx context.Context) ([]domain.FailedTransfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.FailedTransfer, len(f.records))
	copy(out, f.records)
	return out, nil
}

var errBoom = errors.New("boom")

// waitFor polls cond until it holds or the deadline passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
