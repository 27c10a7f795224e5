package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/elsbrock/putioarr/internal/domain"
)

const (
	dirPerm     = 0o755
	filePerm    = 0o644
	partSuffix  = ".part"
	copyBufSize = 1 << 20
)

type Config struct {
	Client *http.Client
	// OwnerUID, when >= 0, is applied to every created file and directory.
	OwnerUID int
	OwnerGID int
	Logger   *slog.Logger
}

// Storage implements the pipeline's filesystem primitives on the local
// disk.
type Storage struct {
	http   *http.Client
	uid    int
	gid    int
	logger *slog.Logger
}

func New(cfg Config) *Storage {
	client := cfg.Client
	if client == nil {
		// No overall timeout: files can be many gigabytes.
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{http: client, uid: cfg.OwnerUID, gid: cfg.OwnerGID, logger: logger}
}

func (s *Storage) CreateDir(path string) error {
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return fmt.Errorf("create dir %s: %w", path, err)
	}
	return s.chown(path)
}

// WriteStream downloads source into path and returns the number of bytes
// fetched. The body is written to a sibling ".part" file and renamed on
// success. An existing regular file at path is kept and counts as zero
// bytes.
func (s *Storage) WriteStream(ctx context.Context, source, path string) (int64, error) {
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		s.logger.Debug("storage: file exists, skipping",
			slog.String("path", path),
			slog.Int64("size", info.Size()),
		)
		return 0, nil
	}
	if err := s.CreateDir(filepath.Dir(path)); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch %s: status %d", path, resp.StatusCode)
	}

	part := path + partSuffix
	f, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", part, err)
	}
	n, copyErr := io.CopyBuffer(f, resp.Body, make([]byte, copyBufSize))
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(part)
		return n, fmt.Errorf("write %s: %w", part, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		_ = os.Remove(part)
		return n, fmt.Errorf("write %s: short body: got %d of %d bytes", part, n, resp.ContentLength)
	}
	if err := os.Rename(part, path); err != nil {
		_ = os.Remove(part)
		return n, fmt.Errorf("rename %s: %w", part, err)
	}
	return n, s.chown(path)
}

func (s *Storage) Stat(path string) (domain.PathKind, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.PathMissing, nil
		}
		return domain.PathMissing, err
	}
	switch {
	case info.IsDir():
		return domain.PathDirectory, nil
	case info.Mode().IsRegular():
		return domain.PathFile, nil
	default:
		return domain.PathOther, nil
	}
}

func (s *Storage) Remove(path string) error {
	return os.Remove(path)
}

func (s *Storage) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (s *Storage) chown(path string) error {
	if s.uid < 0 {
		return nil
	}
	gid := s.gid
	if gid < 0 {
		gid = s.uid
	}
	if err := os.Lchown(path, s.uid, gid); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	return nil
}
