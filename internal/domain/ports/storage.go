package ports

import (
	"context"

	"github.com/elsbrock/putioarr/internal/domain"
)

type LocalStorage interface {
	CreateDir(path string) error
	// WriteStream fetches source and writes it to path, returning the
	// number of bytes written.
	WriteStream(ctx context.Context, source, path string) (int64, error)
	Stat(path string) (domain.PathKind, error)
	Remove(path string) error
	RemoveAll(path string) error
}
