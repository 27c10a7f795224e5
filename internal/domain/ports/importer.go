package ports

import "context"

// ImportOracle answers whether a downstream media tool has consumed a local
// path.
type ImportOracle interface {
	IsImported(ctx context.Context, path string) (bool, error)
}
