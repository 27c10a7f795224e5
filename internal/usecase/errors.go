package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrNotDownloadable = errors.New("transfer has no remote file")
	ErrPlanning        = errors.New("target planning failed")
	ErrPipelineClosed  = errors.New("pipeline is not accepting transfers")
)

func wrapPlanning(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPlanning, err)
}
