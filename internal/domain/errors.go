package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrRemoteQuery      = errors.New("remote query failed")
	ErrNoTopLevelTarget = errors.New("no top-level target")
	ErrUnexpectedPath   = errors.New("unexpected local path state")
	ErrUnsafePath       = errors.New("path escapes the download directory")
)
