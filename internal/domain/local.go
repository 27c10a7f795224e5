package domain

// PathKind classifies a local filesystem path.
type PathKind int

const (
	PathMissing PathKind = iota
	PathFile
	PathDirectory
	PathOther
)

func (k PathKind) String() string {
	switch k {
	case PathMissing:
		return "missing"
	case PathFile:
		return "file"
	case PathDirectory:
		return "directory"
	default:
		return "other"
	}
}
