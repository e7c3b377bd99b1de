package syncer

import "errors"

// Validation failures, surfaced immediately with no retry.
var (
	ErrEmptyRelPath = errors.New("relPath is required")
	ErrPathEscape   = errors.New("relPath escapes the folder namespace")

	// ErrFolderNotFound means the local directory for a full sync does not
	// exist.
	ErrFolderNotFound = errors.New("folder path not found")
)

// StorageError wraps a backend failure. The ingest that produced it performed
// no metadata mutation, so the caller may retry the whole ingest.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a client-input problem.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyRelPath) || errors.Is(err, ErrPathEscape)
}
