package importer

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyHeader: the file has no header row, or every header field is blank.
	ErrEmptyHeader = errors.New("importer: empty header")

	// ErrNoColumns: header fields exist but none normalizes to an identifier.
	ErrNoColumns = errors.New("importer: no usable columns in header")

	// ErrDuplicateColumn: two header fields normalize to the same identifier.
	ErrDuplicateColumn = errors.New("importer: duplicate column")
)

// Stage names where a file failed.
type Stage string

const (
	StageRead   Stage = "read"
	StageSchema Stage = "schema"
	StageInsert Stage = "insert"
	StageCommit Stage = "commit"
)

// FileError is the per-file failure reported in Outcome.Err.
type FileError struct {
	Stage Stage
	File  string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("importer: %s: %s: %v", e.File, e.Stage, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// StageOf returns the stage of a *FileError in err's chain, or "".
func StageOf(err error) Stage {
	var fe *FileError
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return ""
}
