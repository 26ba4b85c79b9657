// Package app runs duomark in a terminal: it owns the document, routes
// tcell events into the pipeline session and manages the lifecycle.
package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrQuit signals that the application should exit normally.
	ErrQuit = errors.New("quit requested")

	// ErrAlreadyRunning indicates Run was called twice.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrNoScreen indicates Run was called before SetScreen.
	ErrNoScreen = errors.New("no screen attached")

	// ErrNoFilePath indicates a save of a buffer without a file.
	ErrNoFilePath = errors.New("document has no file path")

	// ErrReadOnly indicates an edit or save of a read-only document.
	ErrReadOnly = errors.New("document is read-only")
)

// FileError is a failed file operation.
type FileError struct {
	Op   string // "open" or "save"
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
