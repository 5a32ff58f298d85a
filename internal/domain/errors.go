package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentLoad      = errors.New("document load failed")
	ErrNoChunks          = errors.New("document produced no chunks")
	ErrGeneration        = errors.New("answer generation failed")
	ErrEmptyEmbedding    = errors.New("empty embedding")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// LoadError reports a document that could not be read or chunked.
// It matches ErrDocumentLoad with errors.Is and unwraps to the cause.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrDocumentLoad }

// StageError wraps a fatal failure of a pipeline stage other than loading.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
