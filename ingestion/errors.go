package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrPipelineClosed is returned when work is submitted after Release.
	ErrPipelineClosed = errors.New("pipeline closed")
)

// Pipeline stages, as reported in StageError and logs.
const (
	StageParse    = "parse"
	StageClassify = "classify"
	StageChunk    = "chunk"
	StageEmbed    = "embed"
	StagePersist  = "persist"
	StageIndex    = "index"
)

// StageError records the pipeline stage a document failed in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Stage returns the stage recorded in err, or "" if err carries none.
func Stage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

func stageError(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
