package pipeline

import (
	"errors"
	"fmt"
)

// Stage identifies the pipeline phase that failed. Used to pick the user
// facing error message and the metrics outcome label.
type Stage string

const (
	StageAcquire    Stage = "acquire"
	StageDecode     Stage = "decode"
	StageSegment    Stage = "segment"
	StageTranscribe Stage = "transcribe"
	StageStore      Stage = "store"
	StageDeliver    Stage = "deliver"
)

// StageError wraps a failure with the pipeline stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// FailedStage extracts the stage from a pipeline error. Returns "" when the
// error did not come from a known stage.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
