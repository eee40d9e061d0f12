package pipeline

import "fmt"

// GenerationError means the model call itself failed before any code
// existed. There is no fragment to show.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("code generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ExecutionError means a generated fragment failed to run. The fragment and
// the runtime trace travel with the error so the caller can see exactly what
// code misbehaved; swallowing either makes the failure undebuggable.
type ExecutionError struct {
	Fragment string
	Trace    string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("fragment execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
