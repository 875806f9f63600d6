package errors

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrConnectivity indicates the generation service or an index is unreachable
	ErrConnectivity = errors.New("service unreachable")

	// ErrGeneration indicates structured generation failed after exhausting retries
	ErrGeneration = errors.New("generation failed")

	// ErrGrounding indicates model output broke a grounding or cardinality invariant
	ErrGrounding = errors.New("grounding violation")

	// ErrQueryCount indicates fewer search queries than required were generated
	ErrQueryCount = errors.New("query count below required")

	// ErrQuestionCount indicates the question stage returned the wrong number of questions
	ErrQuestionCount = errors.New("wrong question count")

	// ErrQuestionLength indicates a generated question exceeds the length limit
	ErrQuestionLength = errors.New("question too long")

	// ErrCitation indicates a report sentence cites an identifier outside the allowed set
	ErrCitation = errors.New("citation outside allowed set")

	// ErrAllChunksFailed indicates every fallback report chunk failed
	ErrAllChunksFailed = errors.New("all report chunks failed")
)

// Is, As and New re-export the standard helpers so callers can import a single package.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)

// GenerationError is returned when the structured generation client gives up.
// LastRaw holds the final raw model output for diagnostics.
type GenerationError struct {
	Stage    string
	Attempts int
	LastRaw  string
	Err      error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("%s: generation failed after %d attempts", e.Stage, e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.LastRaw != "" {
		msg += fmt.Sprintf(" (last response: %q)", clip(e.LastRaw, 500))
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is reports ErrGeneration so callers can match without a type assertion.
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// GroundingError identifies the stage and the structural invariant that failed.
type GroundingError struct {
	Stage     string
	Invariant string
	Detail    string
	Err       error
}

// NewGroundingError builds a GroundingError wrapping one of the sentinel causes.
func NewGroundingError(stage, invariant string, cause error, format string, args ...any) *GroundingError {
	return &GroundingError{
		Stage:     stage,
		Invariant: invariant,
		Detail:    fmt.Sprintf(format, args...),
		Err:       cause,
	}
}

func (e *GroundingError) Error() string {
	return fmt.Sprintf("%s: %s violated: %s", e.Stage, e.Invariant, e.Detail)
}

func (e *GroundingError) Unwrap() error { return e.Err }

func (e *GroundingError) Is(target error) bool { return target == ErrGrounding }

// Fatal reports whether err must stop the current article instead of being
// degraded: the service is unreachable or the caller gave up.
func Fatal(err error) bool {
	return errors.Is(err, ErrConnectivity) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
