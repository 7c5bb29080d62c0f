package service

import "fmt"

// ExtractionError marks a PDF whose text could not be extracted or is too
// low-quality to score. Terminal for the analysis run.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

// TimeoutError marks a stage that exceeded its wall-clock bound.
type TimeoutError struct {
	Stage string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out", e.Stage)
}

// AIError wraps a failure from the model API with its retry classification.
type AIError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *AIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ai service error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ai service error: %s", e.Message)
}
