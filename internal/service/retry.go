package service

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/jobhive/cv-insight/internal/model"
)

// AIClient is what the orchestrator depends on. Both providers implement it.
type AIClient interface {
	GenerateAnalysis(ctx context.Context, prompt string) (*AnalysisResult, *model.Usage, error)
}

// calculateBackoff returns the delay before the given retry attempt:
// exponential from baseDelay, capped at maxDelay, plus up to 25% jitter.
// Jitter only ever adds, keeping successive delays non-decreasing.
func calculateBackoff(baseDelay, maxDelay time.Duration, attempt int) time.Duration {
	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(float64(delay) * 0.25)
	return delay + time.Duration(rand.Int63n(int64(jitter)+1))
}

// retryableStatus classifies an HTTP status from the model API. Rate limits
// and server errors are transient; other client errors never are.
func retryableStatus(code int) bool {
	if code == 429 {
		return true
	}
	return code >= 500
}

// retryableNetError matches transport-level failures worth retrying.
func retryableNetError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "context canceled") || strings.Contains(msg, "context deadline exceeded") {
		return false
	}
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporary failure") ||
		strings.Contains(msg, "EOF")
}
