package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jobhive/cv-insight/internal/config"
	"github.com/jobhive/cv-insight/internal/model"
	"google.golang.org/genai"
)

// GeminiService is the Gemini-backed AI client. It also produces embeddings
// for job-description retrieval.
type GeminiService struct {
	client     *genai.Client
	model      string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	timeout    time.Duration
	maxTokens  int
}

func NewGeminiService(ctx context.Context, cfg *config.AIConfig) (*GeminiService, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiService{
		client:     client,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		timeout:    cfg.RequestTimeout,
		maxTokens:  cfg.MaxOutputTokens,
	}, nil
}

func (s *GeminiService) GenerateAnalysis(ctx context.Context, prompt string) (*AnalysisResult, *model.Usage, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, nil, &AIError{Message: "prompt cannot be empty", Retryable: false}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(s.baseDelay, s.maxDelay, attempt)
			log.Printf("Retry attempt %d/%d for GenerateContent after %v", attempt, s.maxRetries, delay)
			select {
			case <-time.After(delay):
			case <-timeoutCtx.Done():
				return nil, nil, &TimeoutError{Stage: "ai call"}
			}
		}

		genConfig := &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(0.1)),
			MaxOutputTokens: int32(s.maxTokens),
		}
		resp, err := s.client.Models.GenerateContent(timeoutCtx, s.model, genai.Text(prompt), genConfig)
		if err != nil {
			if timeoutCtx.Err() != nil {
				return nil, nil, &TimeoutError{Stage: "ai call"}
			}
			if !s.isRetryableError(err) {
				return nil, nil, &AIError{Message: err.Error(), Retryable: false}
			}
			lastErr = err
			log.Printf("Retryable error on attempt %d: %v", attempt+1, err)
			continue
		}

		text := resp.Text()
		if strings.TrimSpace(text) == "" {
			lastErr = &AIError{Message: "empty completion in response", Retryable: true}
			continue
		}

		result := ParseAnalysisResult(text)
		usage := &model.Usage{
			Model:      s.model,
			DurationMS: time.Since(start).Milliseconds(),
		}
		if resp.UsageMetadata != nil {
			usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
		}
		usage.CostUSD = EstimateCost(s.model, usage.PromptTokens, usage.CompletionTokens)
		return result, usage, nil
	}

	return nil, nil, fmt.Errorf("max retries (%d) exceeded for GenerateContent: %w", s.maxRetries, lastErr)
}

// GenerateEmbedding returns the embedding vector for text, truncating inputs
// beyond the provider's recommended length.
func (s *GeminiService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("text for embedding cannot be empty")
	}
	if len(trimmed) > 10000 {
		trimmed = trimmed[:10000]
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content := []*genai.Content{genai.NewContentFromText(trimmed, genai.RoleUser)}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(s.baseDelay, s.maxDelay, attempt)
			select {
			case <-time.After(delay):
			case <-timeoutCtx.Done():
				return nil, fmt.Errorf("context timeout during retry: %w", timeoutCtx.Err())
			}
		}

		resp, err := s.client.Models.EmbedContent(timeoutCtx, "gemini-embedding-001", content, nil)
		if err != nil {
			if !s.isRetryableError(err) {
				return nil, fmt.Errorf("generate embedding failed: %w", err)
			}
			lastErr = err
			continue
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
			return nil, fmt.Errorf("empty embedding returned")
		}
		return resp.Embeddings[0].Values, nil
	}

	return nil, fmt.Errorf("max retries (%d) exceeded for EmbedContent: %w", s.maxRetries, lastErr)
}

func (s *GeminiService) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := err.(*genai.APIError); ok {
		return retryableStatus(apiErr.Code)
	}
	return retryableNetError(err)
}
