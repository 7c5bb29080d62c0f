package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jobhive/cv-insight/internal/config"
	"github.com/jobhive/cv-insight/internal/model"
	"github.com/tidwall/gjson"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterService talks to the OpenRouter chat-completions API. Transient
// failures (429, 5xx, network) are retried with exponential backoff; other
// 4xx responses propagate immediately.
type OpenRouterService struct {
	client     *resty.Client
	apiKey     string
	model      string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxTokens  int
}

func NewOpenRouterService(cfg *config.AIConfig) *OpenRouterService {
	client := resty.New().
		SetBaseURL(openRouterBaseURL).
		SetTimeout(cfg.RequestTimeout)
	return &OpenRouterService{
		client:     client,
		apiKey:     cfg.OpenRouterAPIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		maxTokens:  cfg.MaxOutputTokens,
	}
}

// SetBaseURL points the client at a different endpoint. Used by tests.
func (s *OpenRouterService) SetBaseURL(url string) {
	s.client.SetBaseURL(url)
}

func (s *OpenRouterService) GenerateAnalysis(ctx context.Context, prompt string) (*AnalysisResult, *model.Usage, error) {
	if s.apiKey == "" {
		return nil, nil, &AIError{Message: "OPENROUTER_API_KEY not set", Retryable: false}
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(s.baseDelay, s.maxDelay, attempt)
			log.Printf("Retry attempt %d/%d for chat completion after %v", attempt, s.maxRetries, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, nil, &TimeoutError{Stage: "ai call"}
			}
		}

		resp, err := s.client.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+s.apiKey).
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]any{
				"model":       s.model,
				"temperature": 0.1,
				"max_tokens":  s.maxTokens,
				"messages": []map[string]string{
					{"role": "system", "content": "You are an expert resume reviewer. Always answer with a single JSON object."},
					{"role": "user", "content": prompt},
				},
			}).
			Post("/chat/completions")
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, &TimeoutError{Stage: "ai call"}
			}
			if !retryableNetError(err) {
				return nil, nil, &AIError{Message: err.Error(), Retryable: false}
			}
			lastErr = &AIError{Message: err.Error(), Retryable: true}
			continue
		}

		code := resp.StatusCode()
		body := resp.String()
		if code < 200 || code >= 300 {
			message := gjson.Get(body, "error.message").String()
			if message == "" {
				message = fmt.Sprintf("unexpected response (%d bytes)", len(body))
			}
			aiErr := &AIError{StatusCode: code, Message: message, Retryable: retryableStatus(code)}
			if !aiErr.Retryable {
				return nil, nil, aiErr
			}
			lastErr = aiErr
			continue
		}

		content := gjson.Get(body, "choices.0.message.content").String()
		if content == "" {
			lastErr = &AIError{Message: "empty completion in response", Retryable: true}
			continue
		}

		result := ParseAnalysisResult(content)
		promptTokens := int(gjson.Get(body, "usage.prompt_tokens").Int())
		completionTokens := int(gjson.Get(body, "usage.completion_tokens").Int())
		usage := &model.Usage{
			Model:            s.model,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
			DurationMS:       time.Since(start).Milliseconds(),
			CostUSD:          EstimateCost(s.model, promptTokens, completionTokens),
		}
		return result, usage, nil
	}

	return nil, nil, fmt.Errorf("max retries (%d) exceeded for chat completion: %w", s.maxRetries, lastErr)
}
