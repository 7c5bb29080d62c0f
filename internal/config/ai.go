package config

import (
	"os"
	"strconv"
	"sync"
	"time"
)

// AIConfig selects the LLM provider and tunes the retry policy shared by both.
type AIConfig struct {
	Provider         string // "gemini" or "openrouter"
	GeminiAPIKey     string
	OpenRouterAPIKey string
	Model            string
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	RequestTimeout   time.Duration
	MaxOutputTokens  int
}

var (
	aiConfig *AIConfig
	aiOnce   sync.Once
)

func LoadAIConfig() *AIConfig {
	aiOnce.Do(func() {
		provider := os.Getenv("AI_PROVIDER")
		if provider == "" {
			provider = "gemini"
		}
		model := os.Getenv("AI_MODEL")
		if model == "" {
			if provider == "gemini" {
				model = "gemini-2.5-flash"
			} else {
				model = "openai/gpt-4o-mini"
			}
		}
		maxRetries := 3
		if v, err := strconv.Atoi(os.Getenv("AI_MAX_RETRIES")); err == nil && v >= 0 {
			maxRetries = v
		}
		aiConfig = &AIConfig{
			Provider:         provider,
			GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
			OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
			Model:            model,
			MaxRetries:       maxRetries,
			BaseDelay:        time.Second,
			MaxDelay:         30 * time.Second,
			RequestTimeout:   90 * time.Second,
			MaxOutputTokens:  4096,
		}
	})
	return aiConfig
}
