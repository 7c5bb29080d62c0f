package config

import (
	"os"
	"strconv"
	"sync"
	"time"
)

// UploadConfig bounds what the intake endpoint will accept and how hard the
// extractor is allowed to work on one file.
type UploadConfig struct {
	MaxFileSize       int64 // bytes
	MaxPages          int
	MaxTextLength     int
	MinTextLength     int
	ExtractTimeout    time.Duration
	UploadsPerMinute  int // per-user sliding window
	EstimatedDuration time.Duration
}

var (
	uploadConfig *UploadConfig
	uploadOnce   sync.Once
)

func LoadUploadConfig() *UploadConfig {
	uploadOnce.Do(func() {
		maxSize := int64(10 * 1024 * 1024)
		if v, err := strconv.ParseInt(os.Getenv("UPLOAD_MAX_BYTES"), 10, 64); err == nil && v > 0 {
			maxSize = v
		}
		perMinute := 5
		if v, err := strconv.Atoi(os.Getenv("UPLOADS_PER_MINUTE")); err == nil && v > 0 {
			perMinute = v
		}
		uploadConfig = &UploadConfig{
			MaxFileSize:       maxSize,
			MaxPages:          20,
			MaxTextLength:     50000,
			MinTextLength:     150,
			ExtractTimeout:    30 * time.Second,
			UploadsPerMinute:  perMinute,
			EstimatedDuration: 45 * time.Second,
		}
	})
	return uploadConfig
}
