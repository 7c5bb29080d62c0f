package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/jobhive/cv-insight/internal/model"
)

// AnalysisSummaryDTO is the history-listing shape: everything except the raw
// extracted text and the storage key.
type AnalysisSummaryDTO struct {
	ID              uuid.UUID             `json:"id"`
	OriginalName    string                `json:"original_filename"`
	ExperienceLevel string                `json:"experience_level"`
	Major           string                `json:"major"`
	Status          string                `json:"status"`
	OverallScore    *int                  `json:"overall_score,omitempty"`
	Summary         string                `json:"summary,omitempty"`
	Sections        *model.Sections       `json:"sections,omitempty"`
	Recommendations []model.Recommendation `json:"recommendations,omitempty"`
	JobMatch        *model.JobMatch       `json:"job_match,omitempty"`
	MarketInsights  *model.MarketInsights `json:"market_insights,omitempty"`
	ErrorMessage    string                `json:"error_message,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func NewAnalysisSummaryDTO(r *model.AnalysisRecord) AnalysisSummaryDTO {
	return AnalysisSummaryDTO{
		ID:              r.ID,
		OriginalName:    r.OriginalFilename,
		ExperienceLevel: r.ExperienceLevel,
		Major:           r.Major,
		Status:          r.Status,
		OverallScore:    r.OverallScore,
		Summary:         r.Summary,
		Sections:        r.Sections,
		Recommendations: r.Recommendations,
		JobMatch:        r.JobMatch,
		MarketInsights:  r.MarketInsights,
		ErrorMessage:    r.ErrorMessage,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
