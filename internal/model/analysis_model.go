package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Analysis lifecycle statuses. Transitions are monotonic:
// pending -> processing -> completed | failed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const (
	LevelEntry     = "entry"
	LevelMid       = "mid"
	LevelSenior    = "senior"
	LevelExecutive = "executive"
)

const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// SectionNames lists the report sections every completed analysis carries,
// in the order they appear in the prompt schema.
var SectionNames = []string{
	"ats_compatibility",
	"skills_alignment",
	"experience_relevance",
	"achievement_quantification",
	"market_positioning",
}

func ValidExperienceLevel(level string) bool {
	switch level {
	case LevelEntry, LevelMid, LevelSenior, LevelExecutive:
		return true
	}
	return false
}

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further status transition is permitted.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

type SectionResult struct {
	Score       int      `json:"score"`
	Feedback    string   `json:"feedback"`
	Suggestions []string `json:"suggestions"`
}

// Sections holds the five named report sections as explicit fields rather
// than an open map; unknown extra sections from the model are dropped at the
// parse boundary, known ones land here.
type Sections struct {
	ATSCompatibility          SectionResult `json:"ats_compatibility"`
	SkillsAlignment           SectionResult `json:"skills_alignment"`
	ExperienceRelevance       SectionResult `json:"experience_relevance"`
	AchievementQuantification SectionResult `json:"achievement_quantification"`
	MarketPositioning         SectionResult `json:"market_positioning"`
}

type Recommendation struct {
	Priority   string `json:"priority"` // low | medium | high | critical
	Category   string `json:"category"`
	Suggestion string `json:"suggestion"`
	Impact     string `json:"impact"`
}

type JobMatch struct {
	OverallMatch    int      `json:"overall_match"`
	SkillsMatch     int      `json:"skills_match"`
	ExperienceMatch int      `json:"experience_match"`
	EducationMatch  int      `json:"education_match"`
	MissingSkills   []string `json:"missing_skills"`
}

type MarketInsights struct {
	SalaryRange     string   `json:"salary_range"`
	DemandLevel     string   `json:"demand_level"`
	Competitiveness string   `json:"competitiveness"`
	Trends          []string `json:"trends"`
}

// TargetJob is a snapshot of a posting the CV is scored against.
type TargetJob struct {
	Title        string `json:"title"`
	Company      string `json:"company"`
	Description  string `json:"description"`
	Requirements string `json:"requirements"`
}

// StageStatus records one pipeline step for diagnostics.
type StageStatus struct {
	Name       string     `json:"name"` // extraction | prompt | ai_analysis
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Usage tracks AI-service consumption for observability, not billing.
type Usage struct {
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	DurationMS       int64   `json:"duration_ms"`
	CostUSD          float64 `json:"cost_usd"`
}

type AnalysisRecord struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;index" json:"user_id"`

	OriginalFilename string `gorm:"type:varchar(255)" json:"original_filename"`
	StoredFile       string `gorm:"type:varchar(255)" json:"-"`
	FileSize         int64  `json:"file_size"`
	ExtractedText    string `gorm:"type:text" json:"extracted_text,omitempty"`
	WordCount        int    `json:"word_count"`
	PageCount        int    `json:"page_count"`

	ExperienceLevel string      `gorm:"type:varchar(20)" json:"experience_level"`
	Major           string      `gorm:"type:varchar(100)" json:"major"`
	TargetJobID     *uuid.UUID  `gorm:"type:uuid" json:"target_job_id,omitempty"`
	TargetJobs      []TargetJob `gorm:"serializer:json;type:jsonb" json:"target_jobs,omitempty"`

	OverallScore    *int             `json:"overall_score,omitempty"`
	Summary         string           `gorm:"type:text" json:"summary,omitempty"`
	Sections        *Sections        `gorm:"serializer:json;type:jsonb" json:"sections,omitempty"`
	Recommendations []Recommendation `gorm:"serializer:json;type:jsonb" json:"recommendations,omitempty"`
	JobMatch        *JobMatch        `gorm:"serializer:json;type:jsonb" json:"job_match,omitempty"`
	MarketInsights  *MarketInsights  `gorm:"serializer:json;type:jsonb" json:"market_insights,omitempty"`

	Status       string         `gorm:"type:varchar(20);index" json:"status"`
	Stages       []StageStatus  `gorm:"serializer:json;type:jsonb" json:"stages,omitempty"`
	Usage        *Usage         `gorm:"serializer:json;type:jsonb" json:"usage,omitempty"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (r *AnalysisRecord) TableName() string {
	return "analysis_records"
}
