package service

import (
	"encoding/json"
	"strings"

	"github.com/jobhive/cv-insight/internal/model"
	"github.com/tidwall/gjson"
)

// AnalysisResult is the typed shape every AI response is coerced into.
// Degraded is set when the model reply could not be parsed and defaults were
// substituted instead.
type AnalysisResult struct {
	OverallScore    int                    `json:"overall_score"`
	Summary         string                 `json:"summary"`
	Sections        model.Sections         `json:"sections"`
	Recommendations []model.Recommendation `json:"recommendations"`
	JobMatch        model.JobMatch         `json:"job_match"`
	MarketInsights  model.MarketInsights   `json:"market_insights"`
	Degraded        bool                   `json:"-"`
}

const defaultScore = 50

// ParseAnalysisResult coerces raw model output into an AnalysisResult. It
// tries a strict unmarshal first, then looks for a JSON object embedded in
// surrounding prose or markdown fences, and finally falls back to a degraded
// structure. It never returns an error: by the time the model has answered,
// the expensive work is done and a low-confidence result beats a hard failure.
func ParseAnalysisResult(raw string) *AnalysisResult {
	candidate := strings.TrimSpace(raw)
	if doc := locateJSON(candidate); doc != "" {
		var result AnalysisResult
		if err := json.Unmarshal([]byte(doc), &result); err == nil {
			normalize(&result)
			return &result
		}
	}
	return DegradedResult()
}

// DegradedResult is structurally valid but carries no model signal: default
// score, generic summary, empty-but-present lists.
func DegradedResult() *AnalysisResult {
	result := &AnalysisResult{
		OverallScore:    defaultScore,
		Summary:         "The analysis could not be fully completed. The resume was processed, but detailed scoring is unavailable for this run.",
		Recommendations: []model.Recommendation{},
		JobMatch:        model.JobMatch{MissingSkills: []string{}},
		MarketInsights:  model.MarketInsights{Trends: []string{}},
		Degraded:        true,
	}
	generic := model.SectionResult{Score: defaultScore, Feedback: "Not evaluated.", Suggestions: []string{}}
	result.Sections = model.Sections{
		ATSCompatibility:          generic,
		SkillsAlignment:           generic,
		ExperienceRelevance:       generic,
		AchievementQuantification: generic,
		MarketPositioning:         generic,
	}
	return result
}

// locateJSON returns the best JSON-object candidate inside raw, or "" when
// none validates. Handles bare objects, ```json fences, and objects buried in
// explanatory text.
func locateJSON(raw string) string {
	if gjson.Valid(raw) && strings.HasPrefix(raw, "{") {
		return raw
	}
	if fenced := stripFences(raw); fenced != "" && gjson.Valid(fenced) {
		return fenced
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		embedded := raw[start : end+1]
		if gjson.Valid(embedded) {
			return embedded
		}
	}
	return ""
}

func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

// normalize clamps every score into [0,100], defaults missing pieces, and
// maps unknown priorities to medium. Unknown extra fields were already
// dropped by the unmarshal.
func normalize(r *AnalysisResult) {
	r.OverallScore = ClampScore(r.OverallScore)
	for _, section := range []*model.SectionResult{
		&r.Sections.ATSCompatibility,
		&r.Sections.SkillsAlignment,
		&r.Sections.ExperienceRelevance,
		&r.Sections.AchievementQuantification,
		&r.Sections.MarketPositioning,
	} {
		section.Score = ClampScore(section.Score)
		if section.Suggestions == nil {
			section.Suggestions = []string{}
		}
	}
	if r.Recommendations == nil {
		r.Recommendations = []model.Recommendation{}
	}
	for i := range r.Recommendations {
		switch r.Recommendations[i].Priority {
		case model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityCritical:
		default:
			r.Recommendations[i].Priority = model.PriorityMedium
		}
	}
	r.JobMatch.OverallMatch = ClampScore(r.JobMatch.OverallMatch)
	r.JobMatch.SkillsMatch = ClampScore(r.JobMatch.SkillsMatch)
	r.JobMatch.ExperienceMatch = ClampScore(r.JobMatch.ExperienceMatch)
	r.JobMatch.EducationMatch = ClampScore(r.JobMatch.EducationMatch)
	if r.JobMatch.MissingSkills == nil {
		r.JobMatch.MissingSkills = []string{}
	}
	if r.MarketInsights.Trends == nil {
		r.MarketInsights.Trends = []string{}
	}
	if r.Summary == "" {
		r.Summary = "No summary provided."
	}
}

// ClampScore forces a score into [0,100] regardless of what the model sent.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
