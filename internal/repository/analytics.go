package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jobhive/cv-insight/internal/model"
)

type ScoreBucket struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

type TrendPoint struct {
	Day      time.Time `json:"day"`
	Count    int64     `json:"count"`
	AvgScore float64   `json:"avg_score"`
}

type SkillCount struct {
	Skill string `json:"skill"`
	Count int64  `json:"count"`
}

type Analytics struct {
	TotalAnalyses     int64         `json:"total_analyses"`
	Completed         int64         `json:"completed"`
	Failed            int64         `json:"failed"`
	AverageScore      float64       `json:"average_score"`
	ScoreDistribution []ScoreBucket `json:"score_distribution"`
	Trend             []TrendPoint  `json:"trend"`
	TopMissingSkills  []SkillCount  `json:"top_missing_skills"`
}

// Analytics aggregates the owner's completed analyses since the given time:
// score distribution buckets, a per-day trend, and the most recurrent
// missing skills across job-match results.
func (r *AnalysisRepository) Analytics(ctx context.Context, userID uuid.UUID, since time.Time) (*Analytics, error) {
	db := r.db.WithContext(ctx)
	out := &Analytics{
		ScoreDistribution: []ScoreBucket{},
		Trend:             []TrendPoint{},
		TopMissingSkills:  []SkillCount{},
	}

	base := db.Model(&model.AnalysisRecord{}).
		Where("user_id = ? AND created_at >= ?", userID, since)
	if err := base.Count(&out.TotalAnalyses).Error; err != nil {
		return nil, err
	}
	if err := base.Where("status = ?", model.StatusCompleted).Count(&out.Completed).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.AnalysisRecord{}).
		Where("user_id = ? AND created_at >= ? AND status = ?", userID, since, model.StatusFailed).
		Count(&out.Failed).Error; err != nil {
		return nil, err
	}

	if err := db.Raw(`
		SELECT COALESCE(AVG(overall_score), 0)
		FROM analysis_records
		WHERE user_id = ? AND created_at >= ? AND status = ? AND deleted_at IS NULL
	`, userID, since, model.StatusCompleted).Scan(&out.AverageScore).Error; err != nil {
		return nil, err
	}

	if err := db.Raw(`
		SELECT CASE
			WHEN overall_score >= 90 THEN '90-100'
			WHEN overall_score >= 80 THEN '80-89'
			WHEN overall_score >= 70 THEN '70-79'
			WHEN overall_score >= 60 THEN '60-69'
			ELSE '<60'
		END AS bucket, COUNT(*) AS count
		FROM analysis_records
		WHERE user_id = ? AND created_at >= ? AND status = ? AND deleted_at IS NULL
		GROUP BY bucket
		ORDER BY bucket DESC
	`, userID, since, model.StatusCompleted).Scan(&out.ScoreDistribution).Error; err != nil {
		return nil, err
	}

	if err := db.Raw(`
		SELECT date_trunc('day', created_at) AS day,
		       COUNT(*) AS count,
		       COALESCE(AVG(overall_score), 0) AS avg_score
		FROM analysis_records
		WHERE user_id = ? AND created_at >= ? AND status = ? AND deleted_at IS NULL
		GROUP BY day
		ORDER BY day
	`, userID, since, model.StatusCompleted).Scan(&out.Trend).Error; err != nil {
		return nil, err
	}

	if err := db.Raw(`
		SELECT skill, COUNT(*) AS count
		FROM analysis_records,
		     jsonb_array_elements_text(job_match->'missing_skills') AS skill
		WHERE user_id = ? AND created_at >= ? AND status = ?
		  AND job_match IS NOT NULL AND deleted_at IS NULL
		GROUP BY skill
		ORDER BY count DESC
		LIMIT 10
	`, userID, since, model.StatusCompleted).Scan(&out.TopMissingSkills).Error; err != nil {
		return nil, err
	}

	return out, nil
}
