package repository

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/jobhive/cv-insight/internal/model"
	"gorm.io/gorm"
)

type AnalysisRepository struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{db}
}

var terminalStatuses = []string{model.StatusCompleted, model.StatusFailed}

func (r *AnalysisRepository) Create(ctx context.Context, record *model.AnalysisRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// Delete removes a record outright. Used only to roll back an intake whose
// task could not be enqueued.
func (r *AnalysisRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Unscoped().Delete(&model.AnalysisRecord{}, "id = ?", id).Error
}

// BeginRun moves a record into processing at the start of an orchestrator
// run. Pending records transition; records already claimed by a reanalyze
// request pass through; terminal records refuse the run.
func (r *AnalysisRepository) BeginRun(ctx context.Context, id uuid.UUID, stages []model.StageStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.AnalysisRecord{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(map[string]any{
			"status":        model.StatusProcessing,
			"error_message": "",
			"stages":        jsonValue(stages),
		})
	return res.RowsAffected > 0, res.Error
}

// ClaimForReanalysis atomically flips a terminal record owned by userID back
// to processing. The status check is the optimistic guard against two
// concurrent reanalyze requests racing the same record: exactly one wins.
func (r *AnalysisRepository) ClaimForReanalysis(ctx context.Context, id, userID uuid.UUID, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = model.StatusProcessing
	updates["error_message"] = ""
	updates["overall_score"] = nil
	updates["summary"] = ""
	updates["sections"] = nil
	updates["recommendations"] = nil
	updates["job_match"] = nil
	updates["market_insights"] = nil
	updates["usage"] = nil
	res := r.db.WithContext(ctx).Model(&model.AnalysisRecord{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, userID, terminalStatuses).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// SaveExtraction attaches the extractor output to a processing record.
func (r *AnalysisRepository) SaveExtraction(ctx context.Context, id uuid.UUID, text string, wordCount, pageCount int, stages []model.StageStatus) error {
	return r.db.WithContext(ctx).Model(&model.AnalysisRecord{}).
		Where("id = ? AND status = ?", id, model.StatusProcessing).
		Updates(map[string]any{
			"extracted_text": text,
			"word_count":     wordCount,
			"page_count":     pageCount,
			"stages":         jsonValue(stages),
		}).Error
}

// CompletedResults carries everything a successful run persists at once.
type CompletedResults struct {
	OverallScore    int
	Summary         string
	Sections        *model.Sections
	Recommendations []model.Recommendation
	JobMatch        *model.JobMatch
	MarketInsights  *model.MarketInsights
	Usage           *model.Usage
	Stages          []model.StageStatus
}

// MarkCompleted finalizes a processing record. Already-terminal records are
// left untouched and the call reports false.
func (r *AnalysisRepository) MarkCompleted(ctx context.Context, id uuid.UUID, results CompletedResults) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.AnalysisRecord{}).
		Where("id = ? AND status = ?", id, model.StatusProcessing).
		Updates(map[string]any{
			"status":          model.StatusCompleted,
			"overall_score":   results.OverallScore,
			"summary":         results.Summary,
			"sections":        jsonValue(results.Sections),
			"recommendations": jsonValue(results.Recommendations),
			"job_match":       jsonValue(results.JobMatch),
			"market_insights": jsonValue(results.MarketInsights),
			"usage":           jsonValue(results.Usage),
			"stages":          jsonValue(results.Stages),
		})
	return res.RowsAffected > 0, res.Error
}

// MarkFailed records the originating error verbatim. No-op when the record is
// already terminal, so a failure cannot overwrite a completion (or another
// failure).
func (r *AnalysisRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, stages []model.StageStatus) (bool, error) {
	updates := map[string]any{
		"status":        model.StatusFailed,
		"error_message": reason,
	}
	if stages != nil {
		updates["stages"] = jsonValue(stages)
	}
	res := r.db.WithContext(ctx).Model(&model.AnalysisRecord{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// FindByID is the worker-side lookup; user-facing reads go through
// FindByIDAndOwner.
func (r *AnalysisRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.AnalysisRecord, error) {
	var record model.AnalysisRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByIDAndOwner scopes the lookup to the owner; someone else's record is
// indistinguishable from a missing one.
func (r *AnalysisRepository) FindByIDAndOwner(ctx context.Context, id, userID uuid.UUID) (*model.AnalysisRecord, error) {
	var record model.AnalysisRecord
	err := r.db.WithContext(ctx).
		First(&record, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByOwner returns one page of the owner's records, newest first, without
// the raw extracted text.
func (r *AnalysisRepository) ListByOwner(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]model.AnalysisRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.AnalysisRecord{}).
		Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []model.AnalysisRecord
	err := query.
		Omit("extracted_text").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error
	return records, total, err
}

// SoftDelete marks the record deleted and returns its storage key so the
// caller can remove the underlying file. Owner-scoped like every read.
func (r *AnalysisRepository) SoftDelete(ctx context.Context, id, userID uuid.UUID) (string, error) {
	var record model.AnalysisRecord
	err := r.db.WithContext(ctx).
		Select("id", "stored_file").
		First(&record, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		return "", err
	}
	if err := r.db.WithContext(ctx).Delete(&record).Error; err != nil {
		return "", err
	}
	return record.StoredFile, nil
}

// ReapStale fails records stuck in processing longer than threshold. Covers
// the case where a terminal write was lost (worker crash, DB outage during
// the final update).
func (r *AnalysisRepository) ReapStale(ctx context.Context, threshold time.Duration) (int64, error) {
	cutoff := time.Now().Add(-threshold)
	res := r.db.WithContext(ctx).Model(&model.AnalysisRecord{}).
		Where("status = ? AND updated_at < ?", model.StatusProcessing, cutoff).
		Updates(map[string]any{
			"status":        model.StatusFailed,
			"error_message": "analysis did not finish in time and was reaped",
		})
	return res.RowsAffected, res.Error
}

// jsonValue serializes a value for a jsonb column in a map-based update,
// where gorm's field serializers do not run. Nil pointers and slices become
// SQL NULL instead of the string "null".
func jsonValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Slice) && rv.IsNil() {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}
