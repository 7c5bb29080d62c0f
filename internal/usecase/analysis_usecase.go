package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jobhive/cv-insight/internal/config"
	"github.com/jobhive/cv-insight/internal/model"
	"github.com/jobhive/cv-insight/internal/queue"
	"github.com/jobhive/cv-insight/internal/repository"
	"github.com/jobhive/cv-insight/internal/storage"
)

var (
	// ErrNotFound covers both missing records and records owned by someone
	// else; callers cannot tell the two apart.
	ErrNotFound = errors.New("analysis not found")
	// ErrConflict means a run is already in flight for the record.
	ErrConflict = errors.New("analysis is already being processed")
)

// RecordRepo is the repository surface the usecase needs.
type RecordRepo interface {
	Create(ctx context.Context, record *model.AnalysisRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByIDAndOwner(ctx context.Context, id, userID uuid.UUID) (*model.AnalysisRecord, error)
	ListByOwner(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]model.AnalysisRecord, int64, error)
	SoftDelete(ctx context.Context, id, userID uuid.UUID) (string, error)
	ClaimForReanalysis(ctx context.Context, id, userID uuid.UUID, updates map[string]any) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, stages []model.StageStatus) (bool, error)
	Analytics(ctx context.Context, userID uuid.UUID, since time.Time) (*repository.Analytics, error)
}

type AnalysisUsecase struct {
	records RecordRepo
	store   storage.Storage
	tasks   queue.Enqueuer
	cfg     *config.UploadConfig
}

func NewAnalysisUsecase(records RecordRepo, store storage.Storage, tasks queue.Enqueuer, cfg *config.UploadConfig) *AnalysisUsecase {
	return &AnalysisUsecase{records: records, store: store, tasks: tasks, cfg: cfg}
}

// SubmitInput is a validated upload; field checks happened at the handler.
type SubmitInput struct {
	UserID          uuid.UUID
	Filename        string
	Data            []byte
	ExperienceLevel string
	Major           string
	TargetJobID     *uuid.UUID
}

// SubmitResult is what the 202 response carries.
type SubmitResult struct {
	AnalysisID    uuid.UUID     `json:"analysisId"`
	Status        string        `json:"status"`
	EstimatedTime time.Duration `json:"-"`
}

// Submit stores the file, creates the pending record, and schedules the run.
// When scheduling fails both the file and the record are rolled back: a
// pending record without a scheduled run must not exist.
func (uc *AnalysisUsecase) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	key := fmt.Sprintf("%d-%s.pdf", time.Now().UnixNano(), uuid.NewString())
	if err := uc.store.Save(ctx, key, in.Data); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	record := &model.AnalysisRecord{
		ID:               uuid.New(),
		UserID:           in.UserID,
		OriginalFilename: in.Filename,
		StoredFile:       key,
		FileSize:         int64(len(in.Data)),
		ExperienceLevel:  in.ExperienceLevel,
		Major:            in.Major,
		TargetJobID:      in.TargetJobID,
		Status:           model.StatusPending,
	}
	if err := uc.records.Create(ctx, record); err != nil {
		if cleanupErr := uc.store.Delete(ctx, key); cleanupErr != nil {
			log.Printf("orphaned upload %s: %v", key, cleanupErr)
		}
		return nil, fmt.Errorf("create analysis record: %w", err)
	}

	if err := queue.EnqueueRun(ctx, uc.tasks, queue.RunPayload{AnalysisID: record.ID.String()}); err != nil {
		if cleanupErr := uc.store.Delete(ctx, key); cleanupErr != nil {
			log.Printf("orphaned upload %s: %v", key, cleanupErr)
		}
		if cleanupErr := uc.records.Delete(ctx, record.ID); cleanupErr != nil {
			log.Printf("orphaned record %s: %v", record.ID, cleanupErr)
		}
		return nil, fmt.Errorf("schedule analysis: %w", err)
	}

	return &SubmitResult{
		AnalysisID:    record.ID,
		Status:        model.StatusProcessing,
		EstimatedTime: uc.cfg.EstimatedDuration,
	}, nil
}

func (uc *AnalysisUsecase) GetResult(ctx context.Context, userID, id uuid.UUID) (*model.AnalysisRecord, error) {
	record, err := uc.records.FindByIDAndOwner(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func (uc *AnalysisUsecase) History(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]model.AnalysisRecord, int64, error) {
	return uc.records.ListByOwner(ctx, userID, status, page, limit)
}

// ReanalyzeInput carries optional replacement context; nil fields keep the
// record's previous values.
type ReanalyzeInput struct {
	ExperienceLevel *string
	Major           *string
	TargetJobID     *uuid.UUID
}

// Reanalyze claims a terminal record back into processing and schedules a
// fresh run. The optimistic status check in the claim means that of two
// concurrent requests exactly one wins; the loser gets ErrConflict.
func (uc *AnalysisUsecase) Reanalyze(ctx context.Context, userID, id uuid.UUID, in ReanalyzeInput) (*SubmitResult, error) {
	if _, err := uc.records.FindByIDAndOwner(ctx, id, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	updates := map[string]any{}
	if in.ExperienceLevel != nil {
		updates["experience_level"] = *in.ExperienceLevel
	}
	if in.Major != nil {
		updates["major"] = *in.Major
	}
	if in.TargetJobID != nil {
		updates["target_job_id"] = *in.TargetJobID
	}

	claimed, err := uc.records.ClaimForReanalysis(ctx, id, userID, updates)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrConflict
	}

	if err := queue.EnqueueRun(ctx, uc.tasks, queue.RunPayload{AnalysisID: id.String()}); err != nil {
		// The claim already happened; fail the record so it does not hang in
		// processing with no run behind it.
		if _, markErr := uc.records.MarkFailed(ctx, id, "could not schedule reanalysis", nil); markErr != nil {
			log.Printf("record %s stuck after enqueue failure: %v", id, markErr)
		}
		return nil, fmt.Errorf("schedule reanalysis: %w", err)
	}

	return &SubmitResult{
		AnalysisID:    id,
		Status:        model.StatusProcessing,
		EstimatedTime: uc.cfg.EstimatedDuration,
	}, nil
}

// Delete soft-deletes the record and removes the stored file.
func (uc *AnalysisUsecase) Delete(ctx context.Context, userID, id uuid.UUID) error {
	key, err := uc.records.SoftDelete(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if key != "" {
		if err := uc.store.Delete(ctx, key); err != nil {
			log.Printf("could not remove stored file %s: %v", key, err)
		}
	}
	return nil
}

func (uc *AnalysisUsecase) Analytics(ctx context.Context, userID uuid.UUID, days int) (*repository.Analytics, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)
	return uc.records.Analytics(ctx, userID, since)
}
