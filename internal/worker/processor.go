package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/pgvector/pgvector-go"

	"github.com/jobhive/cv-insight/internal/model"
	"github.com/jobhive/cv-insight/internal/queue"
	"github.com/jobhive/cv-insight/internal/repository"
	"github.com/jobhive/cv-insight/internal/service"
)

const (
	StageExtraction = "extraction"
	StagePrompt     = "prompt"
	StageAIAnalysis = "ai_analysis"

	stageRunning = "processing"
	stageDone    = "completed"
	stageFailed  = "failed"
)

// RecordStore is the repository slice the orchestrator mutates records
// through.
type RecordStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.AnalysisRecord, error)
	BeginRun(ctx context.Context, id uuid.UUID, stages []model.StageStatus) (bool, error)
	SaveExtraction(ctx context.Context, id uuid.UUID, text string, wordCount, pageCount int, stages []model.StageStatus) error
	MarkCompleted(ctx context.Context, id uuid.UUID, results repository.CompletedResults) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, stages []model.StageStatus) (bool, error)
}

// Extractor turns a stored file into text.
type Extractor interface {
	Extract(ctx context.Context, key string) (*service.Extraction, error)
}

// JobFinder resolves job context for the prompt.
type JobFinder interface {
	FindJobByID(ctx context.Context, id uuid.UUID) (*model.Job, error)
	SearchJobs(ctx context.Context, embedding pgvector.Vector, topK int) ([]model.Job, error)
}

// Embedder is optional; without it the prompt falls back to field+level
// framing when no target job is given.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Processor runs the analysis pipeline for one record: claim processing,
// extract, build prompt, call the model, persist. Each stage's failure moves
// the record straight to failed with the originating message; later stages
// are not attempted.
type Processor struct {
	store     RecordStore
	extractor Extractor
	ai        service.AIClient
	jobs      JobFinder
	embedder  Embedder
}

func NewProcessor(store RecordStore, extractor Extractor, ai service.AIClient, jobs JobFinder, embedder Embedder) *Processor {
	return &Processor{store: store, extractor: extractor, ai: ai, jobs: jobs, embedder: embedder}
}

// Handler wires the processor into the asynq worker loop.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.RunAnalysisTask, p.HandleRun)
	return mux
}

func (p *Processor) HandleRun(ctx context.Context, task *asynq.Task) error {
	var payload queue.RunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	id, err := uuid.Parse(payload.AnalysisID)
	if err != nil {
		return fmt.Errorf("bad analysis id %q: %w", payload.AnalysisID, err)
	}
	return p.Run(ctx, id)
}

func (p *Processor) Run(ctx context.Context, id uuid.UUID) error {
	record, err := p.store.FindByID(ctx, id)
	if err != nil {
		// Deleted between enqueue and run; nothing to do.
		log.Printf("analysis %s not found, skipping run: %v", id, err)
		return nil
	}
	if model.IsTerminal(record.Status) {
		log.Printf("analysis %s already %s, skipping run", id, record.Status)
		return nil
	}

	stages := []model.StageStatus{newStage(StageExtraction)}
	claimed, err := p.store.BeginRun(ctx, id, stages)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	if !claimed {
		log.Printf("analysis %s reached terminal state before run started", id)
		return nil
	}

	fail := func(stageErr error) error {
		failStage(stages, stageErr)
		if _, markErr := p.store.MarkFailed(ctx, id, stageErr.Error(), stages); markErr != nil {
			// The record stays in processing; the stale sweep reconciles it.
			log.Printf("CRITICAL: could not mark analysis %s failed: %v", id, markErr)
		}
		return stageErr
	}

	extraction, err := p.extractor.Extract(ctx, record.StoredFile)
	if err != nil {
		return fail(err)
	}
	completeStage(stages)
	stages = append(stages, newStage(StagePrompt))
	if err := p.store.SaveExtraction(ctx, id, extraction.Text, extraction.WordCount, extraction.PageCount, stages); err != nil {
		return fail(fmt.Errorf("persist extraction: %w", err))
	}

	targetJobs, err := p.resolveJobContext(ctx, record, extraction.Text)
	if err != nil {
		return fail(err)
	}
	prompt := service.BuildAnalysisPrompt(service.PromptInput{
		Text:            extraction.Text,
		ExperienceLevel: record.ExperienceLevel,
		Major:           record.Major,
		TargetJobs:      targetJobs,
	})
	completeStage(stages)
	stages = append(stages, newStage(StageAIAnalysis))

	result, usage, err := p.ai.GenerateAnalysis(ctx, prompt)
	if err != nil {
		return fail(err)
	}
	completeStage(stages)

	done, err := p.store.MarkCompleted(ctx, id, repository.CompletedResults{
		OverallScore:    result.OverallScore,
		Summary:         result.Summary,
		Sections:        &result.Sections,
		Recommendations: result.Recommendations,
		JobMatch:        &result.JobMatch,
		MarketInsights:  &result.MarketInsights,
		Usage:           usage,
		Stages:          stages,
	})
	if err != nil {
		log.Printf("CRITICAL: could not mark analysis %s completed: %v", id, err)
		return err
	}
	if !done {
		log.Printf("analysis %s was terminal before completion write, results dropped", id)
		return nil
	}
	if result.Degraded {
		log.Printf("analysis %s completed with a degraded result", id)
	}
	return nil
}

// resolveJobContext picks the prompt's job block: an explicit snapshot wins,
// then a referenced posting, then embedding retrieval, then nothing.
func (p *Processor) resolveJobContext(ctx context.Context, record *model.AnalysisRecord, text string) ([]model.TargetJob, error) {
	if len(record.TargetJobs) > 0 {
		return record.TargetJobs, nil
	}
	if record.TargetJobID != nil {
		job, err := p.jobs.FindJobByID(ctx, *record.TargetJobID)
		if err != nil {
			return nil, fmt.Errorf("target job %s: %w", record.TargetJobID, err)
		}
		return []model.TargetJob{{
			Title:        job.Title,
			Company:      job.Company,
			Description:  job.Description,
			Requirements: job.Requirements,
		}}, nil
	}
	if p.embedder == nil || p.jobs == nil {
		return nil, nil
	}
	embedding, err := p.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		// Retrieval is best-effort context, not a pipeline stage.
		log.Printf("job retrieval skipped: %v", err)
		return nil, nil
	}
	jobs, err := p.jobs.SearchJobs(ctx, pgvector.NewVector(embedding), 3)
	if err != nil {
		log.Printf("job retrieval skipped: %v", err)
		return nil, nil
	}
	targets := make([]model.TargetJob, 0, len(jobs))
	for _, job := range jobs {
		targets = append(targets, model.TargetJob{
			Title:        job.Title,
			Company:      job.Company,
			Description:  job.Description,
			Requirements: job.Requirements,
		})
	}
	return targets, nil
}

func newStage(name string) model.StageStatus {
	return model.StageStatus{Name: name, Status: stageRunning, StartedAt: time.Now()}
}

func completeStage(stages []model.StageStatus) {
	last := &stages[len(stages)-1]
	now := time.Now()
	last.Status = stageDone
	last.FinishedAt = &now
}

func failStage(stages []model.StageStatus, err error) {
	last := &stages[len(stages)-1]
	now := time.Now()
	last.Status = stageFailed
	last.FinishedAt = &now
	last.Error = err.Error()
}
