package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobhive/cv-insight/internal/model"
	"github.com/jobhive/cv-insight/internal/queue"
	"github.com/jobhive/cv-insight/internal/repository"
	"github.com/jobhive/cv-insight/internal/service"
)

type fakeRecords struct {
	record        *model.AnalysisRecord
	findErr       error
	claimed       bool
	beginCalled   bool
	extractionSet bool

	completed       *repository.CompletedResults
	completedDone   bool
	failedReason    string
	failedStages    []model.StageStatus
	markFailedErr   error
	markFailedCalls int
}

func (f *fakeRecords) FindByID(ctx context.Context, id uuid.UUID) (*model.AnalysisRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.record, nil
}

func (f *fakeRecords) BeginRun(ctx context.Context, id uuid.UUID, stages []model.StageStatus) (bool, error) {
	f.beginCalled = true
	return f.claimed, nil
}

func (f *fakeRecords) SaveExtraction(ctx context.Context, id uuid.UUID, text string, wordCount, pageCount int, stages []model.StageStatus) error {
	f.extractionSet = true
	return nil
}

func (f *fakeRecords) MarkCompleted(ctx context.Context, id uuid.UUID, results repository.CompletedResults) (bool, error) {
	f.completed = &results
	return f.completedDone, nil
}

func (f *fakeRecords) MarkFailed(ctx context.Context, id uuid.UUID, reason string, stages []model.StageStatus) (bool, error) {
	f.markFailedCalls++
	f.failedReason = reason
	f.failedStages = stages
	return true, f.markFailedErr
}

type fakeExtractor struct {
	extraction *service.Extraction
	err        error
}

func (f *fakeExtractor) Extract(ctx context.Context, key string) (*service.Extraction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.extraction, nil
}

type fakeAI struct {
	result *service.AnalysisResult
	usage  *model.Usage
	err    error
	prompt string
	calls  int
}

func (f *fakeAI) GenerateAnalysis(ctx context.Context, prompt string) (*service.AnalysisResult, *model.Usage, error) {
	f.calls++
	f.prompt = prompt
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.result, f.usage, nil
}

type fakeJobs struct {
	job       *model.Job
	jobErr    error
	matches   []model.Job
	searchErr error
}

func (f *fakeJobs) FindJobByID(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	if f.jobErr != nil {
		return nil, f.jobErr
	}
	return f.job, nil
}

func (f *fakeJobs) SearchJobs(ctx context.Context, embedding pgvector.Vector, topK int) ([]model.Job, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.matches, nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func pendingRecord() *model.AnalysisRecord {
	return &model.AnalysisRecord{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		StoredFile:      "123-abc.pdf",
		ExperienceLevel: model.LevelMid,
		Major:           "Computer Science",
		Status:          model.StatusPending,
	}
}

func okExtraction() *service.Extraction {
	return &service.Extraction{
		Text:      "A skilled engineer with years of shipping production systems.",
		WordCount: 10,
		CharCount: 60,
		PageCount: 2,
	}
}

func okAI() *fakeAI {
	return &fakeAI{
		result: &service.AnalysisResult{
			OverallScore:    81,
			Summary:         "Strong resume.",
			Recommendations: []model.Recommendation{},
		},
		usage: &model.Usage{Model: "test", TotalTokens: 100},
	}
}

func TestRunHappyPath(t *testing.T) {
	records := &fakeRecords{record: pendingRecord(), claimed: true, completedDone: true}
	ai := okAI()
	p := NewProcessor(records, &fakeExtractor{extraction: okExtraction()}, ai, &fakeJobs{}, nil)

	err := p.Run(context.Background(), records.record.ID)

	require.NoError(t, err)
	assert.True(t, records.extractionSet)
	require.NotNil(t, records.completed)
	assert.Equal(t, 81, records.completed.OverallScore)
	assert.Equal(t, "Strong resume.", records.completed.Summary)
	assert.Zero(t, records.markFailedCalls)

	require.Len(t, records.completed.Stages, 3)
	names := []string{}
	for _, stage := range records.completed.Stages {
		names = append(names, stage.Name)
		assert.Equal(t, stageDone, stage.Status)
		assert.NotNil(t, stage.FinishedAt)
	}
	assert.Equal(t, []string{StageExtraction, StagePrompt, StageAIAnalysis}, names)
	assert.Contains(t, ai.prompt, "skilled engineer")
}

func TestRunSkipsTerminalRecord(t *testing.T) {
	record := pendingRecord()
	record.Status = model.StatusCompleted
	records := &fakeRecords{record: record}
	p := NewProcessor(records, &fakeExtractor{}, okAI(), &fakeJobs{}, nil)

	err := p.Run(context.Background(), record.ID)

	require.NoError(t, err)
	assert.False(t, records.beginCalled)
}

func TestRunSkipsMissingRecord(t *testing.T) {
	records := &fakeRecords{findErr: errors.New("record not found")}
	p := NewProcessor(records, &fakeExtractor{}, okAI(), &fakeJobs{}, nil)

	err := p.Run(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.False(t, records.beginCalled)
}

func TestRunSkipsWhenClaimLost(t *testing.T) {
	records := &fakeRecords{record: pendingRecord(), claimed: false}
	extractor := &fakeExtractor{extraction: okExtraction()}
	p := NewProcessor(records, extractor, okAI(), &fakeJobs{}, nil)

	err := p.Run(context.Background(), records.record.ID)

	require.NoError(t, err)
	assert.False(t, records.extractionSet)
}

func TestRunExtractionFailureMarksFailed(t *testing.T) {
	records := &fakeRecords{record: pendingRecord(), claimed: true}
	extractErr := &service.ExtractionError{Reason: "file is not a valid PDF"}
	ai := okAI()
	p := NewProcessor(records, &fakeExtractor{err: extractErr}, ai, &fakeJobs{}, nil)

	err := p.Run(context.Background(), records.record.ID)

	require.Error(t, err)
	assert.Equal(t, extractErr.Error(), records.failedReason)
	assert.Zero(t, ai.calls)
	require.NotEmpty(t, records.failedStages)
	last := records.failedStages[len(records.failedStages)-1]
	assert.Equal(t, StageExtraction, last.Name)
	assert.Equal(t, stageFailed, last.Status)
	assert.Equal(t, extractErr.Error(), last.Error)
}

func TestRunAIFailureMarksFailed(t *testing.T) {
	records := &fakeRecords{record: pendingRecord(), claimed: true}
	aiErr := &service.AIError{StatusCode: 401, Message: "bad key"}
	p := NewProcessor(records, &fakeExtractor{extraction: okExtraction()}, &fakeAI{err: aiErr}, &fakeJobs{}, nil)

	err := p.Run(context.Background(), records.record.ID)

	require.Error(t, err)
	assert.Equal(t, aiErr.Error(), records.failedReason)
	assert.Nil(t, records.completed)
	last := records.failedStages[len(records.failedStages)-1]
	assert.Equal(t, StageAIAnalysis, last.Name)
	assert.Equal(t, stageFailed, last.Status)
}

func TestRunUsesJobSnapshot(t *testing.T) {
	record := pendingRecord()
	record.TargetJobs = []model.TargetJob{{Title: "Staff Engineer", Company: "Acme"}}
	records := &fakeRecords{record: record, claimed: true, completedDone: true}
	ai := okAI()
	p := NewProcessor(records, &fakeExtractor{extraction: okExtraction()}, ai, &fakeJobs{}, nil)

	require.NoError(t, p.Run(context.Background(), record.ID))
	assert.Contains(t, ai.prompt, "Staff Engineer at Acme")
}

func TestRunResolvesReferencedJob(t *testing.T) {
	record := pendingRecord()
	jobID := uuid.New()
	record.TargetJobID = &jobID
	jobs := &fakeJobs{job: &model.Job{Title: "Data Engineer", Company: "Initech", Requirements: "SQL"}}
	records := &fakeRecords{record: record, claimed: true, completedDone: true}
	ai := okAI()
	p := NewProcessor(records, &fakeExtractor{extraction: okExtraction()}, ai, jobs, nil)

	require.NoError(t, p.Run(context.Background(), record.ID))
	assert.Contains(t, ai.prompt, "Data Engineer at Initech")
	assert.Contains(t, ai.prompt, "Requirements: SQL")
}

func TestRunMissingReferencedJobFails(t *testing.T) {
	record := pendingRecord()
	jobID := uuid.New()
	record.TargetJobID = &jobID
	jobs := &fakeJobs{jobErr: errors.New("record not found")}
	records := &fakeRecords{record: record, claimed: true}
	p := NewProcessor(records, &fakeExtractor{extraction: okExtraction()}, okAI(), jobs, nil)

	err := p.Run(context.Background(), record.ID)

	require.Error(t, err)
	assert.True(t, strings.Contains(records.failedReason, jobID.String()))
}

func TestRunEmbeddingRetrievalFallback(t *testing.T) {
	records := &fakeRecords{record: pendingRecord(), claimed: true, completedDone: true}
	jobs := &fakeJobs{matches: []model.Job{{Title: "Backend Engineer"}, {Title: "SRE"}}}
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	ai := okAI()
	p := NewProcessor(records, &fakeExtractor{extraction: okExtraction()}, ai, jobs, embedder)

	require.NoError(t, p.Run(context.Background(), records.record.ID))
	assert.Contains(t, ai.prompt, "Backend Engineer")
	assert.Contains(t, ai.prompt, "SRE")
}

func TestRunEmbeddingFailureIsBestEffort(t *testing.T) {
	records := &fakeRecords{record: pendingRecord(), claimed: true, completedDone: true}
	embedder := &fakeEmbedder{err: errors.New("embedding quota exceeded")}
	ai := okAI()
	p := NewProcessor(records, &fakeExtractor{extraction: okExtraction()}, ai, &fakeJobs{}, embedder)

	require.NoError(t, p.Run(context.Background(), records.record.ID))
	require.NotNil(t, records.completed)
	assert.Zero(t, records.markFailedCalls)
	assert.Contains(t, ai.prompt, "general Computer Science job market")
}

func TestRunCompletionDroppedWhenTerminal(t *testing.T) {
	records := &fakeRecords{record: pendingRecord(), claimed: true, completedDone: false}
	p := NewProcessor(records, &fakeExtractor{extraction: okExtraction()}, okAI(), &fakeJobs{}, nil)

	err := p.Run(context.Background(), records.record.ID)

	require.NoError(t, err)
}

func TestHandleRunBadPayload(t *testing.T) {
	p := NewProcessor(&fakeRecords{}, &fakeExtractor{}, okAI(), &fakeJobs{}, nil)

	err := p.HandleRun(context.Background(), asynq.NewTask(queue.RunAnalysisTask, []byte("{not json")))
	require.Error(t, err)

	err = p.HandleRun(context.Background(), asynq.NewTask(queue.RunAnalysisTask, []byte(`{"analysis_id": "not-a-uuid"}`)))
	require.Error(t, err)
}
