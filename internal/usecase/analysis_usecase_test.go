package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jobhive/cv-insight/internal/config"
	"github.com/jobhive/cv-insight/internal/model"
	"github.com/jobhive/cv-insight/internal/repository"
)

type fakeRepo struct {
	createErr    error
	created      *model.AnalysisRecord
	deleted      []uuid.UUID
	record       *model.AnalysisRecord
	findErr      error
	claimOK      bool
	claimErr     error
	claimUpdates map[string]any
	softKey      string
	softErr      error
	failedReason string
	analytics    *repository.Analytics
	listRecords  []model.AnalysisRecord
	listTotal    int64
}

func (f *fakeRepo) Create(ctx context.Context, record *model.AnalysisRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = record
	return nil
}

func (f *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRepo) FindByIDAndOwner(ctx context.Context, id, userID uuid.UUID) (*model.AnalysisRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.record, nil
}

func (f *fakeRepo) ListByOwner(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]model.AnalysisRecord, int64, error) {
	return f.listRecords, f.listTotal, nil
}

func (f *fakeRepo) SoftDelete(ctx context.Context, id, userID uuid.UUID) (string, error) {
	if f.softErr != nil {
		return "", f.softErr
	}
	return f.softKey, nil
}

func (f *fakeRepo) ClaimForReanalysis(ctx context.Context, id, userID uuid.UUID, updates map[string]any) (bool, error) {
	f.claimUpdates = updates
	return f.claimOK, f.claimErr
}

func (f *fakeRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string, stages []model.StageStatus) (bool, error) {
	f.failedReason = reason
	return true, nil
}

func (f *fakeRepo) Analytics(ctx context.Context, userID uuid.UUID, since time.Time) (*repository.Analytics, error) {
	return f.analytics, nil
}

type fakeStore struct {
	saved    map[string][]byte
	saveErr  error
	deleted  []string
	healthOK bool
}

func (f *fakeStore) Save(ctx context.Context, key string, data []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.saved[key] = data
	return nil
}

func (f *fakeStore) Read(ctx context.Context, key string) ([]byte, error) { return f.saved[key], nil }

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStore) Healthy(ctx context.Context) error { return nil }

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func newTestUsecase(repo *fakeRepo, store *fakeStore, tasks *fakeEnqueuer) *AnalysisUsecase {
	return NewAnalysisUsecase(repo, store, tasks, &config.UploadConfig{
		EstimatedDuration: 45 * time.Second,
	})
}

func validSubmit() SubmitInput {
	return SubmitInput{
		UserID:          uuid.New(),
		Filename:        "resume.pdf",
		Data:            []byte("%PDF-1.7 data"),
		ExperienceLevel: model.LevelMid,
		Major:           "Computer Science",
	}
}

func TestSubmitCreatesPendingAndEnqueues(t *testing.T) {
	repo := &fakeRepo{}
	store := &fakeStore{}
	tasks := &fakeEnqueuer{}
	uc := newTestUsecase(repo, store, tasks)

	result, err := uc.Submit(context.Background(), validSubmit())

	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, model.StatusPending, repo.created.Status)
	assert.Equal(t, "resume.pdf", repo.created.OriginalFilename)
	assert.NotEmpty(t, repo.created.StoredFile)
	assert.Contains(t, store.saved, repo.created.StoredFile)
	require.Len(t, tasks.tasks, 1)
	assert.Equal(t, repo.created.ID, result.AnalysisID)
	assert.Equal(t, model.StatusProcessing, result.Status)
	assert.Equal(t, 45*time.Second, result.EstimatedTime)
}

func TestSubmitRollsBackFileWhenCreateFails(t *testing.T) {
	repo := &fakeRepo{createErr: errors.New("db down")}
	store := &fakeStore{}
	uc := newTestUsecase(repo, store, &fakeEnqueuer{})

	_, err := uc.Submit(context.Background(), validSubmit())

	require.Error(t, err)
	require.Len(t, store.deleted, 1)
}

func TestSubmitRollsBackEverythingWhenEnqueueFails(t *testing.T) {
	repo := &fakeRepo{}
	store := &fakeStore{}
	tasks := &fakeEnqueuer{err: errors.New("redis down")}
	uc := newTestUsecase(repo, store, tasks)

	_, err := uc.Submit(context.Background(), validSubmit())

	require.Error(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, []uuid.UUID{repo.created.ID}, repo.deleted)
	assert.Equal(t, []string{repo.created.StoredFile}, store.deleted)
}

func TestGetResultMapsMissingRecord(t *testing.T) {
	repo := &fakeRepo{findErr: gorm.ErrRecordNotFound}
	uc := newTestUsecase(repo, &fakeStore{}, &fakeEnqueuer{})

	_, err := uc.GetResult(context.Background(), uuid.New(), uuid.New())

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetResultPassesThroughOtherErrors(t *testing.T) {
	repo := &fakeRepo{findErr: errors.New("connection refused")}
	uc := newTestUsecase(repo, &fakeStore{}, &fakeEnqueuer{})

	_, err := uc.GetResult(context.Background(), uuid.New(), uuid.New())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestReanalyzeClaimsAndEnqueues(t *testing.T) {
	record := &model.AnalysisRecord{ID: uuid.New(), Status: model.StatusCompleted}
	repo := &fakeRepo{record: record, claimOK: true}
	tasks := &fakeEnqueuer{}
	uc := newTestUsecase(repo, &fakeStore{}, tasks)

	level := model.LevelSenior
	result, err := uc.Reanalyze(context.Background(), uuid.New(), record.ID, ReanalyzeInput{ExperienceLevel: &level})

	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, result.Status)
	assert.Equal(t, model.LevelSenior, repo.claimUpdates["experience_level"])
	require.Len(t, tasks.tasks, 1)
}

func TestReanalyzeConflictWhenClaimLost(t *testing.T) {
	record := &model.AnalysisRecord{ID: uuid.New(), Status: model.StatusProcessing}
	repo := &fakeRepo{record: record, claimOK: false}
	uc := newTestUsecase(repo, &fakeStore{}, &fakeEnqueuer{})

	_, err := uc.Reanalyze(context.Background(), uuid.New(), record.ID, ReanalyzeInput{})

	assert.ErrorIs(t, err, ErrConflict)
}

func TestReanalyzeNotFound(t *testing.T) {
	repo := &fakeRepo{findErr: gorm.ErrRecordNotFound}
	uc := newTestUsecase(repo, &fakeStore{}, &fakeEnqueuer{})

	_, err := uc.Reanalyze(context.Background(), uuid.New(), uuid.New(), ReanalyzeInput{})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReanalyzeEnqueueFailureFailsRecord(t *testing.T) {
	record := &model.AnalysisRecord{ID: uuid.New(), Status: model.StatusCompleted}
	repo := &fakeRepo{record: record, claimOK: true}
	tasks := &fakeEnqueuer{err: errors.New("redis down")}
	uc := newTestUsecase(repo, &fakeStore{}, tasks)

	_, err := uc.Reanalyze(context.Background(), uuid.New(), record.ID, ReanalyzeInput{})

	require.Error(t, err)
	assert.Equal(t, "could not schedule reanalysis", repo.failedReason)
}

func TestDeleteRemovesStoredFile(t *testing.T) {
	repo := &fakeRepo{softKey: "123-abc.pdf"}
	store := &fakeStore{}
	uc := newTestUsecase(repo, store, &fakeEnqueuer{})

	require.NoError(t, uc.Delete(context.Background(), uuid.New(), uuid.New()))
	assert.Equal(t, []string{"123-abc.pdf"}, store.deleted)
}

func TestDeleteNotFound(t *testing.T) {
	repo := &fakeRepo{softErr: gorm.ErrRecordNotFound}
	uc := newTestUsecase(repo, &fakeStore{}, &fakeEnqueuer{})

	err := uc.Delete(context.Background(), uuid.New(), uuid.New())

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnalyticsClampsWindow(t *testing.T) {
	repo := &fakeRepo{analytics: &repository.Analytics{TotalAnalyses: 3}}
	uc := newTestUsecase(repo, &fakeStore{}, &fakeEnqueuer{})

	for _, days := range []int{-1, 0, 30, 9999} {
		result, err := uc.Analytics(context.Background(), uuid.New(), days)
		require.NoError(t, err)
		assert.Equal(t, int64(3), result.TotalAnalyses)
	}
}
