package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

type mockExams struct{ mock.Mock }

func (m *mockExams) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*model.Exam)
	return e, args.Error(1)
}

func (m *mockExams) ListPublished(ctx context.Context) ([]model.Exam, error) {
	args := m.Called(ctx)
	e, _ := args.Get(0).([]model.Exam)
	return e, args.Error(1)
}

func (m *mockExams) ListPublishedForUser(ctx context.Context, userID int) ([]model.ExamListing, error) {
	args := m.Called(ctx, userID)
	e, _ := args.Get(0).([]model.ExamListing)
	return e, args.Error(1)
}

type mockQuestions struct{ mock.Mock }

func (m *mockQuestions) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	args := m.Called(ctx, examID)
	q, _ := args.Get(0).([]model.Question)
	return q, args.Error(1)
}

type mockResults struct{ mock.Mock }

func (m *mockResults) Exists(ctx context.Context, examID uuid.UUID, userID int) (bool, error) {
	args := m.Called(ctx, examID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockResults) Create(ctx context.Context, rec *model.ResultRecord) (uuid.UUID, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockResults) ListByUser(ctx context.Context, userID int) ([]model.ResultSummary, error) {
	args := m.Called(ctx, userID)
	r, _ := args.Get(0).([]model.ResultSummary)
	return r, args.Error(1)
}

func (m *mockResults) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ResultRecord, int64, error) {
	args := m.Called(ctx, examID, page, perPage)
	r, _ := args.Get(0).([]model.ResultRecord)
	return r, args.Get(1).(int64), args.Error(2)
}

type storeFixture struct {
	exams     *mockExams
	questions *mockQuestions
	results   *mockResults
	store     *ExamStore
}

func newStoreFixture() *storeFixture {
	f := &storeFixture{exams: &mockExams{}, questions: &mockQuestions{}, results: &mockResults{}}
	f.store = NewExamStore(f.exams, f.questions, f.results, nil, 0, zerolog.Nop())
	return f
}

func TestExamStore_GetExamMissingIsUnavailable(t *testing.T) {
	f := newStoreFixture()
	id := uuid.New()
	f.exams.On("GetByID", mock.Anything, id).Return(nil, pgx.ErrNoRows)

	_, err := f.store.GetExam(context.Background(), id)
	assert.ErrorIs(t, err, session.ErrExamUnavailable)
}

func TestExamStore_GetExamWrapsDatabaseErrors(t *testing.T) {
	f := newStoreFixture()
	id := uuid.New()
	dbErr := errors.New("conn refused")
	f.exams.On("GetByID", mock.Anything, id).Return(nil, dbErr)

	_, err := f.store.GetExam(context.Background(), id)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, session.ErrExamUnavailable)
}

func TestExamStore_HasAttemptedFallsBackToDatabase(t *testing.T) {
	f := newStoreFixture()
	id := uuid.New()
	f.results.On("Exists", mock.Anything, id, 4).Return(true, nil).Once()

	attempted, err := f.store.HasAttempted(context.Background(), 4, id)
	require.NoError(t, err)
	assert.True(t, attempted)
	f.results.AssertExpectations(t)
}

func TestExamStore_SaveResultReturnsStoredID(t *testing.T) {
	f := newStoreFixture()
	id := uuid.New()
	rec := &model.ResultRecord{ExamID: uuid.New(), UserID: 4}
	f.results.On("Create", mock.Anything, rec).Return(id, nil).Once()

	got, err := f.store.SaveResult(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestExamStore_SaveResultPropagatesFailure(t *testing.T) {
	f := newStoreFixture()
	f.results.On("Create", mock.Anything, mock.Anything).Return(uuid.Nil, errors.New("deadlock detected"))

	_, err := f.store.SaveResult(context.Background(), &model.ResultRecord{})
	assert.ErrorContains(t, err, "deadlock detected")
}

func TestExamStore_WarmExamRequiresQuestions(t *testing.T) {
	f := newStoreFixture()
	exam := &model.Exam{ID: uuid.New(), Status: model.ExamStatusPublished}
	f.questions.On("ListByExam", mock.Anything, exam.ID).Return([]model.Question{}, nil)

	assert.ErrorIs(t, f.store.WarmExam(context.Background(), exam), session.ErrNoQuestions)
}

func TestPortalService_CheckEligibility(t *testing.T) {
	f := newStoreFixture()
	portal := NewPortalService(f.exams, f.results, f.store)
	ctx := context.Background()

	published := &model.Exam{ID: uuid.New(), Status: model.ExamStatusPublished}
	f.results.On("Exists", mock.Anything, published.ID, 1).Return(false, nil)
	f.exams.On("GetByID", mock.Anything, published.ID).Return(published, nil)
	f.questions.On("ListByExam", mock.Anything, published.ID).Return([]model.Question{{ID: uuid.New()}}, nil)

	got, err := portal.CheckEligibility(ctx, 1, published.ID)
	require.NoError(t, err)
	assert.True(t, got.Eligible)
	assert.Equal(t, 1, got.QuestionCount)

	done := uuid.New()
	f.results.On("Exists", mock.Anything, done, 1).Return(true, nil)
	got, err = portal.CheckEligibility(ctx, 1, done)
	require.NoError(t, err)
	assert.False(t, got.Eligible)
	assert.Equal(t, session.ErrAlreadyAttempted.Error(), got.Reason)
	f.questions.AssertNotCalled(t, "ListByExam", mock.Anything, done)

	draft := &model.Exam{ID: uuid.New(), Status: model.ExamStatusDraft}
	f.results.On("Exists", mock.Anything, draft.ID, 1).Return(false, nil)
	f.exams.On("GetByID", mock.Anything, draft.ID).Return(draft, nil)
	got, err = portal.CheckEligibility(ctx, 1, draft.ID)
	require.NoError(t, err)
	assert.False(t, got.Eligible)
	assert.Equal(t, session.ErrExamUnavailable.Error(), got.Reason)
}

func TestPortalService_ListExamResultsPaginates(t *testing.T) {
	f := newStoreFixture()
	portal := NewPortalService(f.exams, f.results, f.store)
	examID := uuid.New()
	f.results.On("ListByExam", mock.Anything, examID, 1, 100).Return(nil, int64(0), nil)

	results, page, err := portal.ListExamResults(context.Background(), examID, 0, 1000)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
	assert.Equal(t, 100, page.PerPage)
}

func TestExamStore_EnqueueWithoutRedis(t *testing.T) {
	f := newStoreFixture()
	err := f.store.Enqueue(context.Background(), &model.ResultRecord{ExamID: uuid.New(), UserID: 4})
	assert.ErrorIs(t, err, ErrQueueUnavailable)
}
