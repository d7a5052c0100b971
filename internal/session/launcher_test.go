package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

func newLauncherFixture() (*fixture, *mockAuth, *Launcher) {
	f := newFixture(600)
	auth := &mockAuth{}
	return f, auth, NewLauncher(f.store, auth, zerolog.Nop())
}

func TestLauncher_OpenReturnsNotStartedController(t *testing.T) {
	f, auth, l := newLauncherFixture()
	auth.On("CurrentUser", mock.Anything).Return(f.user, nil)
	f.store.On("HasAttempted", mock.Anything, f.user.ID, f.exam.ID).Return(false, nil)
	f.store.On("GetExam", mock.Anything, f.exam.ID).Return(f.exam, nil)
	f.store.On("GetQuestions", mock.Anything, f.exam.ID).Return(f.questions, nil)

	c, err := l.Open(context.Background(), f.exam.ID, f.runtime())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Equal(t, PhaseNotStarted, snap(t, c).Phase)
	assert.Equal(t, f.exam, c.Exam())
	assert.Len(t, c.Questions(), 3)
	f.store.AssertExpectations(t)
}

func TestLauncher_AlreadyAttemptedSkipsQuestionLoad(t *testing.T) {
	f, auth, l := newLauncherFixture()
	auth.On("CurrentUser", mock.Anything).Return(f.user, nil)
	f.store.On("HasAttempted", mock.Anything, f.user.ID, f.exam.ID).Return(true, nil)

	c, err := l.Open(context.Background(), f.exam.ID, f.runtime())
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrAlreadyAttempted)
	f.store.AssertNotCalled(t, "GetQuestions", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "GetExam", mock.Anything, mock.Anything)
}

func TestLauncher_Unauthenticated(t *testing.T) {
	f, auth, l := newLauncherFixture()
	auth.On("CurrentUser", mock.Anything).Return(nil, errors.New("token expired"))

	_, err := l.Open(context.Background(), f.exam.ID, f.runtime())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	f.store.AssertNotCalled(t, "HasAttempted", mock.Anything, mock.Anything, mock.Anything)
}

func TestLauncher_UnpublishedExam(t *testing.T) {
	f, auth, l := newLauncherFixture()
	f.exam.Status = model.ExamStatusDraft
	auth.On("CurrentUser", mock.Anything).Return(f.user, nil)
	f.store.On("HasAttempted", mock.Anything, f.user.ID, f.exam.ID).Return(false, nil)
	f.store.On("GetExam", mock.Anything, f.exam.ID).Return(f.exam, nil)
	f.store.On("GetQuestions", mock.Anything, f.exam.ID).Return(f.questions, nil)

	_, err := l.Open(context.Background(), f.exam.ID, f.runtime())
	assert.ErrorIs(t, err, ErrExamUnavailable)
}

func TestLauncher_MissingExam(t *testing.T) {
	f, auth, l := newLauncherFixture()
	auth.On("CurrentUser", mock.Anything).Return(f.user, nil)
	f.store.On("HasAttempted", mock.Anything, f.user.ID, f.exam.ID).Return(false, nil)
	f.store.On("GetExam", mock.Anything, f.exam.ID).Return(nil, ErrExamUnavailable)
	f.store.On("GetQuestions", mock.Anything, f.exam.ID).Return(nil, nil).Maybe()

	_, err := l.Open(context.Background(), f.exam.ID, f.runtime())
	assert.ErrorIs(t, err, ErrExamUnavailable)
}

func TestLauncher_NoQuestions(t *testing.T) {
	f, auth, l := newLauncherFixture()
	auth.On("CurrentUser", mock.Anything).Return(f.user, nil)
	f.store.On("HasAttempted", mock.Anything, f.user.ID, f.exam.ID).Return(false, nil)
	f.store.On("GetExam", mock.Anything, f.exam.ID).Return(f.exam, nil)
	f.store.On("GetQuestions", mock.Anything, f.exam.ID).Return([]model.Question{}, nil)

	_, err := l.Open(context.Background(), f.exam.ID, f.runtime())
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestLauncher_StoreFailure(t *testing.T) {
	f, auth, l := newLauncherFixture()
	dbErr := errors.New("pool exhausted")
	auth.On("CurrentUser", mock.Anything).Return(f.user, nil)
	f.store.On("HasAttempted", mock.Anything, f.user.ID, f.exam.ID).Return(false, dbErr)

	_, err := l.Open(context.Background(), f.exam.ID, f.runtime())
	assert.ErrorIs(t, err, dbErr)
}
