package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

type mockSaver struct{ mock.Mock }

func (m *mockSaver) SaveResult(ctx context.Context, rec *model.ResultRecord) (uuid.UUID, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func TestDecodeResult(t *testing.T) {
	examID := uuid.New()
	rec, err := decodeResult(`{"exam_id":"` + examID.String() + `","user_id":9,"score":7,"trigger":"DISCONNECT"}`)
	require.NoError(t, err)
	assert.Equal(t, examID, rec.ExamID)
	assert.Equal(t, 9, rec.UserID)
	assert.Equal(t, 7, rec.Score)
	assert.Equal(t, model.SubmitDisconnect, rec.Trigger)

	assert.Zero(t, rec.Attempts)

	rec, err = decodeResult(`{"exam_id":"` + examID.String() + `","user_id":9,"attempts":3}`)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Attempts)

	_, err = decodeResult(`{"user_id":9}`)
	assert.Error(t, err)
	_, err = decodeResult(`not json`)
	assert.Error(t, err)
}

func TestResultWorker_FlushReturnsFailures(t *testing.T) {
	saver := &mockSaver{}
	w := NewResultWorker(nil, saver, zerolog.Nop())

	ok := &queuedResult{ResultRecord: model.ResultRecord{ExamID: uuid.New(), UserID: 1}}
	bad := &queuedResult{ResultRecord: model.ResultRecord{ExamID: uuid.New(), UserID: 2}}
	saver.On("SaveResult", mock.Anything, &ok.ResultRecord).Return(uuid.New(), nil).Once()
	saver.On("SaveResult", mock.Anything, &bad.ResultRecord).Return(uuid.Nil, errors.New("too many connections")).Once()

	failed := w.flush(context.Background(), []*queuedResult{ok, bad})
	assert.Equal(t, []*queuedResult{bad}, failed)
	saver.AssertExpectations(t)
}

func TestSplitFailed_DeadAfterMaxAttempts(t *testing.T) {
	fresh := &queuedResult{ResultRecord: model.ResultRecord{ExamID: uuid.New(), UserID: 1}}
	worn := &queuedResult{ResultRecord: model.ResultRecord{ExamID: uuid.New(), UserID: 2}, Attempts: ResultMaxAttempts - 1}

	retry, dead := splitFailed([]*queuedResult{fresh, worn})
	assert.Equal(t, []*queuedResult{fresh}, retry)
	assert.Equal(t, []*queuedResult{worn}, dead)
	assert.Equal(t, 1, fresh.Attempts)
	assert.Equal(t, ResultMaxAttempts, worn.Attempts)
}

func TestQueuedResult_AttemptsSurviveRequeue(t *testing.T) {
	rec := &queuedResult{ResultRecord: model.ResultRecord{ExamID: uuid.New(), UserID: 4, Answers: map[string]int{"q": 1}}, Attempts: 2}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	back, err := decodeResult(string(raw))
	require.NoError(t, err)
	assert.Equal(t, 2, back.Attempts)
	assert.Equal(t, rec.ResultRecord.Answers, back.Answers)
}
