package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// ExamReader reads exams.
type ExamReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
}

// QuestionReader reads an exam's ordered questions.
type QuestionReader interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// ResultWriter stores one result per exam and user.
type ResultWriter interface {
	Exists(ctx context.Context, examID uuid.UUID, userID int) (bool, error)
	Create(ctx context.Context, rec *model.ResultRecord) (uuid.UUID, error)
}

// ErrQueueUnavailable is returned by Enqueue when Redis is not configured.
var ErrQueueUnavailable = errors.New("result queue unavailable")

// ExamStore is the session data store: PostgreSQL behind a Redis read cache.
// A nil Redis client disables caching.
type ExamStore struct {
	exams     ExamReader
	questions QuestionReader
	results   ResultWriter
	rdb       *redis.Client
	ttl       time.Duration
	log       zerolog.Logger
}

var _ session.DataStore = (*ExamStore)(nil)

// NewExamStore creates a new ExamStore.
func NewExamStore(exams ExamReader, questions QuestionReader, results ResultWriter, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ExamStore {
	return &ExamStore{
		exams:     exams,
		questions: questions,
		results:   results,
		rdb:       rdb,
		ttl:       ttl,
		log:       log.With().Str("component", "exam_store").Logger(),
	}
}

// GetExam returns the exam or session.ErrExamUnavailable when it does not exist.
func (s *ExamStore) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())

	var exam model.Exam
	if s.cacheGet(ctx, key, &exam) {
		return &exam, nil
	}

	e, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrExamUnavailable
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if e.Published() {
		s.cacheSet(ctx, key, e)
	}
	return e, nil
}

// GetQuestions returns the exam's questions in display order.
func (s *ExamStore) GetQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	key := config.CacheKey.ExamQuestionsKey(examID.String())

	var questions []model.Question
	if s.cacheGet(ctx, key, &questions) {
		return questions, nil
	}

	questions, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) > 0 {
		s.cacheSet(ctx, key, questions)
	}
	return questions, nil
}

// HasAttempted reports whether userID already has a stored result for examID.
func (s *ExamStore) HasAttempted(ctx context.Context, userID int, examID uuid.UUID) (bool, error) {
	key := config.CacheKey.AttemptedKey(examID.String(), userID)
	if s.rdb != nil {
		n, err := s.rdb.Exists(ctx, key).Result()
		if err == nil && n > 0 {
			return true, nil
		}
		if err != nil {
			s.log.Warn().Err(err).Msg("Attempt marker lookup failed, falling back to database")
		}
	}

	exists, err := s.results.Exists(ctx, examID, userID)
	if err != nil {
		return false, fmt.Errorf("check result: %w", err)
	}
	if exists {
		s.markAttempted(ctx, key)
	}
	return exists, nil
}

// SaveResult persists rec. Saving twice for the same exam and user yields the first row's ID.
func (s *ExamStore) SaveResult(ctx context.Context, rec *model.ResultRecord) (uuid.UUID, error) {
	id, err := s.results.Create(ctx, rec)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save result: %w", err)
	}

	s.markAttempted(ctx, config.CacheKey.AttemptedKey(rec.ExamID.String(), rec.UserID))

	s.log.Info().
		Str("result_id", id.String()).
		Str("exam_id", rec.ExamID.String()).
		Int("user_id", rec.UserID).
		Int("score", rec.Score).
		Msg("Result stored")
	return id, nil
}

// Enqueue hands rec to the result worker and marks the attempt, so the exam
// cannot be reopened while the result waits in the queue.
func (s *ExamStore) Enqueue(ctx context.Context, rec *model.ResultRecord) error {
	if s.rdb == nil {
		return ErrQueueUnavailable
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue result: %w", err)
	}
	s.markAttempted(ctx, config.CacheKey.AttemptedKey(rec.ExamID.String(), rec.UserID))

	s.log.Warn().
		Str("exam_id", rec.ExamID.String()).
		Int("user_id", rec.UserID).
		Msg("Result queued for later persistence")
	return nil
}

// WarmExam loads a published exam and its questions into Redis.
func (s *ExamStore) WarmExam(ctx context.Context, exam *model.Exam) error {
	questions, err := s.questions.ListByExam(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return session.ErrNoQuestions
	}

	s.cacheSet(ctx, config.CacheKey.ExamPayloadKey(exam.ID.String()), exam)
	s.cacheSet(ctx, config.CacheKey.ExamQuestionsKey(exam.ID.String()), questions)

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAll caches every published exam on startup.
func (s *ExamStore) PrewarmAll(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}

	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}
	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if err := s.WarmExam(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// Invalidate drops the cached exam and questions.
func (s *ExamStore) Invalidate(ctx context.Context, examID uuid.UUID) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx,
		config.CacheKey.ExamPayloadKey(examID.String()),
		config.CacheKey.ExamQuestionsKey(examID.String()),
	).Err()
}

func (s *ExamStore) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.rdb == nil {
		return false
	}
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Corrupt cache entry")
		return false
	}
	return true
}

func (s *ExamStore) cacheSet(ctx context.Context, key string, v any) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

func (s *ExamStore) markAttempted(ctx context.Context, key string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Set(ctx, key, 1, 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Attempt marker write failed")
	}
}
