package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

var (
	ErrCorrectIndexOutOfRange = errors.New("correct_index is outside the options")
	ErrExamNotFound           = errors.New("exam not found")
)

// ExamWriter creates and updates exams.
type ExamWriter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	Create(ctx context.Context, e *model.Exam) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error
}

// QuestionWriter creates questions.
type QuestionWriter interface {
	Create(ctx context.Context, q *model.Question) error
}

// ExamAdminService authors exams and keeps the session cache in step with
// their status.
type ExamAdminService struct {
	exams     ExamWriter
	questions QuestionWriter
	store     *ExamStore
	log       zerolog.Logger
}

// NewExamAdminService creates a new ExamAdminService.
func NewExamAdminService(exams ExamWriter, questions QuestionWriter, store *ExamStore, log zerolog.Logger) *ExamAdminService {
	return &ExamAdminService{
		exams:     exams,
		questions: questions,
		store:     store,
		log:       log.With().Str("component", "exam_admin_service").Logger(),
	}
}

// CreateExam stores a draft exam and its questions in order. TotalMarks
// defaults to the sum of the question marks.
func (s *ExamAdminService) CreateExam(ctx context.Context, req *model.CreateExamRequest) (*model.Exam, []model.Question, error) {
	for i, q := range req.Questions {
		if q.CorrectIndex >= len(q.Options) {
			return nil, nil, fmt.Errorf("question %d: %w", i+1, ErrCorrectIndexOutOfRange)
		}
	}

	total := req.TotalMarks
	if total == 0 {
		for _, q := range req.Questions {
			total += q.Marks
		}
	}

	exam := &model.Exam{
		Title:           req.Title,
		Description:     req.Description,
		DurationSeconds: req.DurationSeconds,
		TotalMarks:      total,
		MaxViolations:   req.MaxViolations,
		Status:          model.ExamStatusDraft,
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, nil, fmt.Errorf("create exam: %w", err)
	}

	questions := make([]model.Question, 0, len(req.Questions))
	for i, q := range req.Questions {
		question := model.Question{
			ExamID:       exam.ID,
			Text:         q.Text,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
			Marks:        q.Marks,
			OrderNum:     i + 1,
		}
		if err := s.questions.Create(ctx, &question); err != nil {
			return nil, nil, fmt.Errorf("create question %d: %w", i+1, err)
		}
		questions = append(questions, question)
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(questions)).
		Msg("Exam created")
	return exam, questions, nil
}

// SetStatus changes an exam's status. Publishing warms the session cache and
// requires at least one question; any other status drops the cache.
func (s *ExamAdminService) SetStatus(ctx context.Context, examID uuid.UUID, status model.ExamStatus) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	if status == model.ExamStatusPublished {
		probe := *exam
		probe.Status = status
		if err := s.store.WarmExam(ctx, &probe); err != nil {
			if errors.Is(err, session.ErrNoQuestions) {
				return nil, err
			}
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Cache warm failed")
		}
	}

	if err := s.exams.UpdateStatus(ctx, examID, status); err != nil {
		_ = s.store.Invalidate(ctx, examID)
		return nil, fmt.Errorf("update status: %w", err)
	}
	exam.Status = status

	if status != model.ExamStatusPublished {
		if err := s.store.Invalidate(ctx, examID); err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Cache invalidation failed")
		}
	}

	s.log.Info().Str("exam_id", examID.String()).Str("status", string(status)).Msg("Exam status changed")
	return exam, nil
}
