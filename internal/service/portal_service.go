package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// ExamLister lists exams for the student dashboard.
type ExamLister interface {
	ListPublishedForUser(ctx context.Context, userID int) ([]model.ExamListing, error)
}

// ResultReader reads stored results.
type ResultReader interface {
	ListByUser(ctx context.Context, userID int) ([]model.ResultSummary, error)
	ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ResultRecord, int64, error)
}

// Eligibility explains whether a user may open a session for an exam.
type Eligibility struct {
	ExamID        uuid.UUID `json:"exam_id"`
	Eligible      bool      `json:"eligible"`
	Reason        string    `json:"reason,omitempty"`
	QuestionCount int       `json:"question_count"`
}

// PortalService serves the student dashboard and the result listings.
type PortalService struct {
	exams   ExamLister
	results ResultReader
	store   session.DataStore
}

// NewPortalService creates a new PortalService.
func NewPortalService(exams ExamLister, results ResultReader, store session.DataStore) *PortalService {
	return &PortalService{exams: exams, results: results, store: store}
}

// ListExams returns published exams with the user's attempt flag.
func (s *PortalService) ListExams(ctx context.Context, userID int) ([]model.ExamListing, error) {
	exams, err := s.exams.ListPublishedForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if exams == nil {
		exams = []model.ExamListing{}
	}
	return exams, nil
}

// CheckEligibility runs the same checks a session launch does, without opening one.
func (s *PortalService) CheckEligibility(ctx context.Context, userID int, examID uuid.UUID) (*Eligibility, error) {
	out := &Eligibility{ExamID: examID}

	attempted, err := s.store.HasAttempted(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	if attempted {
		out.Reason = session.ErrAlreadyAttempted.Error()
		return out, nil
	}

	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, session.ErrExamUnavailable) {
			out.Reason = err.Error()
			return out, nil
		}
		return nil, err
	}
	if !exam.Published() {
		out.Reason = session.ErrExamUnavailable.Error()
		return out, nil
	}

	questions, err := s.store.GetQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	out.QuestionCount = len(questions)
	if len(questions) == 0 {
		out.Reason = session.ErrNoQuestions.Error()
		return out, nil
	}

	out.Eligible = true
	return out, nil
}

// ListResults returns the user's stored results, newest first.
func (s *PortalService) ListResults(ctx context.Context, userID int) ([]model.ResultSummary, error) {
	results, err := s.results.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []model.ResultSummary{}
	}
	return results, nil
}

// ListExamResults returns a page of results for an exam.
func (s *PortalService) ListExamResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ResultRecord, *response.Pagination, error) {
	page, perPage = response.NormalizePage(page, perPage)

	results, total, err := s.results.ListByExam(ctx, examID, page, perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list results: %w", err)
	}
	if results == nil {
		results = []model.ResultRecord{}
	}
	return results, response.NewPagination(page, perPage, int(total)), nil
}
