package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam represents an exam entity.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DurationSeconds int        `json:"duration_seconds"`
	TotalMarks      int        `json:"total_marks"`
	MaxViolations   *int       `json:"max_violations,omitempty"`
	Status          ExamStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Published reports whether students may open a session for the exam.
func (e *Exam) Published() bool {
	return e.Status == ExamStatusPublished
}

// ExamListing is an exam as shown on the student dashboard.
type ExamListing struct {
	Exam
	QuestionCount int  `json:"question_count"`
	Attempted     bool `json:"attempted"`
}

// CreateQuestionRequest is one question in a CreateExamRequest.
type CreateQuestionRequest struct {
	Text         string   `json:"text" binding:"required,max=4000"`
	Options      []string `json:"options" binding:"required,min=2,max=10,dive,required,max=1000"`
	CorrectIndex int      `json:"correct_index" binding:"min=0"`
	Marks        int      `json:"marks" binding:"min=0,max=1000"`
}

// CreateExamRequest is the payload for authoring an exam with its questions.
type CreateExamRequest struct {
	Title           string                  `json:"title" binding:"required,max=255"`
	Description     string                  `json:"description" binding:"max=4000"`
	DurationSeconds int                     `json:"duration_seconds" binding:"required,min=1,max=86400"`
	TotalMarks      int                     `json:"total_marks" binding:"min=0"`
	MaxViolations   *int                    `json:"max_violations" binding:"omitempty,min=1,max=100"`
	Questions       []CreateQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// UpdateExamStatusRequest publishes or archives an exam.
type UpdateExamStatusRequest struct {
	Status ExamStatus `json:"status" binding:"required,oneof=DRAFT PUBLISHED ARCHIVED"`
}
