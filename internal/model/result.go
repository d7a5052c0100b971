package model

import (
	"time"

	"github.com/google/uuid"
)

// Grade is the letter grade derived from a percentage.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// SubmitTrigger records what moved the session into submission.
type SubmitTrigger string

const (
	SubmitManual     SubmitTrigger = "MANUAL"
	SubmitTimeout    SubmitTrigger = "TIMEOUT"
	SubmitForced     SubmitTrigger = "FORCED"
	SubmitDisconnect SubmitTrigger = "DISCONNECT"
)

// ScoreResult is computed once at submission and never mutated afterwards.
type ScoreResult struct {
	Score            int   `json:"score"`
	MaxScore         int   `json:"max_score"`
	CorrectCount     int   `json:"correct_count"`
	WrongCount       int   `json:"wrong_count"`
	UnansweredCount  int   `json:"unanswered_count"`
	Percentage       int   `json:"percentage"`
	Grade            Grade `json:"grade"`
	TimeTakenSeconds int   `json:"time_taken_seconds"`
}

// ResultRecord is the immutable row handed to the store on submission.
type ResultRecord struct {
	ID             uuid.UUID      `json:"id"`
	ExamID         uuid.UUID      `json:"exam_id"`
	UserID         int            `json:"user_id"`
	UserEmail      string         `json:"user_email"`
	UserName       string         `json:"user_name"`
	Answers        map[string]int `json:"answers"`
	ViolationCount int            `json:"violation_count"`
	Trigger        SubmitTrigger  `json:"trigger"`
	StartedAt      time.Time      `json:"started_at"`
	SubmittedAt    time.Time      `json:"submitted_at"`
	ScoreResult
}

// ResultSummary is a stored result joined with its exam title.
type ResultSummary struct {
	ResultRecord
	ExamTitle string `json:"exam_title"`
}
