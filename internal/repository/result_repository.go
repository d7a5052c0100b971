package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-proctor/internal/model"
)

const resultColumns = `er.id, er.exam_id, er.user_id, u.email, u.name, er.answers, er.violation_count,
	er.trigger, er.started_at, er.submitted_at, er.score, er.max_score, er.correct_count,
	er.wrong_count, er.unanswered_count, er.percentage, er.grade, er.time_taken_seconds`

// ResultRepository handles exam result data access.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

func scanResult(row pgx.Row, rec *model.ResultRecord, extra ...any) error {
	dest := []any{
		&rec.ID, &rec.ExamID, &rec.UserID, &rec.UserEmail, &rec.UserName, &rec.Answers, &rec.ViolationCount,
		&rec.Trigger, &rec.StartedAt, &rec.SubmittedAt, &rec.Score, &rec.MaxScore, &rec.CorrectCount,
		&rec.WrongCount, &rec.UnansweredCount, &rec.Percentage, &rec.Grade, &rec.TimeTakenSeconds,
	}
	return row.Scan(append(dest, extra...)...)
}

// Exists reports whether userID already has a result for examID.
func (r *ResultRepository) Exists(ctx context.Context, examID uuid.UUID, userID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_results WHERE exam_id = $1 AND user_id = $2)`,
		examID, userID,
	).Scan(&exists)
	return exists, err
}

// Create stores a result once per (exam, user). A repeated insert for the same
// pair returns the ID of the row already stored.
func (r *ResultRepository) Create(ctx context.Context, rec *model.ResultRecord) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_results (exam_id, user_id, answers, violation_count, trigger, started_at,
		        submitted_at, score, max_score, correct_count, wrong_count, unanswered_count,
		        percentage, grade, time_taken_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (exam_id, user_id) DO NOTHING
		 RETURNING id`,
		rec.ExamID, rec.UserID, rec.Answers, rec.ViolationCount, rec.Trigger, rec.StartedAt,
		rec.SubmittedAt, rec.Score, rec.MaxScore, rec.CorrectCount, rec.WrongCount, rec.UnansweredCount,
		rec.Percentage, rec.Grade, rec.TimeTakenSeconds,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, err
	}

	err = r.pool.QueryRow(ctx,
		`SELECT id FROM exam_results WHERE exam_id = $1 AND user_id = $2`,
		rec.ExamID, rec.UserID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load existing result: %w", err)
	}
	return id, nil
}

// ListByUser retrieves all results for a user with the exam title.
func (r *ResultRepository) ListByUser(ctx context.Context, userID int) ([]model.ResultSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+resultColumns+`, e.title
		 FROM exam_results er
		 JOIN users u ON er.user_id = u.id
		 JOIN exams e ON er.exam_id = e.id
		 WHERE er.user_id = $1
		 ORDER BY er.submitted_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.ResultSummary
	for rows.Next() {
		var s model.ResultSummary
		if err := scanResult(rows, &s.ResultRecord, &s.ExamTitle); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// ListByExam retrieves a page of results for an exam, newest first.
func (r *ResultRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ResultRecord, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_results WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+resultColumns+`
		 FROM exam_results er
		 JOIN users u ON er.user_id = u.id
		 WHERE er.exam_id = $1
		 ORDER BY er.submitted_at DESC, u.name ASC
		 LIMIT $2 OFFSET $3`, examID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []model.ResultRecord
	for rows.Next() {
		var rec model.ResultRecord
		if err := scanResult(rows, &rec); err != nil {
			return nil, 0, err
		}
		results = append(results, rec)
	}
	return results, total, rows.Err()
}
