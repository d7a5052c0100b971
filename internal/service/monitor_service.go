package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// MonitorEventType names what happened in a live session.
type MonitorEventType string

const (
	MonitorJoined    MonitorEventType = "joined"
	MonitorPhase     MonitorEventType = "phase"
	MonitorViolation MonitorEventType = "violation"
	MonitorSubmitted MonitorEventType = "submitted"
	MonitorLeft      MonitorEventType = "left"
)

// MonitorEvent is published on the exam's monitor channel.
type MonitorEvent struct {
	Type           MonitorEventType      `json:"type"`
	ExamID         uuid.UUID             `json:"exam_id"`
	UserID         int                   `json:"user_id"`
	Name           string                `json:"name"`
	Phase          string                `json:"phase,omitempty"`
	ViolationCount int                   `json:"violation_count"`
	Reason         model.ViolationReason `json:"reason,omitempty"`
	Score          *model.ScoreResult    `json:"score,omitempty"`
	At             time.Time             `json:"at"`
}

// MonitorSnapshot is the initial view sent to an invigilator.
type MonitorSnapshot struct {
	Exam      *model.Exam          `json:"exam"`
	Questions int                  `json:"total_questions"`
	Submitted int64                `json:"total_submitted"`
	Results   []model.ResultRecord `json:"results"`
}

// MonitorService publishes live session events and builds monitor snapshots.
type MonitorService struct {
	rdb     *redis.Client
	store   *ExamStore
	results ResultReader
	log     zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(rdb *redis.Client, store *ExamStore, results ResultReader, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		rdb:     rdb,
		store:   store,
		results: results,
		log:     log.With().Str("component", "monitor_service").Logger(),
	}
}

// Publish sends ev to the exam's monitor channel. Failures are logged only.
func (s *MonitorService) Publish(ctx context.Context, ev MonitorEvent) {
	if s.rdb == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(ev.ExamID.String())
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("Monitor publish failed")
	}
}

// Subscribe attaches to the exam's monitor channel. The caller closes the PubSub.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}

// Snapshot loads the exam, its question count and the latest results in parallel.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) (*MonitorSnapshot, error) {
	snap := &MonitorSnapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		exam, err := s.store.GetExam(gctx, examID)
		if err != nil {
			return err
		}
		snap.Exam = exam
		return nil
	})
	g.Go(func() error {
		questions, err := s.store.GetQuestions(gctx, examID)
		if err != nil {
			return err
		}
		snap.Questions = len(questions)
		return nil
	})
	g.Go(func() error {
		results, total, err := s.results.ListByExam(gctx, examID, 1, 1000)
		if err != nil {
			return fmt.Errorf("list results: %w", err)
		}
		snap.Results = results
		snap.Submitted = total
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if snap.Results == nil {
		snap.Results = []model.ResultRecord{}
	}
	return snap, nil
}
