package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
	// ResultMaxAttempts is how many failed saves move a result to the dead list.
	ResultMaxAttempts = 5
)

// queuedResult is the queue payload: a result plus its failed save count.
type queuedResult struct {
	model.ResultRecord
	Attempts int `json:"attempts,omitempty"`
}

// ResultSaver stores a result idempotently per exam and user.
type ResultSaver interface {
	SaveResult(ctx context.Context, rec *model.ResultRecord) (uuid.UUID, error)
}

// ResultWorker persists results that were queued because their session closed
// before the store accepted them.
type ResultWorker struct {
	rdb   *redis.Client
	saver ResultSaver
	log   zerolog.Logger
}

func NewResultWorker(rdb *redis.Client, saver ResultSaver, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		rdb:   rdb,
		saver: saver,
		log:   log.With().Str("component", "result_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*queuedResult, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			rec, err := decodeResult(item[1])
			if err != nil {
				w.log.Error().Err(err).Msg("Invalid result payload, dropped")
				continue
			}

			batch = append(batch, rec)
		}
	}
}

func decodeResult(raw string) (*queuedResult, error) {
	var rec queuedResult
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	if rec.ExamID == uuid.Nil || rec.UserID == 0 {
		return nil, errors.New("result without exam or user")
	}
	return &rec, nil
}

// ----------------------------------------------------------------
// Flush with requeue on failure
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*queuedResult) {
	failed := w.flush(ctx, batch)
	if len(failed) == 0 {
		return
	}

	retry, dead := splitFailed(failed)
	pipe := w.rdb.Pipeline()
	for _, rec := range retry {
		raw, _ := json.Marshal(rec)
		pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
	}
	for _, rec := range dead {
		raw, _ := json.Marshal(rec)
		pipe.RPush(ctx, config.WorkerKey.DeadResultsQueue, raw)
		w.log.Error().
			Str("exam_id", rec.ExamID.String()).
			Int("user_id", rec.UserID).
			Int("attempts", rec.Attempts).
			Msg("Queued result abandoned to dead list")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(failed)).Msg("Requeue failed, results lost")
	}
}

// splitFailed counts one more attempt on each record and separates the ones
// that still get another try from those that reached ResultMaxAttempts.
func splitFailed(failed []*queuedResult) (retry, dead []*queuedResult) {
	for _, rec := range failed {
		rec.Attempts++
		if rec.Attempts >= ResultMaxAttempts {
			dead = append(dead, rec)
			continue
		}
		retry = append(retry, rec)
	}
	return retry, dead
}

// flush saves each record and returns the ones that failed.
func (w *ResultWorker) flush(ctx context.Context, batch []*queuedResult) []*queuedResult {
	var failed []*queuedResult
	for _, rec := range batch {
		id, err := w.saver.SaveResult(ctx, &rec.ResultRecord)
		if err != nil {
			w.log.Warn().
				Err(err).
				Str("exam_id", rec.ExamID.String()).
				Int("user_id", rec.UserID).
				Int("attempts", rec.Attempts).
				Msg("Queued result not saved, requeueing")
			failed = append(failed, rec)
			continue
		}
		w.log.Info().
			Str("result_id", id.String()).
			Str("exam_id", rec.ExamID.String()).
			Int("user_id", rec.UserID).
			Msg("Queued result saved")
	}
	return failed
}
