package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Launcher resolves who is sitting which exam and builds the controller.
type Launcher struct {
	store DataStore
	auth  AuthService
	base  zerolog.Logger
	log   zerolog.Logger
}

// NewLauncher creates a new Launcher.
func NewLauncher(store DataStore, auth AuthService, log zerolog.Logger) *Launcher {
	return &Launcher{
		store: store,
		auth:  auth,
		base:  log,
		log:   log.With().Str("component", "session_launcher").Logger(),
	}
}

// Open checks eligibility, loads the exam paper and returns a controller in
// PhaseNotStarted. Questions are never loaded for a user who already attempted.
func (l *Launcher) Open(ctx context.Context, examID uuid.UUID, rt Runtime) (*Controller, error) {
	user, err := l.auth.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}

	attempted, err := l.store.HasAttempted(ctx, user.ID, examID)
	if err != nil {
		return nil, fmt.Errorf("check attempt: %w", err)
	}
	if attempted {
		l.log.Info().Int("user_id", user.ID).Str("exam_id", examID.String()).Msg("Rejected repeat attempt")
		return nil, ErrAlreadyAttempted
	}

	var (
		exam      *model.Exam
		questions []model.Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		exam, err = l.store.GetExam(gctx, examID)
		return err
	})
	g.Go(func() error {
		var err error
		questions, err = l.store.GetQuestions(gctx, examID)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrExamUnavailable) {
			return nil, ErrExamUnavailable
		}
		return nil, fmt.Errorf("load exam: %w", err)
	}

	if exam == nil || !exam.Published() {
		return nil, ErrExamUnavailable
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	return New(Params{
		Exam:      exam,
		Questions: questions,
		User:      user,
		Store:     l.store,
		Runtime:   rt,
		Log:       l.base,
	}), nil
}
