// Package session runs one timed, proctored exam attempt.
//
// A Controller owns all session state and mutates it on a single event-loop
// goroutine. Public methods hand work to the loop and wait for it; background
// completions (device permission, result persistence) are posted back to the
// loop, so no lock guards the session itself.
package session

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/countdown"
	"github.com/stemsi/exstem-proctor/internal/integrity"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/scoring"
)

// Policy holds the tunables of a session.
type Policy struct {
	MaxViolations int
	// RequireTerminateAck keeps the final violation in a non-dismissible prompt
	// until Terminate is called, instead of submitting straight away.
	RequireTerminateAck bool
	TickInterval        time.Duration
	// SaveTimeout bounds one result persistence attempt.
	SaveTimeout time.Duration
}

// Runtime bundles the collaborators a controller drives.
type Runtime struct {
	Monitor  integrity.Monitor
	Capture  Capture
	Clock    countdown.Clock
	Observer Observer
	Policy   Policy
}

// Params configures a new Controller.
type Params struct {
	Exam      *model.Exam
	Questions []model.Question
	User      *model.User
	Store     DataStore
	Runtime
	Log zerolog.Logger
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	ExamID               uuid.UUID             `json:"exam_id"`
	Phase                Phase                 `json:"phase"`
	CurrentQuestionIndex int                   `json:"current_question_index"`
	QuestionCount        int                   `json:"question_count"`
	Answers              map[string]int        `json:"answers"`
	ViolationCount       int                   `json:"violation_count"`
	MaxViolations        int                   `json:"max_violations"`
	LastViolation        *model.ViolationEvent `json:"last_violation,omitempty"`
	FinalViolation       bool                  `json:"final_violation"`
	RemainingSeconds     int                   `json:"remaining_seconds"`
	Remaining            string                `json:"remaining"`
	StartedAt            *time.Time            `json:"started_at,omitempty"`
	Trigger              model.SubmitTrigger   `json:"trigger,omitempty"`
	SubmitError          string                `json:"submit_error,omitempty"`
	Submitting           bool                  `json:"submitting"`
}

// Controller is the exam session state machine.
type Controller struct {
	exam      *model.Exam
	questions []model.Question
	index     map[string]int
	user      *model.User
	store     DataStore
	monitor   integrity.Monitor
	capture   Capture
	clock     countdown.Clock
	obs       Observer
	policy    Policy
	log       zerolog.Logger

	events    chan func()
	quit      chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc

	// Owned by the event loop.
	phase         Phase
	startedAt     time.Time
	current       int
	answers       map[string]int
	violations    int
	lastViolation *model.ViolationEvent
	finalPrompt   bool
	timer         *countdown.Countdown
	ticker        countdown.Ticker
	acquiring     bool
	inFlight      bool
	trigger       model.SubmitTrigger
	record        *model.ResultRecord
	submitErr     error
	resultID      uuid.UUID
	tornDown      bool
}

// New creates a controller in PhaseNotStarted and starts its event loop.
func New(p Params) *Controller {
	policy := p.Policy
	if p.Exam.MaxViolations != nil {
		policy.MaxViolations = *p.Exam.MaxViolations
	}
	policy.MaxViolations = max(policy.MaxViolations, 1)
	if policy.TickInterval <= 0 {
		policy.TickInterval = time.Second
	}
	if policy.SaveTimeout <= 0 {
		policy.SaveTimeout = 10 * time.Second
	}

	clock := p.Clock
	if clock == nil {
		clock = countdown.SystemClock{}
	}
	obs := p.Observer
	if obs == nil {
		obs = NopObserver{}
	}

	index := make(map[string]int, len(p.Questions))
	for i, q := range p.Questions {
		index[q.ID.String()] = i
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		exam:      p.Exam,
		questions: p.Questions,
		index:     index,
		user:      p.User,
		store:     p.Store,
		monitor:   p.Monitor,
		capture:   p.Capture,
		clock:     clock,
		obs:       obs,
		policy:    policy,
		log: p.Log.With().
			Str("component", "session").
			Str("exam_id", p.Exam.ID.String()).
			Int("user_id", p.User.ID).
			Logger(),
		events:  make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		phase:   PhaseNotStarted,
		answers: make(map[string]int, len(p.Questions)),
	}
	c.timer = countdown.New(p.Exam.DurationSeconds, func() {
		c.submit(model.SubmitTimeout)
	})

	go c.run()
	return c
}

// Exam returns the exam being sat. It never changes.
func (c *Controller) Exam() *model.Exam { return c.exam }

// Questions returns the ordered questions. They never change.
func (c *Controller) Questions() []model.Question { return c.questions }

// Done is closed once the session reaches PhaseTerminated.
func (c *Controller) Done() <-chan struct{} { return c.done }

// ─── Event loop ─────────────────────────────────────────────────────────────

func (c *Controller) run() {
	for {
		var tickC <-chan time.Time
		if c.ticker != nil {
			tickC = c.ticker.C()
		}

		select {
		case fn := <-c.events:
			fn()
		case <-tickC:
			c.onTick()
		case <-c.quit:
			return
		}
	}
}

// dispatch runs fn on the loop and waits for it to finish.
func (c *Controller) dispatch(fn func()) error {
	finished := make(chan struct{})
	select {
	case c.events <- func() {
		defer close(finished)
		fn()
	}:
	case <-c.quit:
		return ErrSessionClosed
	}
	<-finished
	return nil
}

// call runs fn on the loop and returns its error.
func (c *Controller) call(fn func() error) error {
	var err error
	if derr := c.dispatch(func() { err = fn() }); derr != nil {
		return derr
	}
	return err
}

// post queues fn on the loop without waiting. Dropped after Close.
func (c *Controller) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.quit:
	}
}

// ─── Public operations ──────────────────────────────────────────────────────

// RequestStart begins the exam, acquiring capture permission first if needed.
// From PhaseAwaitingPermissions it retries a denied permission request.
func (c *Controller) RequestStart() error {
	return c.call(c.requestStart)
}

// SelectAnswer records option for questionID. It has no effect outside PhaseRunning.
func (c *Controller) SelectAnswer(questionID string, option int) error {
	return c.call(func() error { return c.selectAnswer(questionID, option) })
}

// Navigate moves to index clamped to the question range and returns the new index.
func (c *Controller) Navigate(index int) int {
	current := 0
	_ = c.dispatch(func() {
		c.current = max(min(index, len(c.questions)-1), 0)
		current = c.current
	})
	return current
}

// Acknowledge dismisses a violation prompt once the environment is restored.
func (c *Controller) Acknowledge(restored bool) error {
	return c.call(func() error { return c.acknowledge(restored) })
}

// Terminate confirms the final, non-dismissible violation prompt.
func (c *Controller) Terminate() error {
	return c.call(func() error {
		if c.phase != PhaseViolationPrompt || !c.finalPrompt {
			return ErrNoPrompt
		}
		c.submit(model.SubmitForced)
		return nil
	})
}

// Submit requests manual submission. Only the first call while the exam is
// active is accepted; every other call is ignored and returns false.
func (c *Controller) Submit() bool {
	accepted := false
	_ = c.dispatch(func() { accepted = c.submit(model.SubmitManual) })
	return accepted
}

// Abandon submits an active session whose test-taker went away, so a dropped
// connection cannot be used to restart the clock. Returns false when nothing
// was submitted.
func (c *Controller) Abandon() bool {
	accepted := false
	_ = c.dispatch(func() { accepted = c.submit(model.SubmitDisconnect) })
	return accepted
}

// Retry re-sends the result after a failed persistence attempt.
func (c *Controller) Retry() error {
	return c.call(func() error {
		if c.phase != PhaseSubmitting || c.inFlight || c.submitErr == nil {
			return ErrNothingToRetry
		}
		c.log.Info().Msg("Retrying result persistence")
		c.persist()
		return nil
	})
}

// PendingResult returns the computed result while it is still awaiting
// persistence.
func (c *Controller) PendingResult() (model.ResultRecord, bool) {
	var (
		rec model.ResultRecord
		ok  bool
	)
	_ = c.dispatch(func() {
		if c.phase == PhaseSubmitting && c.record != nil {
			rec, ok = *c.record, true
		}
	})
	return rec, ok
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := c.dispatch(func() { snap = c.snapshot() })
	return snap, err
}

// Close tears the session down and stops the event loop. Safe to call more than once.
func (c *Controller) Close() error {
	err := c.dispatch(c.teardown)
	c.closeOnce.Do(func() { close(c.quit) })
	return err
}

// ─── Loop-side handlers ─────────────────────────────────────────────────────

func (c *Controller) requestStart() error {
	switch c.phase {
	case PhaseNotStarted:
		if c.capture.Granted() {
			c.begin()
			return nil
		}
		c.setPhase(PhaseAwaitingPermissions)
		c.acquire()
		return nil
	case PhaseAwaitingPermissions:
		if c.acquiring {
			return ErrAcquireInProgress
		}
		c.acquire()
		return nil
	default:
		return ErrInvalidStartPhase
	}
}

func (c *Controller) acquire() {
	c.acquiring = true
	ctx := c.ctx
	go func() {
		perm, err := c.capture.Acquire(ctx)
		c.post(func() { c.onAcquired(perm, err) })
	}()
}

func (c *Controller) onAcquired(perm capture.Permission, err error) {
	c.acquiring = false
	if c.phase != PhaseAwaitingPermissions {
		return
	}

	if err == nil && perm == capture.PermissionGranted {
		c.begin()
		return
	}

	if err == nil {
		err = capture.ErrPermissionDenied
	}
	c.log.Warn().Err(err).Msg("Capture permission not granted")
	c.obs.PermissionDenied(err)
}

func (c *Controller) begin() {
	c.startedAt = c.clock.Now()
	c.setPhase(PhaseRunning)
	c.obs.RequestFullscreen()

	if err := c.timer.Start(); err != nil {
		c.log.Error().Err(err).Msg("Countdown start failed")
	}
	// A zero-length exam has already been submitted by the countdown.
	if c.phase != PhaseRunning {
		return
	}

	c.ticker = c.clock.NewTicker(c.policy.TickInterval)
	c.monitor.Start(c.onMonitorViolation)

	c.log.Info().
		Int("duration_seconds", c.exam.DurationSeconds).
		Int("max_violations", c.policy.MaxViolations).
		Msg("Exam started")
}

// onTick advances the countdown while Running. A final prompt waiting for
// Terminate keeps the clock going so the exam still times out.
func (c *Controller) onTick() {
	if c.phase != PhaseRunning && !(c.phase == PhaseViolationPrompt && c.finalPrompt) {
		return
	}
	remaining := c.timer.Tick()
	if c.phase.Active() {
		c.obs.Tick(remaining)
	}
}

// onMonitorViolation is called by the integrity monitor from its own goroutine.
func (c *Controller) onMonitorViolation(reason model.ViolationReason) {
	_ = c.dispatch(func() { c.violation(reason) })
}

func (c *Controller) violation(reason model.ViolationReason) {
	if c.phase != PhaseRunning {
		c.log.Debug().Str("reason", string(reason)).Str("phase", string(c.phase)).Msg("Violation ignored")
		return
	}

	c.violations++
	ev := model.ViolationEvent{Reason: reason, At: c.clock.Now(), Count: c.violations}
	c.lastViolation = &ev
	final := c.violations >= c.policy.MaxViolations

	c.log.Warn().
		Str("reason", string(reason)).
		Int("count", c.violations).
		Bool("final", final).
		Msg("Integrity violation")

	if final && !c.policy.RequireTerminateAck {
		c.obs.Violation(ev, true)
		c.submit(model.SubmitForced)
		return
	}

	c.finalPrompt = final
	c.obs.Violation(ev, final)
	c.setPhase(PhaseViolationPrompt)
}

func (c *Controller) acknowledge(restored bool) error {
	if c.phase != PhaseViolationPrompt {
		return ErrNoPrompt
	}
	if c.finalPrompt || c.violations >= c.policy.MaxViolations {
		return ErrPromptFinal
	}
	if !restored {
		return ErrNotRestored
	}
	c.setPhase(PhaseRunning)
	return nil
}

func (c *Controller) selectAnswer(questionID string, option int) error {
	if c.phase != PhaseRunning {
		return ErrNotRunning
	}
	id, err := uuid.Parse(questionID)
	if err != nil {
		return ErrUnknownQuestion
	}
	questionID = id.String()
	pos, ok := c.index[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if option < 0 || option >= len(c.questions[pos].Options) {
		return ErrInvalidOption
	}
	c.answers[questionID] = option
	return nil
}

// submit moves an active session into PhaseSubmitting. The in-flight flag is
// checked and set within one loop turn, so racing triggers persist once.
func (c *Controller) submit(trigger model.SubmitTrigger) bool {
	if !c.phase.Active() || c.inFlight {
		return false
	}

	c.trigger = trigger
	c.stopCountdown()
	c.record = c.buildRecord(trigger)

	c.log.Info().
		Str("trigger", string(trigger)).
		Int("score", c.record.Score).
		Int("percentage", c.record.Percentage).
		Msg("Submitting exam")

	c.setPhase(PhaseSubmitting)
	c.persist()
	return true
}

func (c *Controller) persist() {
	c.inFlight = true
	c.submitErr = nil
	rec := *c.record
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.policy.SaveTimeout)
		defer cancel()
		id, err := c.store.SaveResult(ctx, &rec)
		c.post(func() { c.onSaved(id, err) })
	}()
}

func (c *Controller) onSaved(id uuid.UUID, err error) {
	c.inFlight = false
	if c.phase != PhaseSubmitting {
		return
	}

	if err != nil {
		c.submitErr = err
		c.log.Error().Err(err).Msg("Result persistence failed")
		c.obs.SubmitFailed(err)
		c.obs.PhaseChanged(c.snapshot())
		return
	}

	c.resultID = id
	c.record.ID = id
	c.setPhase(PhaseTerminated)
	c.teardown()
	close(c.done)

	c.log.Info().Str("result_id", id.String()).Msg("Exam terminated")
	c.obs.Submitted(id, *c.record)
}

func (c *Controller) buildRecord(trigger model.SubmitTrigger) *model.ResultRecord {
	now := c.clock.Now()
	answers := maps.Clone(c.answers)

	return &model.ResultRecord{
		ExamID:         c.exam.ID,
		UserID:         c.user.ID,
		UserEmail:      c.user.Email,
		UserName:       c.user.Name,
		Answers:        answers,
		ViolationCount: c.violations,
		Trigger:        trigger,
		StartedAt:      c.startedAt,
		SubmittedAt:    now,
		ScoreResult: scoring.Score(c.questions, answers, scoring.Options{
			NominalTotal: c.exam.TotalMarks,
			TimeTaken:    now.Sub(c.startedAt),
		}),
	}
}

func (c *Controller) stopCountdown() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.timer.Cancel()
}

// teardown releases every collaborator: countdown, then monitor, then capture.
func (c *Controller) teardown() {
	if c.tornDown {
		return
	}
	c.tornDown = true

	c.stopCountdown()
	c.monitor.Stop()
	c.capture.Release()
	c.cancel()

	c.log.Debug().Str("phase", string(c.phase)).Msg("Session torn down")
}

func (c *Controller) setPhase(p Phase) {
	if c.phase == p {
		return
	}
	c.log.Debug().Str("from", string(c.phase)).Str("to", string(p)).Msg("Phase change")
	c.phase = p
	c.obs.PhaseChanged(c.snapshot())
}

func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{
		ExamID:               c.exam.ID,
		Phase:                c.phase,
		CurrentQuestionIndex: c.current,
		QuestionCount:        len(c.questions),
		Answers:              maps.Clone(c.answers),
		ViolationCount:       c.violations,
		MaxViolations:        c.policy.MaxViolations,
		FinalViolation:       c.finalPrompt,
		RemainingSeconds:     c.timer.Remaining(),
		Remaining:            countdown.Format(c.timer.Remaining()),
		Trigger:              c.trigger,
		Submitting:           c.inFlight,
	}
	if c.lastViolation != nil {
		ev := *c.lastViolation
		snap.LastViolation = &ev
	}
	if !c.startedAt.IsZero() {
		t := c.startedAt
		snap.StartedAt = &t
	}
	if c.submitErr != nil {
		snap.SubmitError = c.submitErr.Error()
	}
	return snap
}
