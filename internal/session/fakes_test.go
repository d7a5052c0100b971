package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/countdown"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// calls records teardown order across fakes.
type calls struct {
	mu  sync.Mutex
	seq []string
}

func (c *calls) add(name string) {
	c.mu.Lock()
	c.seq = append(c.seq, name)
	c.mu.Unlock()
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seq...)
}

// ─── Clock ──────────────────────────────────────────────────────────────────

type fakeTicker struct {
	ch  chan time.Time
	log *calls
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.log.add("ticker") }

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	log     *calls
}

func newFakeClock(log *calls) *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), log: log}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) countdown.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time), log: c.log}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) tickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// tick delivers one synthetic tick and advances the clock by a second.
func (c *fakeClock) tick(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	require.NotEmpty(t, c.tickers, "no ticker created")
	tk := c.tickers[len(c.tickers)-1]
	c.mu.Unlock()

	c.advance(time.Second)
	select {
	case tk.ch <- c.Now():
	case <-time.After(time.Second):
		t.Fatal("tick not consumed")
	}
}

// ─── Monitor ────────────────────────────────────────────────────────────────

type fakeMonitor struct {
	mu          sync.Mutex
	onViolation func(model.ViolationReason)
	starts      int
	log         *calls
}

func (m *fakeMonitor) Start(onViolation func(model.ViolationReason)) {
	m.mu.Lock()
	m.onViolation = onViolation
	m.starts++
	m.mu.Unlock()
}

func (m *fakeMonitor) Stop() {
	m.mu.Lock()
	m.onViolation = nil
	m.mu.Unlock()
	m.log.add("monitor")
}

func (m *fakeMonitor) fire(reason model.ViolationReason) {
	m.mu.Lock()
	cb := m.onViolation
	m.mu.Unlock()
	if cb != nil {
		cb(reason)
	}
}

// callback returns the handler installed by the last Start.
func (m *fakeMonitor) callback() func(model.ViolationReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onViolation
}

func (m *fakeMonitor) started() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// ─── Capture ────────────────────────────────────────────────────────────────

type acquireResult struct {
	perm capture.Permission
	err  error
}

type fakeCapture struct {
	mu       sync.Mutex
	granted  bool
	results  []acquireResult
	acquires int
	log      *calls
}

func (f *fakeCapture) Acquire(ctx context.Context) (capture.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	res := acquireResult{perm: capture.PermissionGranted}
	if len(f.results) > 0 {
		res, f.results = f.results[0], f.results[1:]
	}
	f.granted = res.err == nil && res.perm == capture.PermissionGranted
	return res.perm, res.err
}

func (f *fakeCapture) Granted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.granted
}

func (f *fakeCapture) Release() {
	f.mu.Lock()
	f.granted = false
	f.mu.Unlock()
	f.log.add("capture")
}

func (f *fakeCapture) acquireCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires
}

// ─── Store / auth ───────────────────────────────────────────────────────────

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	args := m.Called(ctx, examID)
	exam, _ := args.Get(0).(*model.Exam)
	return exam, args.Error(1)
}

func (m *mockStore) GetQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	args := m.Called(ctx, examID)
	qs, _ := args.Get(0).([]model.Question)
	return qs, args.Error(1)
}

func (m *mockStore) HasAttempted(ctx context.Context, userID int, examID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, examID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) SaveResult(ctx context.Context, rec *model.ResultRecord) (uuid.UUID, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) CurrentUser(ctx context.Context) (*model.User, error) {
	args := m.Called(ctx)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

// ─── Observer ───────────────────────────────────────────────────────────────

type recordingObserver struct {
	mu          sync.Mutex
	phases      []Phase
	ticks       []int
	violations  []model.ViolationEvent
	finals      []bool
	denied      []error
	fullscreens int
	failures    []error
	submitted   []uuid.UUID
	// order interleaves phase changes and violations as delivered.
	order []string
}

func (o *recordingObserver) PhaseChanged(s Snapshot) {
	o.mu.Lock()
	o.phases = append(o.phases, s.Phase)
	o.order = append(o.order, "phase:"+string(s.Phase))
	o.mu.Unlock()
}

func (o *recordingObserver) Tick(remaining int) {
	o.mu.Lock()
	o.ticks = append(o.ticks, remaining)
	o.mu.Unlock()
}

func (o *recordingObserver) Violation(ev model.ViolationEvent, final bool) {
	o.mu.Lock()
	o.violations = append(o.violations, ev)
	o.finals = append(o.finals, final)
	o.order = append(o.order, "violation:"+string(ev.Reason))
	o.mu.Unlock()
}

func (o *recordingObserver) PermissionDenied(err error) {
	o.mu.Lock()
	o.denied = append(o.denied, err)
	o.mu.Unlock()
}

func (o *recordingObserver) RequestFullscreen() {
	o.mu.Lock()
	o.fullscreens++
	o.mu.Unlock()
}

func (o *recordingObserver) SubmitFailed(err error) {
	o.mu.Lock()
	o.failures = append(o.failures, err)
	o.mu.Unlock()
}

func (o *recordingObserver) Submitted(id uuid.UUID, _ model.ResultRecord) {
	o.mu.Lock()
	o.submitted = append(o.submitted, id)
	o.mu.Unlock()
}

type observed struct {
	phases      []Phase
	ticks       []int
	violations  []model.ViolationEvent
	finals      []bool
	denied      []error
	fullscreens int
	failures    []error
	submitted   []uuid.UUID
	order       []string
}

func (o *recordingObserver) snapshot() observed {
	o.mu.Lock()
	defer o.mu.Unlock()
	return observed{
		phases:      append([]Phase(nil), o.phases...),
		ticks:       append([]int(nil), o.ticks...),
		violations:  append([]model.ViolationEvent(nil), o.violations...),
		finals:      append([]bool(nil), o.finals...),
		denied:      append([]error(nil), o.denied...),
		fullscreens: o.fullscreens,
		failures:    append([]error(nil), o.failures...),
		submitted:   append([]uuid.UUID(nil), o.submitted...),
		order:       append([]string(nil), o.order...),
	}
}

// ─── Fixture ────────────────────────────────────────────────────────────────

type fixture struct {
	exam      *model.Exam
	questions []model.Question
	user      *model.User
	store     *mockStore
	clock     *fakeClock
	monitor   *fakeMonitor
	capture   *fakeCapture
	obs       *recordingObserver
	calls     *calls
	policy    Policy
}

func newFixture(durationSeconds int) *fixture {
	log := &calls{}
	examID := uuid.New()
	questions := []model.Question{
		{ID: uuid.New(), ExamID: examID, Text: "2 + 2", Options: []string{"3", "4", "5"}, CorrectIndex: 1, Marks: 2, OrderNum: 1},
		{ID: uuid.New(), ExamID: examID, Text: "Capital of France", Options: []string{"Paris", "Rome"}, CorrectIndex: 0, Marks: 3, OrderNum: 2},
		{ID: uuid.New(), ExamID: examID, Text: "H2O is", Options: []string{"salt", "water", "air", "fire"}, CorrectIndex: 1, Marks: 5, OrderNum: 3},
	}
	return &fixture{
		exam: &model.Exam{
			ID:              examID,
			Title:           "General Knowledge",
			DurationSeconds: durationSeconds,
			TotalMarks:      10,
			Status:          model.ExamStatusPublished,
		},
		questions: questions,
		user:      &model.User{ID: 7, Email: "siti@example.com", Name: "Siti", Role: model.RoleStudent},
		store:     &mockStore{},
		clock:     newFakeClock(log),
		monitor:   &fakeMonitor{log: log},
		capture:   &fakeCapture{log: log},
		obs:       &recordingObserver{},
		calls:     log,
		policy:    Policy{MaxViolations: 3, TickInterval: time.Second},
	}
}

func (f *fixture) runtime() Runtime {
	return Runtime{
		Monitor:  f.monitor,
		Capture:  f.capture,
		Clock:    f.clock,
		Observer: f.obs,
		Policy:   f.policy,
	}
}

func (f *fixture) controller(t *testing.T) *Controller {
	t.Helper()
	c := New(Params{
		Exam:      f.exam,
		Questions: f.questions,
		User:      f.user,
		Store:     f.store,
		Runtime:   f.runtime(),
		Log:       zerolog.Nop(),
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// running returns a controller already in PhaseRunning.
func (f *fixture) running(t *testing.T) *Controller {
	t.Helper()
	f.capture.granted = true
	c := f.controller(t)
	require.NoError(t, c.RequestStart())
	requirePhase(t, c, PhaseRunning)
	return c
}

func snap(t *testing.T, c *Controller) Snapshot {
	t.Helper()
	s, err := c.Snapshot()
	require.NoError(t, err)
	return s
}

func requirePhase(t *testing.T, c *Controller, want Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := c.Snapshot()
		return err == nil && s.Phase == want
	}, time.Second, 5*time.Millisecond, "phase never became %s", want)
}
