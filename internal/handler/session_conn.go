package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/countdown"
	"github.com/stemsi/exstem-proctor/internal/integrity"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const (
	outboxSize = 64
	// abandonWait bounds how long a dropped connection waits for its result to be saved.
	abandonWait    = 10 * time.Second
	publishTimeout = 2 * time.Second
)

// MonitorPublisher receives live session events for invigilators.
type MonitorPublisher interface {
	Publish(ctx context.Context, ev service.MonitorEvent)
}

// ResultQueue takes over results the store did not accept before the session closed.
type ResultQueue interface {
	Enqueue(ctx context.Context, rec *model.ResultRecord) error
}

// sessionConn binds one controller to one WebSocket. It builds the controller's
// runtime (remote capture device, signal monitor) and implements
// session.Observer by queueing events for a single writer goroutine.
type sessionConn struct {
	user      *model.User
	examID    uuid.UUID
	policy    session.Policy
	device    *capture.RemoteDevice
	capture   *capture.Manager
	integrity *integrity.SignalMonitor
	monitor   MonitorPublisher
	queue     ResultQueue
	ctrl      *session.Controller
	log       zerolog.Logger

	out       chan ws.Message
	closed    chan struct{}
	closeOnce sync.Once
}

func newSessionConn(cfg *config.Config, user *model.User, examID uuid.UUID, monitor MonitorPublisher, log zerolog.Logger) *sessionConn {
	sc := &sessionConn{
		user:   user,
		examID: examID,
		policy: session.Policy{
			MaxViolations:       cfg.MaxViolations,
			RequireTerminateAck: cfg.RequireTerminateAck,
			TickInterval:        cfg.TickInterval,
			SaveTimeout:         cfg.SaveTimeout,
		},
		monitor: monitor,
		log: log.With().
			Str("exam_id", examID.String()).
			Int("user_id", user.ID).
			Logger(),
		out:    make(chan ws.Message, outboxSize),
		closed: make(chan struct{}),
	}

	sc.device = capture.NewRemoteDevice(
		func() { sc.send(ws.EventCaptureRequest, nil) },
		func() { sc.send(ws.EventCaptureRelease, nil) },
	)
	sc.capture = capture.NewManager(sc.device, cfg.CaptureFrameInterval, func(level int) {
		sc.trySend(ws.EventLevel, ws.LevelData{Level: level})
	}, log)
	sc.integrity = integrity.NewSignalMonitor(func(w integrity.Warning) {
		sc.send(ws.EventWarning, w)
	}, log)
	return sc
}

func (sc *sessionConn) runtime() session.Runtime {
	return session.Runtime{
		Monitor:  sc.integrity,
		Capture:  sc.capture,
		Observer: sc,
		Policy:   sc.policy,
	}
}

func (sc *sessionConn) attach(ctrl *session.Controller) {
	sc.ctrl = ctrl
}

// ─── Outbox ─────────────────────────────────────────────────────────────────

func (sc *sessionConn) send(event ws.Event, data any) {
	select {
	case sc.out <- ws.Message{Event: event, Data: data}:
	case <-sc.closed:
	}
}

// trySend drops the event when the outbox is full.
func (sc *sessionConn) trySend(event ws.Event, data any) {
	select {
	case sc.out <- ws.Message{Event: event, Data: data}:
	default:
	}
}

func (sc *sessionConn) sendError(err error, fields map[string]string) {
	_, code := sessionErrStatus(err)
	sc.sendCode(code, fields)
}

func (sc *sessionConn) sendCode(code response.ErrCode, fields map[string]string) {
	sc.send(ws.EventError, ws.ErrorData{
		Code:    string(code),
		Message: response.GetMessage(code),
		Fields:  fields,
	})
}

func (sc *sessionConn) stop() {
	sc.closeOnce.Do(func() { close(sc.closed) })
}

func (sc *sessionConn) publish(ev service.MonitorEvent) {
	if sc.monitor == nil {
		return
	}
	ev.ExamID = sc.examID
	ev.UserID = sc.user.ID
	ev.Name = sc.user.Name
	ev.At = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	sc.monitor.Publish(ctx, ev)
}

// ─── session.Observer ───────────────────────────────────────────────────────

func (sc *sessionConn) PhaseChanged(snap session.Snapshot) {
	sc.send(ws.EventState, snap)
	sc.publish(service.MonitorEvent{
		Type:           service.MonitorPhase,
		Phase:          string(snap.Phase),
		ViolationCount: snap.ViolationCount,
	})
}

func (sc *sessionConn) Tick(remaining int) {
	sc.send(ws.EventTick, ws.TickData{
		RemainingSeconds: remaining,
		Remaining:        countdown.Format(remaining),
	})
}

func (sc *sessionConn) Violation(ev model.ViolationEvent, final bool) {
	sc.send(ws.EventViolation, ws.ViolationData{
		Reason: string(ev.Reason),
		At:     ev.At,
		Count:  ev.Count,
		Final:  final,
	})
	sc.publish(service.MonitorEvent{
		Type:           service.MonitorViolation,
		ViolationCount: ev.Count,
		Reason:         ev.Reason,
	})
}

func (sc *sessionConn) PermissionDenied(err error) {
	code := response.ErrPermissionDenied
	if !errors.Is(err, capture.ErrPermissionDenied) {
		code = response.ErrSessionUnavailable
	}
	sc.send(ws.EventPermission, ws.ErrorData{Code: string(code), Message: response.GetMessage(code)})
}

func (sc *sessionConn) RequestFullscreen() {
	sc.send(ws.EventFullscreen, nil)
}

func (sc *sessionConn) SubmitFailed(error) {
	sc.send(ws.EventSubmitFailed, ws.ErrorData{
		Code:    string(response.ErrSubmitFailed),
		Message: response.GetMessage(response.ErrSubmitFailed),
	})
}

func (sc *sessionConn) Submitted(resultID uuid.UUID, rec model.ResultRecord) {
	sc.send(ws.EventResult, ws.ResultData{ResultID: resultID.String(), Result: rec})
	score := rec.ScoreResult
	sc.publish(service.MonitorEvent{
		Type:           service.MonitorSubmitted,
		ViolationCount: rec.ViolationCount,
		Score:          &score,
	})
}

// ─── Connection loops ───────────────────────────────────────────────────────

// serve runs the connection until the client goes away. keepalive is called
// on every ping and may be nil.
func (sc *sessionConn) serve(conn *websocket.Conn, keepalive func()) {
	ws.Prepare(conn)

	writerDone := make(chan struct{})
	go sc.writeLoop(conn, keepalive, writerDone)

	sc.log.Info().Msg("Student connected")
	sc.publish(service.MonitorEvent{Type: service.MonitorJoined})
	sc.greet()

	sc.readLoop(conn)
	sc.finish()
	<-writerDone
}

// greet sends the question paper (without answer keys) and the initial state.
func (sc *sessionConn) greet() {
	exam := sc.ctrl.Exam()
	questions := sc.ctrl.Questions()
	paper := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		paper[i] = q.ForStudent()
	}
	sc.send(ws.EventPaper, ws.PaperData{
		ExamID:          exam.ID.String(),
		Title:           exam.Title,
		Description:     exam.Description,
		DurationSeconds: exam.DurationSeconds,
		Questions:       paper,
	})

	if snap, err := sc.ctrl.Snapshot(); err == nil {
		sc.send(ws.EventState, snap)
	}
}

func (sc *sessionConn) readLoop(conn *websocket.Conn) {
	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sc.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				sc.log.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if fields := validator.Decode(data, &env); fields != nil {
			sc.sendCode(response.ErrInvalidPayload, fields)
			continue
		}
		sc.handle(env)
	}
}

func (sc *sessionConn) writeLoop(conn *websocket.Conn, keepalive func(), done chan struct{}) {
	defer close(done)
	defer sc.stop()

	ping := time.NewTicker(ws.PingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-sc.closed:
			return
		case msg := <-sc.out:
			if err := ws.WriteTyped(conn, msg); err != nil {
				sc.log.Debug().Err(err).Msg("Write failed")
				return
			}
			if msg.Event == ws.EventResult {
				_ = ws.WriteClose(conn, websocket.CloseNormalClosure, "exam submitted")
				return
			}
		case <-ping.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
			if keepalive != nil {
				keepalive()
			}
		}
	}
}

// finish submits an abandoned exam, waits briefly for the result to be saved,
// then tears the controller down.
func (sc *sessionConn) finish() {
	pending := sc.ctrl.Abandon()
	if pending {
		sc.log.Warn().Msg("Connection lost mid-exam, submitting")
	} else if snap, err := sc.ctrl.Snapshot(); err == nil && snap.Phase == session.PhaseSubmitting {
		if snap.SubmitError != "" {
			_ = sc.ctrl.Retry()
		}
		pending = true
	}

	if pending {
		select {
		case <-sc.ctrl.Done():
		case <-time.After(abandonWait):
			sc.handOver()
		}
	}

	_ = sc.ctrl.Close()
	sc.stop()
	sc.publish(service.MonitorEvent{Type: service.MonitorLeft})
	sc.log.Info().Msg("Student disconnected")
}

// handOver queues the pending result for the result worker.
func (sc *sessionConn) handOver() {
	rec, ok := sc.ctrl.PendingResult()
	if !ok {
		return
	}
	if sc.queue == nil {
		sc.log.Error().Msg("Result not saved before the session closed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := sc.queue.Enqueue(ctx, &rec); err != nil {
		sc.log.Error().Err(err).Msg("Result not saved before the session closed")
	}
}

// ─── Actions ────────────────────────────────────────────────────────────────

func (sc *sessionConn) decode(data []byte, dst any) bool {
	if fields := validator.Decode(data, dst); fields != nil {
		sc.sendCode(response.ErrValidation, fields)
		return false
	}
	return true
}

func (sc *sessionConn) handle(env ws.RequestEnvelope) {
	var err error

	switch env.Action {
	case ws.ActionStart:
		err = sc.ctrl.RequestStart()

	case ws.ActionPermission:
		var req ws.PermissionRequest
		if sc.decode(env.Data, &req) {
			sc.device.Resolve(req.Granted)
		}

	case ws.ActionSignal:
		var req ws.SignalRequest
		if sc.decode(env.Data, &req) {
			sc.integrity.Observe(integrity.Signal{
				Kind: integrity.SignalKind(req.Kind),
				Key:  req.Key,
				At:   time.Now(),
			})
		}

	case ws.ActionAudio:
		var req ws.AudioRequest
		if sc.decode(env.Data, &req) {
			bins := make([]uint8, len(req.Bins))
			for i, b := range req.Bins {
				bins[i] = uint8(b)
			}
			sc.device.Push(bins)
		}

	case ws.ActionSelect:
		var req ws.SelectRequest
		if !sc.decode(env.Data, &req) {
			return
		}
		if err = sc.ctrl.SelectAnswer(req.QuestionID, *req.Option); err == nil {
			sc.send(ws.EventAnswered, ws.AnsweredData{QuestionID: req.QuestionID, Option: *req.Option})
		}

	case ws.ActionNavigate:
		var req ws.NavigateRequest
		if sc.decode(env.Data, &req) {
			sc.send(ws.EventNavigated, ws.NavigatedData{Index: sc.ctrl.Navigate(req.Index)})
		}

	case ws.ActionAcknowledge:
		var req ws.AcknowledgeRequest
		if sc.decode(env.Data, &req) {
			err = sc.ctrl.Acknowledge(req.FullscreenRestored)
		}

	case ws.ActionSubmit:
		// Repeated submits are ignored.
		sc.ctrl.Submit()

	case ws.ActionRetry:
		err = sc.ctrl.Retry()

	case ws.ActionTerminate:
		err = sc.ctrl.Terminate()

	case ws.ActionPing:
		sc.send(ws.EventPong, nil)

	default:
		sc.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		sc.sendCode(response.ErrUnknownAction, nil)
	}

	if err != nil {
		sc.sendError(err, nil)
	}
}

// sessionErrStatus maps session errors to an HTTP status and error code.
func sessionErrStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		return http.StatusUnauthorized, response.ErrTokenInvalid
	case errors.Is(err, session.ErrAlreadyAttempted):
		return http.StatusConflict, response.ErrAlreadyAttempted
	case errors.Is(err, session.ErrExamUnavailable):
		return http.StatusNotFound, response.ErrExamNotAvailable
	case errors.Is(err, session.ErrNoQuestions):
		return http.StatusUnprocessableEntity, response.ErrNoQuestions
	case errors.Is(err, session.ErrNotRunning):
		return http.StatusConflict, response.ErrNotRunning
	case errors.Is(err, session.ErrUnknownQuestion):
		return http.StatusBadRequest, response.ErrUnknownQuestion
	case errors.Is(err, session.ErrInvalidOption):
		return http.StatusBadRequest, response.ErrInvalidOption
	case errors.Is(err, session.ErrNoPrompt):
		return http.StatusConflict, response.ErrNoPrompt
	case errors.Is(err, session.ErrPromptFinal):
		return http.StatusConflict, response.ErrPromptFinal
	case errors.Is(err, session.ErrNotRestored):
		return http.StatusConflict, response.ErrNotRestored
	case errors.Is(err, session.ErrNothingToRetry):
		return http.StatusConflict, response.ErrNothingToRetry
	case errors.Is(err, session.ErrAcquireInProgress):
		return http.StatusConflict, response.ErrPermissionPending
	case errors.Is(err, session.ErrInvalidStartPhase):
		return http.StatusConflict, response.ErrInvalidStartPhase
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusGone, response.ErrSessionClosed
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
