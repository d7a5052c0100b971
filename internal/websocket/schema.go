package websocket

import (
	"encoding/json"
	"time"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart       Action = "start"
	ActionPermission  Action = "permission"
	ActionSignal      Action = "signal"
	ActionAudio       Action = "audio"
	ActionSelect      Action = "select"
	ActionNavigate    Action = "navigate"
	ActionAcknowledge Action = "acknowledge"
	ActionSubmit      Action = "submit"
	ActionRetry       Action = "retry"
	ActionTerminate   Action = "terminate"
	ActionPing        Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action          `json:"action" binding:"required"`
	Data   json.RawMessage `json:"data"`
}

// PermissionRequest carries the browser's answer to a capture prompt.
type PermissionRequest struct {
	Granted bool `json:"granted"`
}

// SignalRequest reports one environment observation.
type SignalRequest struct {
	Kind string `json:"kind" binding:"required,oneof=visibility_hidden visibility_visible fullscreen_exit fullscreen_enter track_ended context_menu copy cut paste keydown"`
	Key  string `json:"key" binding:"required_if=Kind keydown,max=64"`
}

// AudioRequest carries one analyser frequency frame.
type AudioRequest struct {
	Bins []int `json:"bins" binding:"required,max=2048,dive,min=0,max=255"`
}

// SelectRequest records an answer.
type SelectRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	Option     *int   `json:"option" binding:"required,min=0"`
}

// NavigateRequest moves the cursor to a question.
type NavigateRequest struct {
	Index int `json:"index"`
}

// AcknowledgeRequest dismisses a violation prompt.
type AcknowledgeRequest struct {
	FullscreenRestored bool `json:"fullscreen_restored"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventPaper          Event = "paper"
	EventState          Event = "state"
	EventTick           Event = "tick"
	EventViolation      Event = "violation"
	EventWarning        Event = "warning"
	EventLevel          Event = "level"
	EventFullscreen     Event = "fullscreen"
	EventCaptureRequest Event = "capture_request"
	EventCaptureRelease Event = "capture_release"
	EventPermission     Event = "permission_denied"
	EventNavigated      Event = "navigated"
	EventAnswered       Event = "answered"
	EventSubmitFailed   Event = "submit_failed"
	EventResult         Event = "result"
	EventError          Event = "error"
	EventPong           Event = "pong"
)

// Message is the envelope of every server event.
type Message struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

// PaperData is sent once on connect.
type PaperData struct {
	ExamID          string `json:"exam_id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationSeconds int    `json:"duration_seconds"`
	Questions       any    `json:"questions"`
}

type TickData struct {
	RemainingSeconds int    `json:"remaining_seconds"`
	Remaining        string `json:"remaining"`
}

type ViolationData struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
	Count  int       `json:"count"`
	Final  bool      `json:"final"`
}

type LevelData struct {
	Level int `json:"level"`
}

type NavigatedData struct {
	Index int `json:"index"`
}

type AnsweredData struct {
	QuestionID string `json:"question_id"`
	Option     int    `json:"option"`
}

type ResultData struct {
	ResultID string `json:"result_id"`
	Result   any    `json:"result"`
}

// ErrorData mirrors the REST error envelope.
type ErrorData struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
