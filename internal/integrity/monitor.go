// Package integrity turns raw browser environment signals into violations.
package integrity

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Monitor reports violations while started. It has no knowledge of thresholds.
type Monitor interface {
	Start(onViolation func(model.ViolationReason))
	Stop()
}

// Outcome describes what Observe did with a signal.
type Outcome struct {
	Violation model.ViolationReason
	Warning   *Warning
	Ignored   bool
}

// SignalMonitor is a Monitor fed by Observe, typically from a WebSocket reader.
type SignalMonitor struct {
	mu          sync.Mutex
	active      bool
	onViolation func(model.ViolationReason)
	onWarning   func(Warning)
	log         zerolog.Logger
}

// NewSignalMonitor creates a stopped monitor. onWarning may be nil.
func NewSignalMonitor(onWarning func(Warning), log zerolog.Logger) *SignalMonitor {
	return &SignalMonitor{
		onWarning: onWarning,
		log:       log.With().Str("component", "integrity_monitor").Logger(),
	}
}

// Start begins reporting violations to onViolation.
func (m *SignalMonitor) Start(onViolation func(model.ViolationReason)) {
	m.mu.Lock()
	m.active = true
	m.onViolation = onViolation
	m.mu.Unlock()

	m.log.Debug().Msg("Monitor started")
}

// Stop detaches the violation callback. Signals observed afterwards are ignored.
func (m *SignalMonitor) Stop() {
	m.mu.Lock()
	wasActive := m.active
	m.active = false
	m.onViolation = nil
	m.mu.Unlock()

	if wasActive {
		m.log.Debug().Msg("Monitor stopped")
	}
}

// Active reports whether the monitor is started.
func (m *SignalMonitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Observe classifies a signal and dispatches it. Callbacks run outside the lock.
func (m *SignalMonitor) Observe(s Signal) Outcome {
	m.mu.Lock()
	active := m.active
	onViolation := m.onViolation
	m.mu.Unlock()

	if !active {
		return Outcome{Ignored: true}
	}

	if reason, ok := violationFor(s.Kind); ok {
		m.log.Info().Str("reason", string(reason)).Msg("Violation detected")
		if onViolation != nil {
			onViolation(reason)
		}
		return Outcome{Violation: reason}
	}

	if kind := warningFor(s); kind != "" {
		w := Warning{Kind: kind, At: s.At}
		if s.Kind == SignalKeyDown {
			w.Key = NormalizeKey(s.Key)
		}
		m.log.Debug().Str("kind", string(kind)).Str("key", w.Key).Msg("Blocked input")
		if m.onWarning != nil {
			m.onWarning(w)
		}
		return Outcome{Warning: &w}
	}

	return Outcome{Ignored: true}
}

func violationFor(kind SignalKind) (model.ViolationReason, bool) {
	switch kind {
	case SignalVisibilityHidden:
		return model.ReasonTabHidden, true
	case SignalFullscreenExit:
		return model.ReasonFullscreenExit, true
	case SignalTrackEnded:
		return model.ReasonCameraFeedLost, true
	}
	return "", false
}

func warningFor(s Signal) WarningKind {
	switch s.Kind {
	case SignalContextMenu:
		return WarningContextMenu
	case SignalCopy, SignalCut, SignalPaste:
		return WarningClipboard
	case SignalKeyDown:
		return classifyKey(s.Key)
	}
	return ""
}
