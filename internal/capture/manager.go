package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBins matches a 256-point FFT.
const DefaultBins = 128

// Manager owns one capture stream and its volume sampling task.
type Manager struct {
	device        Device
	frameInterval time.Duration
	onLevel       func(int)
	log           zerolog.Logger

	mu       sync.Mutex
	stream   Stream
	analyser Analyser
	level    int
	released bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewManager creates a Manager. onLevel may be nil.
func NewManager(device Device, frameInterval time.Duration, onLevel func(int), log zerolog.Logger) *Manager {
	if frameInterval <= 0 {
		frameInterval = 100 * time.Millisecond
	}
	return &Manager{
		device:        device,
		frameInterval: frameInterval,
		onLevel:       onLevel,
		log:           log.With().Str("component", "capture_manager").Logger(),
	}
}

// Acquire requests device access. A denial is reported as PermissionDenied with
// a nil error; other failures return PermissionDenied and the error. Every
// partially acquired resource is released before a failing return.
func (m *Manager) Acquire(ctx context.Context) (perm Permission, err error) {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return PermissionDenied, ErrReleased
	}
	if m.stream != nil {
		m.mu.Unlock()
		return PermissionGranted, nil
	}
	m.mu.Unlock()

	// The device prompt may block for a long time; do not hold the lock.
	stream, err := m.device.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			m.log.Info().Msg("Capture permission denied")
			return PermissionDenied, nil
		}
		return PermissionDenied, fmt.Errorf("open device: %w", err)
	}

	var analyser Analyser
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capture setup panicked: %v", r)
		}
		if err != nil {
			if analyser != nil {
				analyser.Close()
			}
			stream.Stop()
			perm = PermissionDenied
		}
	}()

	analyser, err = stream.Analyser()
	if err != nil {
		return PermissionDenied, fmt.Errorf("create analyser: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return PermissionDenied, ErrReleased
	}
	if m.stream != nil {
		// Lost a race with a concurrent Acquire; keep the first stream.
		analyser.Close()
		stream.Stop()
		return PermissionGranted, nil
	}

	m.stream = stream
	m.analyser = analyser

	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.sample(loopCtx, analyser, m.done)

	m.log.Info().Dur("frame_interval", m.frameInterval).Msg("Capture acquired")
	return PermissionGranted, nil
}

// Granted reports whether a stream is currently held.
func (m *Manager) Granted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}

// Level returns the latest sampled volume level.
func (m *Manager) Level() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Release stops sampling, waits for the sampling task to exit, then tears down
// the analyser and the stream. Safe to call more than once.
func (m *Manager) Release() {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return
	}
	m.released = true
	cancel, done := m.cancel, m.done
	analyser, stream := m.analyser, m.stream
	m.cancel, m.done, m.analyser, m.stream = nil, nil, nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if analyser != nil {
		analyser.Close()
	}
	if stream != nil {
		stream.Stop()
		m.log.Info().Msg("Capture released")
	}
}

func (m *Manager) sample(ctx context.Context, analyser Analyser, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.frameInterval)
	defer ticker.Stop()

	bins := make([]uint8, DefaultBins)
	last := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n := analyser.FrequencyData(bins)
		level := Level(bins[:n])

		m.mu.Lock()
		m.level = level
		m.mu.Unlock()

		if level != last {
			last = level
			if m.onLevel != nil && ctx.Err() == nil {
				m.onLevel(level)
			}
		}
	}
}
