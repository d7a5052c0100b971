package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyser struct {
	mu     sync.Mutex
	bins   []uint8
	closed atomic.Bool
}

func (a *fakeAnalyser) FrequencyData(dst []uint8) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copy(dst, a.bins)
}

func (a *fakeAnalyser) Close() { a.closed.Store(true) }

func (a *fakeAnalyser) set(bins []uint8) {
	a.mu.Lock()
	a.bins = bins
	a.mu.Unlock()
}

type fakeStream struct {
	analyser    *fakeAnalyser
	analyserErr error
	panicSetup  bool
	stopped     atomic.Int32
}

func (s *fakeStream) Analyser() (Analyser, error) {
	if s.panicSetup {
		panic("audio context unavailable")
	}
	if s.analyserErr != nil {
		return nil, s.analyserErr
	}
	return s.analyser, nil
}

func (s *fakeStream) Stop() { s.stopped.Add(1) }

type fakeDevice struct {
	stream *fakeStream
	err    error
	opens  atomic.Int32
}

func (d *fakeDevice) Open(ctx context.Context) (Stream, error) {
	d.opens.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

func newDevice() *fakeDevice {
	return &fakeDevice{stream: &fakeStream{analyser: &fakeAnalyser{}}}
}

func TestManager_AcquireGranted(t *testing.T) {
	dev := newDevice()
	m := NewManager(dev, time.Millisecond, nil, zerolog.Nop())

	perm, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, perm)
	assert.True(t, m.Granted())

	perm, err = m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, perm)
	assert.Equal(t, int32(1), dev.opens.Load())

	m.Release()
	assert.False(t, m.Granted())
	assert.Equal(t, int32(1), dev.stream.stopped.Load())
	assert.True(t, dev.stream.analyser.closed.Load())
}

func TestManager_AcquireDenied(t *testing.T) {
	dev := &fakeDevice{err: ErrPermissionDenied}
	m := NewManager(dev, time.Millisecond, nil, zerolog.Nop())

	perm, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionDenied, perm)
	assert.False(t, m.Granted())
}

func TestManager_AcquireDeviceError(t *testing.T) {
	dev := &fakeDevice{err: errors.New("no camera")}
	m := NewManager(dev, time.Millisecond, nil, zerolog.Nop())

	perm, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, PermissionDenied, perm)
}

func TestManager_SetupFailureStopsStream(t *testing.T) {
	dev := newDevice()
	dev.stream.analyserErr = errors.New("analyser failed")
	m := NewManager(dev, time.Millisecond, nil, zerolog.Nop())

	perm, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, PermissionDenied, perm)
	assert.Equal(t, int32(1), dev.stream.stopped.Load())
	assert.False(t, m.Granted())
}

func TestManager_SetupPanicStopsStream(t *testing.T) {
	dev := newDevice()
	dev.stream.panicSetup = true
	m := NewManager(dev, time.Millisecond, nil, zerolog.Nop())

	perm, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, PermissionDenied, perm)
	assert.Equal(t, int32(1), dev.stream.stopped.Load())
}

func TestManager_SamplesLevel(t *testing.T) {
	dev := newDevice()
	dev.stream.analyser.set([]uint8{255, 255, 255, 255})

	levels := make(chan int, 64)
	m := NewManager(dev, time.Millisecond, func(l int) {
		select {
		case levels <- l:
		default:
		}
	}, zerolog.Nop())

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer m.Release()

	select {
	case l := <-levels:
		assert.Equal(t, 100, l)
	case <-time.After(time.Second):
		t.Fatal("no level sampled")
	}
	assert.Equal(t, 100, m.Level())
}

func TestManager_ReleaseWaitsForSampler(t *testing.T) {
	dev := newDevice()
	dev.stream.analyser.set([]uint8{10, 20})

	var afterRelease atomic.Bool
	var lateCallbacks atomic.Int32
	m := NewManager(dev, time.Millisecond, func(int) {
		if afterRelease.Load() {
			lateCallbacks.Add(1)
		}
	}, zerolog.Nop())

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	m.Release()
	afterRelease.Store(true)
	dev.stream.analyser.set([]uint8{200, 200})
	time.Sleep(10 * time.Millisecond)

	assert.Zero(t, lateCallbacks.Load())
	m.Release()
	assert.Equal(t, int32(1), dev.stream.stopped.Load())
}

func TestManager_AcquireAfterRelease(t *testing.T) {
	m := NewManager(newDevice(), time.Millisecond, nil, zerolog.Nop())
	m.Release()

	perm, err := m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, PermissionDenied, perm)
}

func TestLevel(t *testing.T) {
	assert.Equal(t, 0, Level(nil))
	assert.Equal(t, 0, Level([]uint8{0, 0}))
	assert.Equal(t, 100, Level([]uint8{255}))
	assert.Equal(t, 50, Level([]uint8{0, 255}))
}
