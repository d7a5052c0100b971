package capture

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteDevice_GrantedFlow(t *testing.T) {
	var prompts, releases atomic.Int32
	var dev *RemoteDevice
	dev = NewRemoteDevice(func() {
		prompts.Add(1)
		go dev.Resolve(true)
	}, func() { releases.Add(1) })

	levels := make(chan int, 16)
	m := NewManager(dev, time.Millisecond, func(l int) {
		select {
		case levels <- l:
		default:
		}
	}, zerolog.Nop())

	perm, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, perm)
	assert.Equal(t, int32(1), prompts.Load())

	dev.Push([]uint8{255, 255})
	require.Eventually(t, func() bool { return m.Level() == 100 }, time.Second, time.Millisecond)

	m.Release()
	assert.Equal(t, int32(1), releases.Load())

	// Frames after release are dropped.
	dev.Push([]uint8{1})
}

func TestRemoteDevice_Denied(t *testing.T) {
	var dev *RemoteDevice
	dev = NewRemoteDevice(func() { go dev.Resolve(false) }, nil)

	_, err := dev.Open(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRemoteDevice_AnswerBeforeOpen(t *testing.T) {
	dev := NewRemoteDevice(nil, nil)
	dev.Resolve(false)
	dev.Resolve(true)

	s, err := dev.Open(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestRemoteDevice_OpenCancelled(t *testing.T) {
	dev := NewRemoteDevice(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dev.Open(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
