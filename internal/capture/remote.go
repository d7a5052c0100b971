package capture

import (
	"context"
	"sync"
)

// RemoteDevice is a Device whose permission prompt and audio analysis happen in
// the browser. The transport calls Resolve with the user's answer and Push with
// each frequency frame.
type RemoteDevice struct {
	prompt  func()
	release func()

	mu      sync.Mutex
	pending chan bool
	stream  *remoteStream
}

// NewRemoteDevice creates a RemoteDevice. prompt asks the browser for access;
// release tells it to stop its tracks. Either may be nil.
func NewRemoteDevice(prompt, release func()) *RemoteDevice {
	return &RemoteDevice{prompt: prompt, release: release}
}

// Open prompts the browser and waits for Resolve or ctx cancellation.
func (d *RemoteDevice) Open(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	if d.pending == nil {
		d.pending = make(chan bool, 1)
	}
	pending := d.pending
	d.mu.Unlock()

	if d.prompt != nil {
		d.prompt()
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case granted := <-pending:
		if !granted {
			return nil, ErrPermissionDenied
		}
	}

	s := &remoteStream{device: d}
	d.mu.Lock()
	d.stream = s
	d.mu.Unlock()
	return s, nil
}

// Resolve delivers the browser's answer to a pending or upcoming Open.
func (d *RemoteDevice) Resolve(granted bool) {
	d.mu.Lock()
	if d.pending == nil {
		d.pending = make(chan bool, 1)
	}
	pending := d.pending
	d.mu.Unlock()

	// Keep only the latest answer.
	select {
	case <-pending:
	default:
	}
	pending <- granted
}

// Push records the latest frequency frame reported by the browser.
func (d *RemoteDevice) Push(bins []uint8) {
	d.mu.Lock()
	s := d.stream
	d.mu.Unlock()
	if s != nil {
		s.push(bins)
	}
}

type remoteStream struct {
	device *RemoteDevice

	mu      sync.Mutex
	bins    []uint8
	stopped bool
}

func (s *remoteStream) Analyser() (Analyser, error) {
	return s, nil
}

func (s *remoteStream) FrequencyData(dst []uint8) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copy(dst, s.bins)
}

func (s *remoteStream) Close() {
	s.mu.Lock()
	s.bins = nil
	s.mu.Unlock()
}

func (s *remoteStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.device.mu.Lock()
	if s.device.stream == s {
		s.device.stream = nil
	}
	s.device.mu.Unlock()

	if s.device.release != nil {
		s.device.release()
	}
}

func (s *remoteStream) push(bins []uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.bins = append(s.bins[:0], bins...)
}
