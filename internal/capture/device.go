// Package capture manages the camera/microphone preview shown during an exam.
// It only observes: nothing here classifies or stores audio or video.
package capture

import (
	"context"
	"errors"
)

var (
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrReleased         = errors.New("capture manager released")
)

// Permission is the outcome of a device access request.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Device opens a combined audio/video capture.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open capture. Stop must stop every underlying track.
type Stream interface {
	Analyser() (Analyser, error)
	Stop()
}

// Analyser exposes frequency-domain audio data.
type Analyser interface {
	// FrequencyData copies the latest bins into dst and returns how many were written.
	FrequencyData(dst []uint8) int
	Close()
}

// Level reduces frequency bins to a 0..100 volume level.
func Level(bins []uint8) int {
	if len(bins) == 0 {
		return 0
	}
	sum := 0
	for _, b := range bins {
		sum += int(b)
	}
	avg := float64(sum) / float64(len(bins))
	return int(avg*100/255 + 0.5)
}
