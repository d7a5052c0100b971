package model

import "time"

// ViolationReason is the integrity condition that produced a violation.
type ViolationReason string

const (
	ReasonTabHidden      ViolationReason = "tab-hidden"
	ReasonFullscreenExit ViolationReason = "fullscreen-exit"
	ReasonCameraFeedLost ViolationReason = "camera-feed-lost"
)

// ViolationEvent is kept only for the lifetime of a session.
type ViolationEvent struct {
	Reason ViolationReason `json:"reason"`
	At     time.Time       `json:"at"`
	Count  int             `json:"count"`
}
