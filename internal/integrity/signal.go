package integrity

import (
	"strings"
	"time"
)

// SignalKind is a raw environment observation reported by the browser.
type SignalKind string

const (
	SignalVisibilityHidden  SignalKind = "visibility_hidden"
	SignalVisibilityVisible SignalKind = "visibility_visible"
	SignalFullscreenExit    SignalKind = "fullscreen_exit"
	SignalFullscreenEnter   SignalKind = "fullscreen_enter"
	SignalTrackEnded        SignalKind = "track_ended"
	SignalContextMenu       SignalKind = "context_menu"
	SignalCopy              SignalKind = "copy"
	SignalCut               SignalKind = "cut"
	SignalPaste             SignalKind = "paste"
	SignalKeyDown           SignalKind = "keydown"
)

// Signal is one environment observation. Key is set for SignalKeyDown,
// formatted like "Ctrl+Shift+I" or "F12".
type Signal struct {
	Kind SignalKind
	Key  string
	At   time.Time
}

// WarningKind classifies a blocked input.
type WarningKind string

const (
	WarningContextMenu  WarningKind = "context_menu"
	WarningClipboard    WarningKind = "clipboard"
	WarningDevTools     WarningKind = "dev_tools"
	WarningCopyShortcut WarningKind = "copy_shortcut"
)

// Warning is shown transiently and never counts towards the violation threshold.
type Warning struct {
	Kind WarningKind `json:"kind"`
	Key  string      `json:"key,omitempty"`
	At   time.Time   `json:"at"`
}

var devToolCombos = map[string]struct{}{
	"f12":          {},
	"ctrl+shift+i": {},
	"ctrl+shift+j": {},
	"ctrl+shift+c": {},
	"ctrl+u":       {},
	"alt+ctrl+i":   {},
	"alt+ctrl+j":   {},
}

var copyCombos = map[string]struct{}{
	"ctrl+c": {},
	"ctrl+x": {},
	"ctrl+v": {},
	"ctrl+a": {},
	"ctrl+p": {},
	"ctrl+s": {},
}

// NormalizeKey lowercases a key combo, folds Cmd/Meta into Ctrl and orders the
// modifiers as alt, ctrl, shift.
func NormalizeKey(combo string) string {
	var alt, ctrl, shift bool
	var key string

	for _, part := range strings.Split(combo, "+") {
		p := strings.ToLower(strings.TrimSpace(part))
		switch p {
		case "":
			continue
		case "alt", "option":
			alt = true
		case "ctrl", "control", "cmd", "command", "meta":
			ctrl = true
		case "shift":
			shift = true
		default:
			key = p
		}
	}

	var b strings.Builder
	if alt {
		b.WriteString("alt+")
	}
	if ctrl {
		b.WriteString("ctrl+")
	}
	if shift {
		b.WriteString("shift+")
	}
	b.WriteString(key)
	return b.String()
}

// classifyKey returns the warning kind for a blocked key combo, or "" when the
// key is allowed.
func classifyKey(combo string) WarningKind {
	k := NormalizeKey(combo)
	if _, ok := devToolCombos[k]; ok {
		return WarningDevTools
	}
	if _, ok := copyCombos[k]; ok {
		return WarningCopyShortcut
	}
	return ""
}
