package session

// Phase is a step in the exam session lifecycle.
type Phase string

const (
	PhaseNotStarted          Phase = "NOT_STARTED"
	PhaseAwaitingPermissions Phase = "AWAITING_PERMISSIONS"
	PhaseRunning             Phase = "RUNNING"
	PhaseViolationPrompt     Phase = "VIOLATION_PROMPT"
	PhaseSubmitting          Phase = "SUBMITTING"
	PhaseTerminated          Phase = "TERMINATED"
)

// Active reports whether the test-taker is sitting the exam.
func (p Phase) Active() bool {
	return p == PhaseRunning || p == PhaseViolationPrompt
}
