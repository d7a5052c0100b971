package session

import "errors"

var (
	ErrUnauthenticated   = errors.New("no authenticated user")
	ErrAlreadyAttempted  = errors.New("exam already attempted")
	ErrExamUnavailable   = errors.New("exam not found or not published")
	ErrNoQuestions       = errors.New("exam has no questions")
	ErrNotRunning        = errors.New("session is not running")
	ErrUnknownQuestion   = errors.New("unknown question")
	ErrInvalidOption     = errors.New("option index out of range")
	ErrNoPrompt          = errors.New("no violation prompt to acknowledge")
	ErrPromptFinal       = errors.New("violation limit reached, exam must be terminated")
	ErrNotRestored       = errors.New("exam environment not restored")
	ErrNothingToRetry    = errors.New("no failed submission to retry")
	ErrSessionClosed     = errors.New("session closed")
	ErrAcquireInProgress = errors.New("device permission request already pending")
	ErrInvalidStartPhase = errors.New("session cannot be started from its current phase")
)
