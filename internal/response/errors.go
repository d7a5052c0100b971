package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamNotAvailable   ErrCode = "EXAM_NOT_AVAILABLE"
	ErrAlreadyAttempted   ErrCode = "ALREADY_ATTEMPTED"
	ErrNoQuestions        ErrCode = "NO_QUESTIONS"
	ErrSessionInProgress  ErrCode = "SESSION_IN_PROGRESS"
	ErrNotRunning         ErrCode = "SESSION_NOT_RUNNING"
	ErrUnknownQuestion    ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidOption      ErrCode = "INVALID_OPTION"
	ErrNoPrompt           ErrCode = "NO_VIOLATION_PROMPT"
	ErrPromptFinal        ErrCode = "VIOLATION_LIMIT_REACHED"
	ErrNotRestored        ErrCode = "ENVIRONMENT_NOT_RESTORED"
	ErrNothingToRetry     ErrCode = "NOTHING_TO_RETRY"
	ErrSubmitFailed       ErrCode = "SUBMIT_FAILED"
	ErrPermissionDenied   ErrCode = "CAPTURE_PERMISSION_DENIED"
	ErrPermissionPending  ErrCode = "CAPTURE_PERMISSION_PENDING"
	ErrInvalidStartPhase  ErrCode = "INVALID_START_PHASE"
	ErrSessionClosed      ErrCode = "SESSION_CLOSED"
	ErrSessionUnavailable ErrCode = "SESSION_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrUnknownAction:
		return "Unknown action."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "This exam is not available."
	case ErrAlreadyAttempted:
		return "You have already completed this exam."
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrSessionInProgress:
		return "This exam is already open in another window."
	case ErrNotRunning:
		return "The exam is not in progress."
	case ErrUnknownQuestion:
		return "Unknown question."
	case ErrInvalidOption:
		return "Selected option is out of range."
	case ErrNoPrompt:
		return "There is no violation warning to acknowledge."
	case ErrPromptFinal:
		return "The violation limit has been reached. The exam will be submitted."
	case ErrNotRestored:
		return "Return to fullscreen and keep the exam tab visible before continuing."
	case ErrNothingToRetry:
		return "There is no failed submission to retry."
	case ErrSubmitFailed:
		return "Your answers could not be saved. Please retry."
	case ErrPermissionDenied:
		return "Camera and microphone access is required to start the exam."
	case ErrPermissionPending:
		return "Waiting for camera and microphone permission."
	case ErrInvalidStartPhase:
		return "The exam has already started."
	case ErrSessionClosed:
		return "The exam session has ended."
	case ErrSessionUnavailable:
		return "The exam session could not be opened."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
