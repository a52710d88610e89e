package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Attempt tokens ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Session-specific ──────────────────────────────────────────────
	ErrTestNotAvailable  ErrCode = "TEST_NOT_AVAILABLE"
	ErrAlreadyAttempted  ErrCode = "ALREADY_ATTEMPTED"
	ErrSessionNotActive  ErrCode = "SESSION_NOT_ACTIVE"
	ErrSessionNotFound   ErrCode = "SESSION_NOT_FOUND"
	ErrIncompleteAnswers ErrCode = "INCOMPLETE_ANSWERS"
	ErrMissingAttempt    ErrCode = "MISSING_ATTEMPT"
	ErrNoTestCases       ErrCode = "NO_TEST_CASES"
	ErrIndexOutOfRange   ErrCode = "INDEX_OUT_OF_RANGE"
	ErrSubmitRejected    ErrCode = "SUBMIT_REJECTED"
	ErrSandboxFailure    ErrCode = "SANDBOX_FAILURE"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Attempt tokens ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "An attempt token is required."
	case ErrTokenInvalid:
		return "The attempt token is not valid."
	case ErrTokenExpired:
		return "The attempt token has expired."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Session-specific ──────────────────────────────────────────────
	case ErrTestNotAvailable:
		return "This test is not currently available."
	case ErrAlreadyAttempted:
		return "This test has already been attempted."
	case ErrSessionNotActive:
		return "The session is not in progress."
	case ErrSessionNotFound:
		return "No live session for this attempt. Reload to resume."
	case ErrIncompleteAnswers:
		return "Every question needs an answer before submitting."
	case ErrMissingAttempt:
		return "The attempt identifier is missing. Reload the session and try again."
	case ErrNoTestCases:
		return "This code question has no test cases configured."
	case ErrIndexOutOfRange:
		return "Question index is out of range."
	case ErrSubmitRejected:
		return "The submission was rejected. Your answers are kept; please retry."
	case ErrSandboxFailure:
		return "The code runner is unavailable. Please retry."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrFileRequired:
		return "A file upload is required."
	case ErrUnsupportedFile:
		return "Unsupported file type."
	case ErrFileTooLarge:
		return "File size exceeds the limit."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
