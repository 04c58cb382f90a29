package session

import "errors"

// Error codes for session failures, used in logs and metrics so
// operators can tell credential loops apart from network flakiness.
const (
	ErrCodeAuthFailure  = "auth_failure"
	ErrCodeJoinTimeout  = "join_timeout"
	ErrCodeTransport    = "transport_error"
	ErrCodeMaxAttempts  = "max_attempts_exceeded"
	ErrCodeNotConnected = "not_connected"
)

var (
	// ErrNotConnected is returned by Send while the session is not in
	// the Connected state. Sends never queue.
	ErrNotConnected = errors.New("session not connected")
	// ErrMaxAttempts is the terminal error after the reconnect budget
	// is exhausted.
	ErrMaxAttempts = errors.New("failed to reconnect: max attempts exceeded")
)

// SessionError wraps a failure code and a human-readable message.
type SessionError struct {
	Code    string
	Message string
}

func (e *SessionError) Error() string {
	return e.Message
}

func sessionError(code, msg string) *SessionError {
	return &SessionError{Code: code, Message: msg}
}

// ErrorCode extracts the session failure code from err, or
// ErrCodeTransport when the error carries none.
func ErrorCode(err error) string {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeTransport
}
