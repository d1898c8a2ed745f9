// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Auth operations
	OpLogin        Op = "log in"
	OpVerifyToken  Op = "verify session token"
	OpRefreshToken Op = "refresh session token"
	OpLogout       Op = "log out"

	// Queue operations
	OpQueueLoad    Op = "load queue"
	OpQueueSave    Op = "save queue"
	OpQueueAdd     Op = "add to queue"
	OpQueueRestore Op = "restore queue"

	// Playback operations
	OpPlaybackStart Op = "start playback"
	OpPlaybackSeek  Op = "seek"

	// Listening history
	OpHistorySave Op = "record listening session"

	// Initialization
	OpInitialize Op = "initialize session core"
)

// User-facing auth messages. LoginBadCredentials keeps the wording the
// mobile client displays.
const (
	LoginBadCredentials = "Email atau password salah"
	LoginBadRequest     = "Login request was malformed"
	LoginNetworkFailure = "Could not reach the server, check your connection"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
