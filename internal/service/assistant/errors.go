package assistant

import "errors"

// Failure taxonomy surfaced by the service. Handlers classify with errors.Is
// and never forward wrapped internal detail to the client.
var (
	// ErrInvalidCredentials covers both unknown username and wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrMissingCredentials rejects a signup without both fields before any
	// hashing or I/O.
	ErrMissingCredentials = errors.New("username and password are required")

	// ErrUsernameTaken is produced by the storage-level unique index, closing
	// the race between concurrent signups.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrNotFound covers both a nonexistent conversation and one owned by a
	// different user; the shapes must not differ, or existence leaks.
	ErrNotFound = errors.New("conversation not found")

	// ErrEmptyQuestion rejects blank questions before any I/O.
	ErrEmptyQuestion = errors.New("question is required")

	// ErrInvalidFormat rejects unknown answer formats before any I/O.
	ErrInvalidFormat = errors.New("unsupported answer format")

	// ErrProvider marks a failed external model call. Nothing was persisted,
	// so the client may retry safely.
	ErrProvider = errors.New("assistant request failed")

	// ErrInvalidAnswer marks structured output that failed to parse. The turn
	// is not persisted.
	ErrInvalidAnswer = errors.New("assistant returned malformed output")

	// ErrStorage marks a persistence failure after a successful model call;
	// it must stay distinct from ErrProvider because the user-visible effect
	// is "I have an answer but it may not be saved".
	ErrStorage = errors.New("answer could not be saved")
)
