package repositories

import "errors"

var (
	// ErrUserNotFound is returned when a referenced profile row is missing.
	ErrUserNotFound = errors.New("user not found")

	// ErrRequestNotFound is returned when an accept targets a pending
	// follow request that does not exist.
	ErrRequestNotFound = errors.New("follow request not found")

	// ErrNoteNotFound is returned when a retract targets a note that does
	// not exist or is not owned by the caller.
	ErrNoteNotFound = errors.New("note not found")

	// ErrTransientStore is returned after a transaction kept conflicting
	// with concurrent writers. Nothing was applied; callers may retry.
	ErrTransientStore = errors.New("transient store conflict")
)
