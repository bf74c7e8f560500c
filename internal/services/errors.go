package services

import "errors"

var (
	// ErrSelfReference is returned when a graph operation targets its own
	// initiator (self-follow, self-unfollow, removing yourself).
	ErrSelfReference = errors.New("operation cannot target yourself")

	// ErrInvalidNoteText is returned when a note payload is empty or
	// longer than models.NoteMaxLength.
	ErrInvalidNoteText = errors.New("note text must be 1-60 characters")
)
