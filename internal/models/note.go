package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NoteTTL is how long a note stays live after publishing.
const NoteTTL = 24 * time.Hour

// NoteMaxLength bounds the free-text payload.
const NoteMaxLength = 60

// Note is a single-slot ephemeral broadcast stored in MongoDB. VisibleTo is
// fixed at creation time to the author plus their mutual follows; later
// changes in mutuality do not rewrite it. Expired notes are filtered at
// read time rather than deleted eagerly.
type Note struct {
	ID         primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID     uint               `json:"user_id" bson:"user_id"`
	Username   string             `json:"username" bson:"username"`
	UserAvatar string             `json:"user_avatar,omitempty" bson:"user_avatar,omitempty"`
	Text       string             `json:"text" bson:"text"`
	VisibleTo  []uint             `json:"-" bson:"visible_to"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
	ExpiresAt  time.Time          `json:"expires_at" bson:"expires_at"`
}

// CreateNoteRequest defines the request body for publishing a note
type CreateNoteRequest struct {
	Text string `json:"text" validate:"required,min=1,max=60"`
}
