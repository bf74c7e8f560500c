package repositories

import (
	"context"
	"log"
	"time"

	"github.com/tanvirx/loopgram/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NoteRepository defines the interface for ephemeral note operations
type NoteRepository interface {
	Replace(ctx context.Context, note *models.Note) error
	DeleteOwned(ctx context.Context, userID uint, noteID string) error
	ListVisible(ctx context.Context, viewerID uint, now time.Time) ([]models.Note, error)
	PurgeExpired(ctx context.Context, now time.Time) error
}

type mongoNoteRepository struct {
	collection *mongo.Collection
}

func NewMongoNoteRepository(db *mongo.Database) NoteRepository {
	coll := db.Collection("notes")
	// The unique index makes one-live-note-per-author hold even under
	// racing publishes.
	_, err := coll.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		log.Printf("Failed to ensure notes user_id index: %v", err)
	}
	return &mongoNoteRepository{collection: coll}
}

// Replace enforces single-slot-per-author with one atomic upsert keyed by
// the author: an existing note is replaced in place (keeping its _id), a
// missing one is inserted. The decoded result fills in the note's ID.
func (r *mongoNoteRepository) Replace(ctx context.Context, note *models.Note) error {
	note.ID = primitive.NilObjectID
	opts := options.FindOneAndReplace().
		SetUpsert(true).
		SetReturnDocument(options.After)
	res := r.collection.FindOneAndReplace(ctx, bson.M{"user_id": note.UserID}, note, opts)
	return res.Decode(note)
}

// DeleteOwned removes a note only when it belongs to userID. Returns
// ErrNoteNotFound if no matching record was deleted.
func (r *mongoNoteRepository) DeleteOwned(ctx context.Context, userID uint, noteID string) error {
	objID, err := primitive.ObjectIDFromHex(noteID)
	if err != nil {
		return ErrNoteNotFound
	}
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// ListVisible returns live notes whose visibility set contains the viewer,
// newest first. Expiry is filtered at read time.
func (r *mongoNoteRepository) ListVisible(ctx context.Context, viewerID uint, now time.Time) ([]models.Note, error) {
	filter := bson.M{
		"visible_to": viewerID,
		"expires_at": bson.M{"$gt": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var notes []models.Note
	if err = cursor.All(ctx, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// PurgeExpired deletes notes past their expiry. Housekeeping only; reads
// never depend on it having run.
func (r *mongoNoteRepository) PurgeExpired(ctx context.Context, now time.Time) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	return err
}
