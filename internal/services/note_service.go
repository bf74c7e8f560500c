package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tanvirx/loopgram/backend/internal/models"
	"github.com/tanvirx/loopgram/backend/internal/repositories"
)

var _ INoteService = (*NoteService)(nil)

// MutualResolver supplies the point-in-time mutual-follow set used to
// scope a note's visibility at publish time.
type MutualResolver interface {
	MutualFollowers(ctx context.Context, userID uint) ([]uint, error)
}

// INoteService manages single-slot ephemeral notes.
type INoteService interface {
	Publish(ctx context.Context, authorID uint, text string) (*models.Note, error)
	Retract(ctx context.Context, authorID uint, noteID string) error
	ListVisible(ctx context.Context, viewerID uint) ([]models.Note, error)
	Watch(ctx context.Context, viewerID uint) (*NoteSubscription, error)
}

// NoteService implements INoteService.
type NoteService struct {
	notes   repositories.NoteRepository
	users   repositories.UserRepository
	mutuals MutualResolver

	pollInterval time.Duration
	now          func() time.Time
}

func NewNoteService(notes repositories.NoteRepository, users repositories.UserRepository, mutuals MutualResolver) *NoteService {
	return &NoteService{
		notes:        notes,
		users:        users,
		mutuals:      mutuals,
		pollInterval: 2 * time.Second,
		now:          time.Now,
	}
}

// Publish creates the author's note, superseding any prior one. Visibility
// is frozen at publish time to the author plus their current mutual
// follows; the record expires models.NoteTTL later.
func (s *NoteService) Publish(ctx context.Context, authorID uint, text string) (*models.Note, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > models.NoteMaxLength {
		return nil, ErrInvalidNoteText
	}

	author, err := s.users.GetUserByID(ctx, authorID)
	if err != nil {
		return nil, err
	}

	mutuals, err := s.mutuals.MutualFollowers(ctx, authorID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	note := &models.Note{
		UserID:     authorID,
		Username:   author.Username,
		UserAvatar: author.Avatar,
		Text:       text,
		VisibleTo:  append([]uint{authorID}, mutuals...),
		CreatedAt:  now,
		ExpiresAt:  now.Add(models.NoteTTL),
	}
	if err := s.notes.Replace(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// Retract deletes the author's note before its expiry. Retracting a note
// that does not exist (or is not owned by the author) returns
// repositories.ErrNoteNotFound.
func (s *NoteService) Retract(ctx context.Context, authorID uint, noteID string) error {
	return s.notes.DeleteOwned(ctx, authorID, noteID)
}

// ListVisible returns the live notes the viewer may see, newest first.
func (s *NoteService) ListVisible(ctx context.Context, viewerID uint) ([]models.Note, error) {
	return s.notes.ListVisible(ctx, viewerID, s.now())
}

// NoteSubscription streams visible-note snapshots for one viewer until
// stopped. Each handle owns its cancellation; concurrent subscriptions for
// different viewers are independent.
type NoteSubscription struct {
	C      <-chan []models.Note
	cancel context.CancelFunc
}

// Stop cancels the subscription; the channel is closed and no further
// sends happen.
func (s *NoteSubscription) Stop() {
	s.cancel()
}

// Watch returns a subscription that emits the viewer's current visible
// notes immediately and again whenever the set changes, including when
// records expire out of it.
func (s *NoteService) Watch(ctx context.Context, viewerID uint) (*NoteSubscription, error) {
	notes, err := s.ListVisible(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	ch := make(chan []models.Note, 1)
	sub := &NoteSubscription{C: ch, cancel: cancel}

	go func() {
		defer close(ch)
		last := noteFingerprint(notes)
		ch <- notes

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				next, err := s.ListVisible(watchCtx, viewerID)
				if err != nil {
					continue
				}
				fp := noteFingerprint(next)
				if fp == last {
					continue
				}
				last = fp
				select {
				case ch <- next:
				case <-watchCtx.Done():
					return
				}
			}
		}
	}()

	return sub, nil
}

// noteFingerprint summarizes a snapshot so unchanged polls stay silent.
func noteFingerprint(notes []models.Note) string {
	var b strings.Builder
	for _, n := range notes {
		b.WriteString(n.ID.Hex())
		b.WriteByte('|')
	}
	return b.String()
}
