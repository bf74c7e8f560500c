package services

import (
	"context"
	"time"

	"github.com/tanvirx/loopgram/backend/internal/models"
	"github.com/tanvirx/loopgram/backend/internal/repositories"
)

var _ IGraphService = (*GraphService)(nil)

// IGraphService is the follow-graph mutation protocol. Each mutation is a
// bounded read-then-conditional-write against the edge store; the full
// write set of an operation (both edge rows, both counters, any pending
// request) commits atomically or not at all.
type IGraphService interface {
	Follow(ctx context.Context, userID, targetID uint) (models.RelationState, error)
	Unfollow(ctx context.Context, userID, targetID uint) error
	RemoveFollower(ctx context.Context, userID, followerID uint) error
	AcceptFollowRequest(ctx context.Context, ownerID, requesterID uint) error
	DeclineFollowRequest(ctx context.Context, ownerID, requesterID uint) error
	Relation(ctx context.Context, userID, targetID uint) (models.RelationState, error)
	Followers(ctx context.Context, userID uint) ([]models.FollowEdge, error)
	Following(ctx context.Context, userID uint) ([]models.FollowEdge, error)
	PendingRequests(ctx context.Context, ownerID uint) ([]models.FollowRequest, error)
	MutualFollowers(ctx context.Context, userID uint) ([]uint, error)
	WatchCounts(ctx context.Context, userID uint) (*CountSubscription, error)
}

// GraphService implements IGraphService on top of the follow and user
// repositories.
type GraphService struct {
	follows  repositories.FollowRepository
	users    repositories.UserRepository
	notifier Notifier

	// pollInterval drives count subscriptions.
	pollInterval time.Duration
}

func NewGraphService(follows repositories.FollowRepository, users repositories.UserRepository, notifier Notifier) *GraphService {
	return &GraphService{
		follows:      follows,
		users:        users,
		notifier:     notifier,
		pollInterval: 2 * time.Second,
	}
}

// Follow makes userID follow targetID. The target's privacy flag is read
// fresh on every attempt: a private target gets an idempotent pending
// request (no counter change), a public one gets the atomic edge pair plus
// counter increments. Re-following is a no-op success either way.
func (s *GraphService) Follow(ctx context.Context, userID, targetID uint) (models.RelationState, error) {
	if userID == targetID {
		return models.RelationNone, ErrSelfReference
	}

	follower, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return models.RelationNone, err
	}
	target, err := s.users.GetUserByID(ctx, targetID)
	if err != nil {
		return models.RelationNone, err
	}

	if target.IsPrivate {
		// A request only makes sense while no approved edge exists.
		following, err := s.follows.HasEdge(ctx, userID, targetID)
		if err != nil {
			return models.RelationNone, err
		}
		if following {
			return models.RelationFollowing, nil
		}
		created, err := s.follows.CreateRequest(ctx, targetID, follower)
		if err != nil {
			return models.RelationNone, err
		}
		if created {
			s.notifier.Emit(ctx, models.NotificationFollowRequest, follower, targetID)
		}
		return models.RelationRequested, nil
	}

	created, err := s.follows.CreateEdgePair(ctx, follower, target)
	if err != nil {
		return models.RelationNone, err
	}
	if created {
		s.notifier.Emit(ctx, models.NotificationFollow, follower, targetID)
	}
	return models.RelationFollowing, nil
}

// Unfollow cancels any pending request (no counters were ever touched for
// it) and tears down the edge pair with clamped counter decrements. Both
// removals run even when only one side exists, so a stale request can
// never shield a live edge. "Already not following" is a success, not an
// error.
func (s *GraphService) Unfollow(ctx context.Context, userID, targetID uint) error {
	if userID == targetID {
		return ErrSelfReference
	}
	if _, err := s.users.GetUserByID(ctx, targetID); err != nil {
		return err
	}

	if _, err := s.follows.DeleteRequest(ctx, targetID, userID); err != nil {
		return err
	}

	_, err := s.follows.DeleteEdgePair(ctx, userID, targetID)
	return err
}

// RemoveFollower is unfollow initiated by the followed party: it deletes
// the follower's edge onto userID with the same atomicity and clamping.
func (s *GraphService) RemoveFollower(ctx context.Context, userID, followerID uint) error {
	if userID == followerID {
		return ErrSelfReference
	}
	if _, err := s.users.GetUserByID(ctx, followerID); err != nil {
		return err
	}

	_, err := s.follows.DeleteEdgePair(ctx, followerID, userID)
	return err
}

// AcceptFollowRequest approves a pending request: one transaction deletes
// the request, creates the edge pair and increments both counters.
// Returns repositories.ErrRequestNotFound when no request is pending.
func (s *GraphService) AcceptFollowRequest(ctx context.Context, ownerID, requesterID uint) error {
	if ownerID == requesterID {
		return ErrSelfReference
	}

	owner, err := s.users.GetUserByID(ctx, ownerID)
	if err != nil {
		return err
	}
	requester, err := s.users.GetUserByID(ctx, requesterID)
	if err != nil {
		return err
	}

	if err := s.follows.AcceptRequest(ctx, owner, requester); err != nil {
		return err
	}

	s.notifier.Emit(ctx, models.NotificationAccepted, owner, requesterID)
	return nil
}

// DeclineFollowRequest discards a pending request. Idempotent: declining a
// request that no longer exists is a success.
func (s *GraphService) DeclineFollowRequest(ctx context.Context, ownerID, requesterID uint) error {
	if ownerID == requesterID {
		return ErrSelfReference
	}
	_, err := s.follows.DeleteRequest(ctx, ownerID, requesterID)
	return err
}

// Relation reports the explicit per-pair state for (userID -> targetID).
func (s *GraphService) Relation(ctx context.Context, userID, targetID uint) (models.RelationState, error) {
	if userID == targetID {
		return models.RelationNone, ErrSelfReference
	}
	following, err := s.follows.HasEdge(ctx, userID, targetID)
	if err != nil {
		return models.RelationNone, err
	}
	if following {
		return models.RelationFollowing, nil
	}
	requested, err := s.follows.HasRequest(ctx, targetID, userID)
	if err != nil {
		return models.RelationNone, err
	}
	if requested {
		return models.RelationRequested, nil
	}
	return models.RelationNone, nil
}

// Followers returns the user's followers collection.
func (s *GraphService) Followers(ctx context.Context, userID uint) ([]models.FollowEdge, error) {
	return s.follows.GetFollowers(ctx, userID)
}

// Following returns the user's following collection.
func (s *GraphService) Following(ctx context.Context, userID uint) ([]models.FollowEdge, error) {
	return s.follows.GetFollowing(ctx, userID)
}

// PendingRequests returns the pending follow requests against the owner.
func (s *GraphService) PendingRequests(ctx context.Context, ownerID uint) ([]models.FollowRequest, error) {
	return s.follows.GetRequests(ctx, ownerID)
}

// MutualFollowers computes the intersection of the user's following and
// follower sets. Recomputed in full on every call; it only runs on
// user-initiated note publishing, never on graph mutations.
func (s *GraphService) MutualFollowers(ctx context.Context, userID uint) ([]uint, error) {
	followingIDs, err := s.follows.GetFollowingIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	followerIDs, err := s.follows.GetFollowerIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	followers := make(map[uint]struct{}, len(followerIDs))
	for _, id := range followerIDs {
		followers[id] = struct{}{}
	}

	mutuals := make([]uint, 0, len(followingIDs))
	for _, id := range followingIDs {
		if _, ok := followers[id]; ok {
			mutuals = append(mutuals, id)
		}
	}
	return mutuals, nil
}

// Counts is a snapshot of a user's denormalized follow counters.
type Counts struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
}

// CountSubscription streams counter snapshots for one user until stopped.
// Each subscription owns its cancellation; independent subscriptions do
// not share state.
type CountSubscription struct {
	C      <-chan Counts
	cancel context.CancelFunc
}

// Stop cancels the subscription; the channel is closed and no further
// sends happen.
func (s *CountSubscription) Stop() {
	s.cancel()
}

// WatchCounts returns a subscription that emits the user's current counts
// immediately and again whenever they change.
func (s *GraphService) WatchCounts(ctx context.Context, userID uint) (*CountSubscription, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Counts, 1)
	sub := &CountSubscription{C: ch, cancel: cancel}

	go func() {
		defer close(ch)
		last := Counts{Followers: user.FollowerCount, Following: user.FollowingCount}
		ch <- last

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				u, err := s.users.GetUserByID(watchCtx, userID)
				if err != nil {
					continue
				}
				next := Counts{Followers: u.FollowerCount, Following: u.FollowingCount}
				if next == last {
					continue
				}
				last = next
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
