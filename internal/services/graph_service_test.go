package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanvirx/loopgram/backend/internal/models"
	"github.com/tanvirx/loopgram/backend/internal/repositories"
)

type edgeKey struct {
	owner uint
	peer  uint
	kind  models.EdgeKind
}

type pairKey struct {
	owner     uint
	requester uint
}

// fakeStore implements both UserRepository and FollowRepository in memory,
// mirroring the shared-database coupling: edge mutations and counter
// updates happen under one lock, all-or-nothing.
type fakeStore struct {
	mu       sync.Mutex
	users    map[uint]*models.User
	edges    map[edgeKey]models.FollowEdge
	requests map[pairKey]models.FollowRequest
	seq      uint
}

func newFakeStore(users ...*models.User) *fakeStore {
	s := &fakeStore{
		users:    make(map[uint]*models.User),
		edges:    make(map[edgeKey]models.FollowEdge),
		requests: make(map[pairKey]models.FollowRequest),
	}
	for _, u := range users {
		copied := *u
		s.users[u.ID] = &copied
	}
	return s
}

// --- UserRepository ---

func (s *fakeStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	user.ID = s.seq
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *fakeStore) GetUserByID(_ context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *fakeStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (s *fakeStore) GetUserByFirebaseUID(_ context.Context, uid string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.FirebaseUID == uid {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (s *fakeStore) UpdateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *fakeStore) SearchUsers(_ context.Context, query string) ([]models.User, error) {
	return nil, nil
}

// --- FollowRepository ---

func (s *fakeStore) CreateEdgePair(_ context.Context, follower, target *models.User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A pending request is settled by the approved edge, never kept beside it.
	delete(s.requests, pairKey{target.ID, follower.ID})
	followingKey := edgeKey{follower.ID, target.ID, models.EdgeFollowing}
	if _, exists := s.edges[followingKey]; exists {
		return false, nil
	}
	s.edges[followingKey] = models.FollowEdge{
		OwnerID: follower.ID, PeerID: target.ID, Kind: models.EdgeFollowing,
		PeerUsername: target.Username, PeerDisplayName: target.DisplayName,
		CreatedAt: time.Now(),
	}
	s.edges[edgeKey{target.ID, follower.ID, models.EdgeFollower}] = models.FollowEdge{
		OwnerID: target.ID, PeerID: follower.ID, Kind: models.EdgeFollower,
		PeerUsername: follower.Username, PeerDisplayName: follower.DisplayName,
		CreatedAt: time.Now(),
	}
	s.users[follower.ID].FollowingCount++
	s.users[target.ID].FollowerCount++
	return true, nil
}

func (s *fakeStore) DeleteEdgePair(_ context.Context, followerID, targetID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	followingKey := edgeKey{followerID, targetID, models.EdgeFollowing}
	followerKey := edgeKey{targetID, followerID, models.EdgeFollower}
	_, hadFollowing := s.edges[followingKey]
	_, hadFollower := s.edges[followerKey]
	if !hadFollowing && !hadFollower {
		return false, nil
	}
	delete(s.edges, followingKey)
	delete(s.edges, followerKey)
	if u := s.users[followerID]; hadFollowing && u != nil && u.FollowingCount > 0 {
		u.FollowingCount--
	}
	if u := s.users[targetID]; hadFollower && u != nil && u.FollowerCount > 0 {
		u.FollowerCount--
	}
	return true, nil
}

func (s *fakeStore) HasEdge(_ context.Context, followerID, targetID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.edges[edgeKey{followerID, targetID, models.EdgeFollowing}]
	return ok, nil
}

func (s *fakeStore) CreateRequest(_ context.Context, owner uint, requester *models.User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{owner, requester.ID}
	if _, exists := s.requests[key]; exists {
		return false, nil
	}
	s.requests[key] = models.FollowRequest{
		OwnerID: owner, RequesterID: requester.ID,
		RequesterUsername: requester.Username, CreatedAt: time.Now(),
	}
	return true, nil
}

func (s *fakeStore) DeleteRequest(_ context.Context, ownerID, requesterID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{ownerID, requesterID}
	if _, exists := s.requests[key]; !exists {
		return false, nil
	}
	delete(s.requests, key)
	return true, nil
}

func (s *fakeStore) HasRequest(_ context.Context, ownerID, requesterID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.requests[pairKey{ownerID, requesterID}]
	return ok, nil
}

func (s *fakeStore) AcceptRequest(_ context.Context, owner, requester *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{owner.ID, requester.ID}
	if _, exists := s.requests[key]; !exists {
		return repositories.ErrRequestNotFound
	}
	delete(s.requests, key)
	followingKey := edgeKey{requester.ID, owner.ID, models.EdgeFollowing}
	if _, exists := s.edges[followingKey]; exists {
		return nil
	}
	s.edges[followingKey] = models.FollowEdge{
		OwnerID: requester.ID, PeerID: owner.ID, Kind: models.EdgeFollowing, CreatedAt: time.Now(),
	}
	s.edges[edgeKey{owner.ID, requester.ID, models.EdgeFollower}] = models.FollowEdge{
		OwnerID: owner.ID, PeerID: requester.ID, Kind: models.EdgeFollower, CreatedAt: time.Now(),
	}
	s.users[requester.ID].FollowingCount++
	s.users[owner.ID].FollowerCount++
	return nil
}

func (s *fakeStore) GetRequests(_ context.Context, ownerID uint) ([]models.FollowRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FollowRequest
	for key, req := range s.requests {
		if key.owner == ownerID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *fakeStore) GetFollowers(_ context.Context, ownerID uint) ([]models.FollowEdge, error) {
	return s.edgesOf(ownerID, models.EdgeFollower), nil
}

func (s *fakeStore) GetFollowing(_ context.Context, ownerID uint) ([]models.FollowEdge, error) {
	return s.edgesOf(ownerID, models.EdgeFollowing), nil
}

func (s *fakeStore) edgesOf(ownerID uint, kind models.EdgeKind) []models.FollowEdge {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FollowEdge
	for key, e := range s.edges {
		if key.owner == ownerID && key.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (s *fakeStore) GetFollowerIDs(_ context.Context, ownerID uint) ([]uint, error) {
	var ids []uint
	for _, e := range s.edgesOf(ownerID, models.EdgeFollower) {
		ids = append(ids, e.PeerID)
	}
	return ids, nil
}

func (s *fakeStore) GetFollowingIDs(_ context.Context, ownerID uint) ([]uint, error) {
	var ids []uint
	for _, e := range s.edgesOf(ownerID, models.EdgeFollowing) {
		ids = append(ids, e.PeerID)
	}
	return ids, nil
}

func (s *fakeStore) ReconcileCounts(_ context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	followers, following := 0, 0
	for key := range s.edges {
		if key.owner != userID {
			continue
		}
		if key.kind == models.EdgeFollower {
			followers++
		} else {
			following++
		}
	}
	u.FollowerCount = followers
	u.FollowingCount = following
	return nil
}

func (s *fakeStore) counts(id uint) (followers, following int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	return u.FollowerCount, u.FollowingCount
}

// fakeNotifier records emitted events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Emit(_ context.Context, kind string, _ *models.User, _ uint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, kind)
}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func newTestGraph(users ...*models.User) (*GraphService, *fakeStore, *fakeNotifier) {
	store := newFakeStore(users...)
	notifier := &fakeNotifier{}
	svc := NewGraphService(store, store, notifier)
	return svc, store, notifier
}

func user(id uint, username string) *models.User {
	return &models.User{ID: id, Username: username, DisplayName: username}
}

func privateUser(id uint, username string) *models.User {
	u := user(id, username)
	u.IsPrivate = true
	return u
}

func TestFollowPublicCreatesEdgeAndCounts(t *testing.T) {
	svc, store, notifier := newTestGraph(user(1, "alice"), user(2, "bob"))

	state, err := svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.RelationFollowing, state)

	following, _ := store.HasEdge(context.Background(), 1, 2)
	assert.True(t, following)

	followers, _ := store.GetFollowerIDs(context.Background(), 2)
	assert.Equal(t, []uint{1}, followers)

	bobFollowers, _ := store.counts(2)
	_, aliceFollowing := store.counts(1)
	assert.Equal(t, 1, bobFollowers)
	assert.Equal(t, 1, aliceFollowing)

	assert.Equal(t, []string{models.NotificationFollow}, notifier.kinds())
}

func TestFollowIsIdempotent(t *testing.T) {
	svc, store, notifier := newTestGraph(user(1, "alice"), user(2, "bob"))

	_, err := svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)
	state, err := svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.RelationFollowing, state)

	bobFollowers, _ := store.counts(2)
	_, aliceFollowing := store.counts(1)
	assert.Equal(t, 1, bobFollowers)
	assert.Equal(t, 1, aliceFollowing)

	// Only the call that created the edge notified.
	assert.Len(t, notifier.kinds(), 1)
}

func TestFollowSelfRejected(t *testing.T) {
	svc, _, _ := newTestGraph(user(1, "alice"))

	_, err := svc.Follow(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrSelfReference)
}

func TestFollowUnknownUser(t *testing.T) {
	svc, _, _ := newTestGraph(user(1, "alice"))

	_, err := svc.Follow(context.Background(), 1, 99)
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)

	_, err = svc.Follow(context.Background(), 99, 1)
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)
}

func TestFollowUnfollowRoundTrip(t *testing.T) {
	alice := user(1, "alice")
	bob := user(2, "bob")
	// Pre-existing counts survive the round trip exactly.
	bob.FollowerCount = 5
	alice.FollowingCount = 3
	svc, store, _ := newTestGraph(alice, bob)

	_, err := svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)
	require.NoError(t, svc.Unfollow(context.Background(), 1, 2))

	following, _ := store.HasEdge(context.Background(), 1, 2)
	assert.False(t, following)

	bobFollowers, _ := store.counts(2)
	_, aliceFollowing := store.counts(1)
	assert.Equal(t, 5, bobFollowers)
	assert.Equal(t, 3, aliceFollowing)
}

func TestUnfollowWithoutRelationshipIsNoOp(t *testing.T) {
	svc, store, _ := newTestGraph(user(1, "alice"), user(2, "bob"))

	require.NoError(t, svc.Unfollow(context.Background(), 1, 2))

	bobFollowers, _ := store.counts(2)
	assert.Equal(t, 0, bobFollowers)
}

func TestFollowPrivateCreatesPendingRequest(t *testing.T) {
	svc, store, notifier := newTestGraph(user(1, "alice"), privateUser(2, "bob"))

	state, err := svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.RelationRequested, state)

	following, _ := store.HasEdge(context.Background(), 1, 2)
	assert.False(t, following)
	requested, _ := store.HasRequest(context.Background(), 2, 1)
	assert.True(t, requested)

	bobFollowers, _ := store.counts(2)
	assert.Equal(t, 0, bobFollowers)

	assert.Equal(t, []string{models.NotificationFollowRequest}, notifier.kinds())

	// Re-requesting neither duplicates nor re-notifies.
	_, err = svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Len(t, notifier.kinds(), 1)
}

func TestFollowAfterPrivacyToggleClearsStaleRequest(t *testing.T) {
	svc, store, _ := newTestGraph(user(1, "alice"), privateUser(2, "bob"))

	state, err := svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Equal(t, models.RelationRequested, state)

	// Bob goes public while alice's request is still pending.
	store.mu.Lock()
	store.users[2].IsPrivate = false
	store.mu.Unlock()

	state, err = svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.RelationFollowing, state)

	// The edge settles the request; they never coexist.
	requested, _ := store.HasRequest(context.Background(), 2, 1)
	assert.False(t, requested)
	following, _ := store.HasEdge(context.Background(), 1, 2)
	assert.True(t, following)

	bobFollowers, _ := store.counts(2)
	assert.Equal(t, 1, bobFollowers)

	// Unfollow tears the edge down even though a request existed earlier.
	require.NoError(t, svc.Unfollow(context.Background(), 1, 2))
	following, _ = store.HasEdge(context.Background(), 1, 2)
	assert.False(t, following)
	bobFollowers, _ = store.counts(2)
	assert.Equal(t, 0, bobFollowers)

	state, _ = svc.Relation(context.Background(), 1, 2)
	assert.Equal(t, models.RelationNone, state)
}

func TestUnfollowRemovesEdgeDespiteStaleRequest(t *testing.T) {
	svc, store, _ := newTestGraph(user(1, "alice"), user(2, "bob"))

	_, err := svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)

	// Drift: a request row lingering beside the approved edge must not
	// shield the edge from unfollow.
	store.mu.Lock()
	store.requests[pairKey{2, 1}] = models.FollowRequest{OwnerID: 2, RequesterID: 1}
	store.mu.Unlock()

	require.NoError(t, svc.Unfollow(context.Background(), 1, 2))

	following, _ := store.HasEdge(context.Background(), 1, 2)
	assert.False(t, following)
	requested, _ := store.HasRequest(context.Background(), 2, 1)
	assert.False(t, requested)
	bobFollowers, _ := store.counts(2)
	assert.Equal(t, 0, bobFollowers)
}

func TestAcceptFollowRequest(t *testing.T) {
	svc, store, notifier := newTestGraph(user(1, "alice"), privateUser(2, "bob"))

	_, err := svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)

	require.NoError(t, svc.AcceptFollowRequest(context.Background(), 2, 1))

	// Request and edge never coexist.
	requested, _ := store.HasRequest(context.Background(), 2, 1)
	assert.False(t, requested)
	following, _ := store.HasEdge(context.Background(), 1, 2)
	assert.True(t, following)

	bobFollowers, _ := store.counts(2)
	_, aliceFollowing := store.counts(1)
	assert.Equal(t, 1, bobFollowers)
	assert.Equal(t, 1, aliceFollowing)

	assert.Contains(t, notifier.kinds(), models.NotificationAccepted)
}

func TestAcceptMissingRequest(t *testing.T) {
	svc, _, _ := newTestGraph(user(1, "alice"), privateUser(2, "bob"))

	err := svc.AcceptFollowRequest(context.Background(), 2, 1)
	assert.ErrorIs(t, err, repositories.ErrRequestNotFound)
}

func TestDeclineIsIdempotent(t *testing.T) {
	svc, store, _ := newTestGraph(user(1, "alice"), privateUser(2, "bob"))

	_, err := svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)

	require.NoError(t, svc.DeclineFollowRequest(context.Background(), 2, 1))
	requested, _ := store.HasRequest(context.Background(), 2, 1)
	assert.False(t, requested)

	// Declining again succeeds.
	require.NoError(t, svc.DeclineFollowRequest(context.Background(), 2, 1))
}

func TestUnfollowCancelsPendingRequest(t *testing.T) {
	svc, store, _ := newTestGraph(user(1, "alice"), privateUser(2, "bob"))

	_, err := svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)

	require.NoError(t, svc.Unfollow(context.Background(), 1, 2))
	requested, _ := store.HasRequest(context.Background(), 2, 1)
	assert.False(t, requested)

	bobFollowers, _ := store.counts(2)
	assert.Equal(t, 0, bobFollowers)
}

func TestRemoveFollower(t *testing.T) {
	svc, store, _ := newTestGraph(user(1, "alice"), user(2, "bob"))

	_, err := svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveFollower(context.Background(), 2, 1))
	following, _ := store.HasEdge(context.Background(), 1, 2)
	assert.False(t, following)

	bobFollowers, _ := store.counts(2)
	_, aliceFollowing := store.counts(1)
	assert.Equal(t, 0, bobFollowers)
	assert.Equal(t, 0, aliceFollowing)

	// Removing again is a no-op success, and counters stay clamped at zero.
	require.NoError(t, svc.RemoveFollower(context.Background(), 2, 1))
	bobFollowers, _ = store.counts(2)
	assert.Equal(t, 0, bobFollowers)
}

func TestRemoveFollowerSelfRejected(t *testing.T) {
	svc, _, _ := newTestGraph(user(1, "alice"))

	err := svc.RemoveFollower(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrSelfReference)
}

func TestRelationStates(t *testing.T) {
	svc, _, _ := newTestGraph(user(1, "alice"), user(2, "bob"), privateUser(3, "carol"))

	state, err := svc.Relation(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.RelationNone, state)

	_, err = svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)
	state, _ = svc.Relation(context.Background(), 1, 2)
	assert.Equal(t, models.RelationFollowing, state)

	_, err = svc.Follow(context.Background(), 1, 3)
	require.NoError(t, err)
	state, _ = svc.Relation(context.Background(), 1, 3)
	assert.Equal(t, models.RelationRequested, state)
}

func TestMutualFollowers(t *testing.T) {
	users := []*models.User{
		user(1, "u"), user(2, "p"), user(3, "q"), user(4, "r"), user(5, "s"),
	}
	svc, _, _ := newTestGraph(users...)

	// u follows p, q, r
	for _, id := range []uint{2, 3, 4} {
		_, err := svc.Follow(context.Background(), 1, id)
		require.NoError(t, err)
	}
	// q, r, s follow u
	for _, id := range []uint{3, 4, 5} {
		_, err := svc.Follow(context.Background(), id, 1)
		require.NoError(t, err)
	}

	mutuals, err := svc.MutualFollowers(context.Background(), 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{3, 4}, mutuals)
}

func TestConcurrentFollowIncrementsOnce(t *testing.T) {
	svc, store, notifier := newTestGraph(user(1, "alice"), user(2, "bob"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Follow(context.Background(), 1, 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	edges, _ := store.GetFollowers(context.Background(), 2)
	assert.Len(t, edges, 1)

	bobFollowers, _ := store.counts(2)
	assert.Equal(t, 1, bobFollowers)

	assert.Len(t, notifier.kinds(), 1)
}

func TestReconcileCountsRepairsDrift(t *testing.T) {
	svc, store, _ := newTestGraph(user(1, "alice"), user(2, "bob"))

	_, err := svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)

	// Simulate drift.
	store.mu.Lock()
	store.users[2].FollowerCount = 40
	store.mu.Unlock()

	require.NoError(t, store.ReconcileCounts(context.Background(), 2))
	bobFollowers, _ := store.counts(2)
	assert.Equal(t, 1, bobFollowers)
}

func TestWatchCountsStreamsChanges(t *testing.T) {
	svc, _, _ := newTestGraph(user(1, "alice"), user(2, "bob"))
	svc.pollInterval = 5 * time.Millisecond

	sub, err := svc.WatchCounts(context.Background(), 2)
	require.NoError(t, err)
	defer sub.Stop()

	initial := <-sub.C
	assert.Equal(t, Counts{}, initial)

	_, err = svc.Follow(context.Background(), 1, 2)
	require.NoError(t, err)

	select {
	case next := <-sub.C:
		assert.Equal(t, Counts{Followers: 1}, next)
	case <-time.After(time.Second):
		t.Fatal("no count update received")
	}
}

func TestWatchCountsStopClosesChannel(t *testing.T) {
	svc, _, _ := newTestGraph(user(1, "alice"))
	svc.pollInterval = 5 * time.Millisecond

	sub, err := svc.WatchCounts(context.Background(), 1)
	require.NoError(t, err)
	<-sub.C
	sub.Stop()

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Stop")
	}
}
