package repositories

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanvirx/loopgram/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// openTestDB connects to the database named by POSTGRES_TEST_CONN_STR and
// migrates the graph tables. Tests are skipped when the variable is unset
// so the suite stays runnable without infrastructure.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	connStr := os.Getenv("POSTGRES_TEST_CONN_STR")
	if connStr == "" {
		t.Skip("POSTGRES_TEST_CONN_STR not set; skipping integration test")
	}

	db, err := gorm.Open(postgres.Open(connStr), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.FollowEdge{}, &models.FollowRequest{}))

	t.Cleanup(func() {
		db.Exec("DELETE FROM follow_edges")
		db.Exec("DELETE FROM follow_requests")
		db.Exec("DELETE FROM users")
	})
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string, private bool) *models.User {
	t.Helper()
	u := &models.User{
		Username:    username,
		DisplayName: username,
		Email:       fmt.Sprintf("%s-%d@example.com", username, time.Now().UnixNano()),
		IsPrivate:   private,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func TestIntegrationCreateEdgePairAtomicity(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresFollowRepository(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", false)
	bob := seedUser(t, db, "bob", false)

	created, err := repo.CreateEdgePair(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, created)

	// Both rows exist and counters moved by exactly one.
	var edges int64
	db.Model(&models.FollowEdge{}).Count(&edges)
	assert.EqualValues(t, 2, edges)

	var reloadedBob models.User
	require.NoError(t, db.First(&reloadedBob, bob.ID).Error)
	assert.Equal(t, 1, reloadedBob.FollowerCount)

	// A duplicate follow is a no-op: no rows, no counter change.
	created, err = repo.CreateEdgePair(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, db.First(&reloadedBob, bob.ID).Error)
	assert.Equal(t, 1, reloadedBob.FollowerCount)
}

func TestIntegrationDeleteEdgePairClampsCounters(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresFollowRepository(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", false)
	bob := seedUser(t, db, "bob", false)

	created, err := repo.CreateEdgePair(ctx, alice, bob)
	require.NoError(t, err)
	require.True(t, created)

	// Force counter drift below the truth before deleting.
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", bob.ID).
		UpdateColumn("follower_count", 0).Error)

	removed, err := repo.DeleteEdgePair(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	var reloadedBob models.User
	require.NoError(t, db.First(&reloadedBob, bob.ID).Error)
	assert.Equal(t, 0, reloadedBob.FollowerCount)

	// Deleting an absent relationship reports removed=false without error.
	removed, err = repo.DeleteEdgePair(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestIntegrationCreateEdgePairSettlesStaleRequest(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresFollowRepository(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", false)
	bob := seedUser(t, db, "bob", true)

	created, err := repo.CreateRequest(ctx, bob.ID, alice)
	require.NoError(t, err)
	require.True(t, created)

	// Bob turned public; following directly must clear the pending request
	// in the same transaction that creates the edge.
	created, err = repo.CreateEdgePair(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, created)

	has, err := repo.HasRequest(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, has)

	has, err = repo.HasEdge(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestIntegrationDeleteEdgePairPartialDrift(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresFollowRepository(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", false)
	bob := seedUser(t, db, "bob", false)

	created, err := repo.CreateEdgePair(ctx, alice, bob)
	require.NoError(t, err)
	require.True(t, created)

	// Drift: the follower-side row disappears without its counter moving.
	require.NoError(t, db.Where("owner_id = ? AND kind = ?", bob.ID, models.EdgeFollower).
		Delete(&models.FollowEdge{}).Error)

	removed, err := repo.DeleteEdgePair(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	// Only the side whose row was actually deleted moves; bob's stale
	// counter is left for ReconcileCounts rather than double-decremented.
	var reloadedAlice, reloadedBob models.User
	require.NoError(t, db.First(&reloadedAlice, alice.ID).Error)
	require.NoError(t, db.First(&reloadedBob, bob.ID).Error)
	assert.Equal(t, 0, reloadedAlice.FollowingCount)
	assert.Equal(t, 1, reloadedBob.FollowerCount)

	require.NoError(t, repo.ReconcileCounts(ctx, bob.ID))
	require.NoError(t, db.First(&reloadedBob, bob.ID).Error)
	assert.Equal(t, 0, reloadedBob.FollowerCount)
}

func TestIntegrationAcceptRequestFlow(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresFollowRepository(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", false)
	bob := seedUser(t, db, "bob", true)

	created, err := repo.CreateRequest(ctx, bob.ID, alice)
	require.NoError(t, err)
	assert.True(t, created)

	// Duplicate request collapses.
	created, err = repo.CreateRequest(ctx, bob.ID, alice)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, repo.AcceptRequest(ctx, bob, alice))

	has, err := repo.HasRequest(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, has)

	has, err = repo.HasEdge(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, has)

	var reloadedBob models.User
	require.NoError(t, db.First(&reloadedBob, bob.ID).Error)
	assert.Equal(t, 1, reloadedBob.FollowerCount)

	// Accepting again surfaces the missing request.
	err = repo.AcceptRequest(ctx, bob, alice)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestIntegrationReconcileCounts(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresFollowRepository(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", false)
	bob := seedUser(t, db, "bob", false)

	created, err := repo.CreateEdgePair(ctx, alice, bob)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", bob.ID).
		UpdateColumn("follower_count", 40).Error)

	require.NoError(t, repo.ReconcileCounts(ctx, bob.ID))

	var reloadedBob models.User
	require.NoError(t, db.First(&reloadedBob, bob.ID).Error)
	assert.Equal(t, 1, reloadedBob.FollowerCount)
}
