package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tanvirx/loopgram/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxTxRetries bounds how often a conflicting transaction is re-run before
// the failure is surfaced as ErrTransientStore.
const maxTxRetries = 3

// FollowRepository is the Edge Store plus Counter Ledger. Every mutation
// commits its full write set (both edge rows, both counter deltas, any
// request row) as one transaction: callers never observe an edge on one
// side without the other, or a counter out of step with the edges.
type FollowRepository interface {
	CreateEdgePair(ctx context.Context, follower, target *models.User) (created bool, err error)
	DeleteEdgePair(ctx context.Context, followerID, targetID uint) (removed bool, err error)
	HasEdge(ctx context.Context, followerID, targetID uint) (bool, error)

	CreateRequest(ctx context.Context, owner uint, requester *models.User) (created bool, err error)
	DeleteRequest(ctx context.Context, ownerID, requesterID uint) (deleted bool, err error)
	HasRequest(ctx context.Context, ownerID, requesterID uint) (bool, error)
	AcceptRequest(ctx context.Context, owner, requester *models.User) error
	GetRequests(ctx context.Context, ownerID uint) ([]models.FollowRequest, error)

	GetFollowers(ctx context.Context, ownerID uint) ([]models.FollowEdge, error)
	GetFollowing(ctx context.Context, ownerID uint) ([]models.FollowEdge, error)
	GetFollowerIDs(ctx context.Context, ownerID uint) ([]uint, error)
	GetFollowingIDs(ctx context.Context, ownerID uint) ([]uint, error)

	ReconcileCounts(ctx context.Context, userID uint) error
}

// PostgresFollowRepository implements FollowRepository for PostgreSQL
type PostgresFollowRepository struct {
	db *gorm.DB
}

// NewPostgresFollowRepository creates a new PostgresFollowRepository
func NewPostgresFollowRepository(db *gorm.DB) *PostgresFollowRepository {
	return &PostgresFollowRepository{db: db}
}

// CreateEdgePair inserts the redundant following/follower rows for
// (follower -> target) and bumps both counters, all in one transaction.
// Any pending request for the pair is deleted in the same transaction,
// so a request and an approved edge never coexist.
// The unique index on (owner_id, peer_id, kind) makes racing callers
// collapse to a single insert: only the transaction whose insert actually
// affected a row applies the counter deltas, so created reports whether
// this call established the relationship.
func (r *PostgresFollowRepository) CreateEdgePair(ctx context.Context, follower, target *models.User) (bool, error) {
	created := false
	err := r.withRetry(func() error {
		created = false
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// A pending request never outlives the approved edge: if the
			// target flipped public while a request was waiting, following
			// now settles it.
			if err := tx.Where("owner_id = ? AND requester_id = ?", target.ID, follower.ID).
				Delete(&models.FollowRequest{}).Error; err != nil {
				return err
			}

			followingEdge := models.FollowEdge{
				OwnerID:         follower.ID,
				PeerID:          target.ID,
				Kind:            models.EdgeFollowing,
				PeerUsername:    target.Username,
				PeerDisplayName: target.DisplayName,
				PeerAvatar:      target.Avatar,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&followingEdge)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Already following: no-op, no counter change.
				return nil
			}

			followerEdge := models.FollowEdge{
				OwnerID:         target.ID,
				PeerID:          follower.ID,
				Kind:            models.EdgeFollower,
				PeerUsername:    follower.Username,
				PeerDisplayName: follower.DisplayName,
				PeerAvatar:      follower.Avatar,
			}
			mirror := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&followerEdge)
			if mirror.Error != nil {
				return mirror.Error
			}

			// Each counter moves only with its own row, so drift that left
			// one side behind is not amplified.
			if err := incrementCount(tx, follower.ID, "following_count", 1); err != nil {
				return err
			}
			if mirror.RowsAffected > 0 {
				if err := incrementCount(tx, target.ID, "follower_count", 1); err != nil {
					return err
				}
			}
			created = true
			return nil
		})
	})
	return created, err
}

// DeleteEdgePair removes both rows of (follower -> target) and decrements
// both counters, clamped at zero. Reports false without error when no
// relationship existed.
func (r *PostgresFollowRepository) DeleteEdgePair(ctx context.Context, followerID, targetID uint) (bool, error) {
	removed := false
	err := r.withRetry(func() error {
		removed = false
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Where("owner_id = ? AND peer_id = ? AND kind = ?", followerID, targetID, models.EdgeFollowing).
				Delete(&models.FollowEdge{})
			if res.Error != nil {
				return res.Error
			}
			followingDeleted := res.RowsAffected > 0

			res = tx.Where("owner_id = ? AND peer_id = ? AND kind = ?", targetID, followerID, models.EdgeFollower).
				Delete(&models.FollowEdge{})
			if res.Error != nil {
				return res.Error
			}
			followerDeleted := res.RowsAffected > 0
			if !followingDeleted && !followerDeleted {
				// Nothing to undo.
				return nil
			}

			// Counters move only alongside their own row.
			if followingDeleted {
				if err := incrementCount(tx, followerID, "following_count", -1); err != nil {
					return err
				}
			}
			if followerDeleted {
				if err := incrementCount(tx, targetID, "follower_count", -1); err != nil {
					return err
				}
			}
			removed = true
			return nil
		})
	})
	return removed, err
}

// HasEdge reports whether follower currently follows target.
func (r *PostgresFollowRepository) HasEdge(ctx context.Context, followerID, targetID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.FollowEdge{}).
		Where("owner_id = ? AND peer_id = ? AND kind = ?", followerID, targetID, models.EdgeFollowing).
		Count(&count).Error
	return count > 0, err
}

// CreateRequest writes a pending follow request against a private owner.
// Idempotent: a duplicate request collapses into the existing row and
// reports created=false.
func (r *PostgresFollowRepository) CreateRequest(ctx context.Context, owner uint, requester *models.User) (bool, error) {
	req := models.FollowRequest{
		OwnerID:              owner,
		RequesterID:          requester.ID,
		RequesterUsername:    requester.Username,
		RequesterDisplayName: requester.DisplayName,
		RequesterAvatar:      requester.Avatar,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&req)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteRequest removes a pending request if present.
func (r *PostgresFollowRepository) DeleteRequest(ctx context.Context, ownerID, requesterID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("owner_id = ? AND requester_id = ?", ownerID, requesterID).
		Delete(&models.FollowRequest{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// HasRequest reports whether a pending request (owner, requester) exists.
func (r *PostgresFollowRepository) HasRequest(ctx context.Context, ownerID, requesterID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.FollowRequest{}).
		Where("owner_id = ? AND requester_id = ?", ownerID, requesterID).
		Count(&count).Error
	return count > 0, err
}

// AcceptRequest converts a pending request into an approved edge pair:
// one transaction deletes the request, creates both edge rows and bumps
// both counters. Returns ErrRequestNotFound when no request exists, so a
// request and an approved edge can never coexist.
func (r *PostgresFollowRepository) AcceptRequest(ctx context.Context, owner, requester *models.User) error {
	return r.withRetry(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Where("owner_id = ? AND requester_id = ?", owner.ID, requester.ID).
				Delete(&models.FollowRequest{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrRequestNotFound
			}

			followingEdge := models.FollowEdge{
				OwnerID:         requester.ID,
				PeerID:          owner.ID,
				Kind:            models.EdgeFollowing,
				PeerUsername:    owner.Username,
				PeerDisplayName: owner.DisplayName,
				PeerAvatar:      owner.Avatar,
			}
			created := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&followingEdge)
			if created.Error != nil {
				return created.Error
			}
			if created.RowsAffected == 0 {
				// Edge already existed; the request row was stale drift.
				return nil
			}

			followerEdge := models.FollowEdge{
				OwnerID:         owner.ID,
				PeerID:          requester.ID,
				Kind:            models.EdgeFollower,
				PeerUsername:    requester.Username,
				PeerDisplayName: requester.DisplayName,
				PeerAvatar:      requester.Avatar,
			}
			mirror := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&followerEdge)
			if mirror.Error != nil {
				return mirror.Error
			}

			if err := incrementCount(tx, requester.ID, "following_count", 1); err != nil {
				return err
			}
			if mirror.RowsAffected == 0 {
				return nil
			}
			return incrementCount(tx, owner.ID, "follower_count", 1)
		})
	})
}

// GetRequests retrieves all pending follow requests for an owner, newest first.
func (r *PostgresFollowRepository) GetRequests(ctx context.Context, ownerID uint) ([]models.FollowRequest, error) {
	var requests []models.FollowRequest
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

// GetFollowers returns the owner's followers collection, newest first.
func (r *PostgresFollowRepository) GetFollowers(ctx context.Context, ownerID uint) ([]models.FollowEdge, error) {
	return r.edges(ctx, ownerID, models.EdgeFollower)
}

// GetFollowing returns the owner's following collection, newest first.
func (r *PostgresFollowRepository) GetFollowing(ctx context.Context, ownerID uint) ([]models.FollowEdge, error) {
	return r.edges(ctx, ownerID, models.EdgeFollowing)
}

func (r *PostgresFollowRepository) edges(ctx context.Context, ownerID uint, kind models.EdgeKind) ([]models.FollowEdge, error) {
	var edges []models.FollowEdge
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND kind = ?", ownerID, kind).
		Order("created_at DESC").
		Find(&edges).Error
	return edges, err
}

// GetFollowerIDs returns the ids of everyone following the owner.
func (r *PostgresFollowRepository) GetFollowerIDs(ctx context.Context, ownerID uint) ([]uint, error) {
	return r.edgeIDs(ctx, ownerID, models.EdgeFollower)
}

// GetFollowingIDs returns the ids of everyone the owner follows.
func (r *PostgresFollowRepository) GetFollowingIDs(ctx context.Context, ownerID uint) ([]uint, error) {
	return r.edgeIDs(ctx, ownerID, models.EdgeFollowing)
}

func (r *PostgresFollowRepository) edgeIDs(ctx context.Context, ownerID uint, kind models.EdgeKind) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.FollowEdge{}).
		Where("owner_id = ? AND kind = ?", ownerID, kind).
		Pluck("peer_id", &ids).Error
	return ids, err
}

// ReconcileCounts recomputes both counters from edge cardinality and
// corrects any drift. Runs out-of-band; no mutation path calls it.
func (r *PostgresFollowRepository) ReconcileCounts(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var followers, following int64
		if err := tx.Model(&models.FollowEdge{}).
			Where("owner_id = ? AND kind = ?", userID, models.EdgeFollower).
			Count(&followers).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.FollowEdge{}).
			Where("owner_id = ? AND kind = ?", userID, models.EdgeFollowing).
			Count(&following).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).
			UpdateColumns(map[string]interface{}{
				"follower_count":  followers,
				"following_count": following,
			}).Error
	})
}

// incrementCount applies a counter delta; decrements clamp at zero so
// drift can never push a count negative.
func incrementCount(tx *gorm.DB, userID uint, column string, delta int) error {
	expr := gorm.Expr(column+" + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("GREATEST("+column+" + ?, 0)", delta)
	}
	return tx.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn(column, expr).Error
}

// withRetry re-runs a transaction that failed on a serialization or
// deadlock conflict. The transaction rolled back, so nothing partial
// survives between attempts.
func (r *PostgresFollowRepository) withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = fn()
		if err == nil || !isRetryableTxError(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrTransientStore, err)
}

func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure / deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
