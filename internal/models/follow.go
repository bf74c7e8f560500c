package models

import "time"

// EdgeKind marks which of a user's two edge collections a row belongs to.
type EdgeKind string

const (
	// EdgeFollowing lives in the follower's collection: owner follows peer.
	EdgeFollowing EdgeKind = "following"
	// EdgeFollower lives in the followee's collection: peer follows owner.
	EdgeFollower EdgeKind = "follower"
)

// FollowEdge materializes one side of a follow relationship. Every
// relationship is stored redundantly as two rows (a "following" row under
// the follower and a "follower" row under the followee), always created and
// deleted in the same transaction. The Peer* fields are a snapshot of the
// peer's profile at edge-creation time and are intentionally never
// refreshed afterwards.
type FollowEdge struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	OwnerID         uint      `json:"owner_id" gorm:"index;uniqueIndex:idx_owner_peer_kind"`
	PeerID          uint      `json:"peer_id" gorm:"uniqueIndex:idx_owner_peer_kind"`
	Kind            EdgeKind  `json:"kind" gorm:"type:varchar(10);uniqueIndex:idx_owner_peer_kind"`
	PeerUsername    string    `json:"peer_username"`
	PeerDisplayName string    `json:"peer_display_name"`
	PeerAvatar      string    `json:"peer_avatar,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// FollowRequest is a pending follow attempt against a private account,
// keyed by (owner, requester). A request and an approved edge for the same
// pair never coexist: both acceptance and a direct follow delete the
// request in the same transaction that creates the edge pair.
type FollowRequest struct {
	ID                   uint      `json:"id" gorm:"primaryKey"`
	OwnerID              uint      `json:"owner_id" gorm:"index;uniqueIndex:idx_owner_requester"`
	RequesterID          uint      `json:"requester_id" gorm:"uniqueIndex:idx_owner_requester"`
	RequesterUsername    string    `json:"requester_username"`
	RequesterDisplayName string    `json:"requester_display_name"`
	RequesterAvatar      string    `json:"requester_avatar,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// RelationState is the explicit per-pair state derived from which rows
// exist for (follower, target).
type RelationState string

const (
	RelationNone      RelationState = "none"
	RelationRequested RelationState = "requested"
	RelationFollowing RelationState = "following"
)
