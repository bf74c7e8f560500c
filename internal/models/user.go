package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// User is a profile row in PostgreSQL. FollowerCount and FollowingCount are
// derived from the follow_edges table and are only ever written inside the
// same transaction as the edges they summarize.
type User struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Username       string    `json:"username" gorm:"uniqueIndex"`
	DisplayName    string    `json:"display_name"`
	Email          string    `json:"email" gorm:"uniqueIndex"`
	Avatar         string    `json:"avatar,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	IsPrivate      bool      `json:"is_private" gorm:"default:false"`
	Password       string    `json:"-"`
	FirebaseUID    string    `json:"firebase_uid,omitempty" gorm:"index"`
	FollowerCount  int       `json:"follower_count" gorm:"default:0"`
	FollowingCount int       `json:"following_count" gorm:"default:0"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserCompact is the denormalized profile shape embedded in API responses.
type UserCompact struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
}

// ToCompact returns the embeddable snapshot of the user's public fields.
func (u *User) ToCompact() UserCompact {
	return UserCompact{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
	}
}

type SignupRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=30"`
	DisplayName string `json:"display_name" validate:"required,min=1,max=50"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty" validate:"omitempty,min=1,max=50"`
	Avatar      *string `json:"avatar,omitempty"`
	Bio         *string `json:"bio,omitempty" validate:"omitempty,max=160"`
	IsPrivate   *bool   `json:"is_private,omitempty"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
