package models

import "time"

// DefaultSignupCredits is the ledger balance granted at registration.
const DefaultSignupCredits = 3

// User represents a registered account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email    string `gorm:"type:text;not null;uniqueIndex"` // Unique login email (case-sensitive).
	Password string `gorm:"type:text;not null"`             // Hashed password.

	IsVerified bool `gorm:"not null;default:false"` // Set once by email verification.
	Credits    int  `gorm:"not null;default:3"`     // Remaining generation credits.

	Tier string `gorm:"type:text"` // Subscription tier (informational).

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
