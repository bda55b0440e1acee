package models

import "time"

// User is the identity behind an API key. Unknown keys self-register, so
// most users start out with a synthetic email and a default credential.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email        string `gorm:"type:text;not null;uniqueIndex"` // Contact address, synthetic when provisioned lazily.
	PasswordHash string `gorm:"type:text;not null"`             // Bcrypt hash of the initial credential.

	AccountSettings *AccountSettings `gorm:"foreignKey:UserID"` // Usage settings for this user.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
