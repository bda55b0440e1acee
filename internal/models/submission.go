package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission is one stored form entry plus its evolving moderation verdict.
//
// The moderation columns are pointers: nil means the corresponding stage has
// not run yet. Blocked=true always comes with a BlockReason.
type Submission struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"` // Associated user record.

	FormData  datatypes.JSON `gorm:"type:jsonb;not null"` // Flat field map as submitted.
	IPAddress string         `gorm:"type:text;not null"`  // Source address of the submission.

	Blocked              *bool   `gorm:"index"`     // nil until a moderation stage decides.
	BlockReason          *string `gorm:"type:text"` // Reason recorded when Blocked flips to true.
	AbuseConfidenceScore *int    // Reputation oracle score 0-100.
	IsLLMFlaggedSpam     *bool   // Classifier verdict.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
