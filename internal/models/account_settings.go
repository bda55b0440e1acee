package models

import "time"

// Account tiers.
const (
	// TierFree is the default tier assigned on lazy provisioning.
	TierFree = "free"
	// TierPaid unlocks spam detection and captcha verification.
	TierPaid = "paid"
)

// AccountSettings holds the API key, tier and usage counters for a user.
type AccountSettings struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"`    // Associated user record.

	APIKey string `gorm:"type:text;not null;uniqueIndex"`  // Full API key string.
	Tier   string `gorm:"type:text;not null;default:free"` // Account tier name.

	APICallsThisPeriod int64  `gorm:"not null;default:0"`       // Accepted calls in the current period.
	MaxAPICalls        int64  `gorm:"not null;default:100"`     // Period call ceiling.
	IsRateLimited      bool   `gorm:"not null;default:false"`   // Manual rate-limit override.
	PeriodMonth        string `gorm:"type:varchar(7);not null"` // Accounting period marker (UTC month, 2006-01).

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
