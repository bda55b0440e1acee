package account

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/formsentry/formsentry/internal/models"
	"github.com/formsentry/formsentry/internal/security"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAccountTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:account_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.User{}, &models.AccountSettings{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return db
}

func seedAccount(t *testing.T, db *gorm.DB, tier string, calls, limit int64, rateLimited bool, period string) *models.AccountSettings {
	t.Helper()
	user := models.User{Email: fmt.Sprintf("seed%d@example.com", time.Now().UnixNano()), PasswordHash: "x"}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	settings := models.AccountSettings{
		UserID:             user.ID,
		APIKey:             security.GenerateAPIKey(),
		Tier:               tier,
		APICallsThisPeriod: calls,
		MaxAPICalls:        limit,
		IsRateLimited:      rateLimited,
		PeriodMonth:        period,
	}
	if errCreate := db.Create(&settings).Error; errCreate != nil {
		t.Fatalf("create settings: %v", errCreate)
	}
	return &settings
}

func TestAuthenticateRejectsMalformedKeys(t *testing.T) {
	t.Parallel()

	svc := NewService(setupAccountTestDB(t))
	for _, key := range []string{"", "bad-format", "key_short", "notkey_123e4567-e89b-12d3-a456-426614174000"} {
		if _, _, errAuth := svc.Authenticate(context.Background(), key); errAuth != ErrInvalidKeyFormat {
			t.Fatalf("Authenticate(%q) = %v, want ErrInvalidKeyFormat", key, errAuth)
		}
	}
}

func TestAuthenticateProvisionsUnknownKey(t *testing.T) {
	t.Parallel()

	db := setupAccountTestDB(t)
	svc := NewService(db)

	settings, pol, errAuth := svc.Authenticate(context.Background(), security.GenerateAPIKey())
	if errAuth != nil {
		t.Fatalf("authenticate unknown key: %v", errAuth)
	}
	if settings.Tier != models.TierFree {
		t.Fatalf("provisioned tier = %q, want free", settings.Tier)
	}
	if settings.APICallsThisPeriod != 0 {
		t.Fatalf("provisioned call count = %d, want 0", settings.APICallsThisPeriod)
	}
	if !security.ValidAPIKeyFormat(settings.APIKey) {
		t.Fatalf("minted key %q is not canonical", settings.APIKey)
	}
	if pol.SpamDetection {
		t.Fatalf("free tier must not enable spam detection")
	}

	var users, accounts int64
	db.Model(&models.User{}).Count(&users)
	db.Model(&models.AccountSettings{}).Count(&accounts)
	if users != 1 || accounts != 1 {
		t.Fatalf("expected exactly one user and one account, got %d/%d", users, accounts)
	}
}

func TestAuthenticateCountsCallsUpToTheCeiling(t *testing.T) {
	t.Parallel()

	db := setupAccountTestDB(t)
	svc := NewService(db)
	period := time.Now().UTC().Format(periodLayout)
	seeded := seedAccount(t, db, models.TierFree, 0, 3, false, period)

	for i := int64(1); i <= 3; i++ {
		settings, _, errAuth := svc.Authenticate(context.Background(), seeded.APIKey)
		if errAuth != nil {
			t.Fatalf("call %d: %v", i, errAuth)
		}
		if settings.APICallsThisPeriod != i {
			t.Fatalf("call %d: counter = %d, want %d", i, settings.APICallsThisPeriod, i)
		}
	}

	if _, _, errAuth := svc.Authenticate(context.Background(), seeded.APIKey); errAuth != ErrRateLimited {
		t.Fatalf("call over ceiling = %v, want ErrRateLimited", errAuth)
	}

	var reloaded models.AccountSettings
	if errFind := db.First(&reloaded, seeded.ID).Error; errFind != nil {
		t.Fatalf("reload settings: %v", errFind)
	}
	if reloaded.APICallsThisPeriod != 3 {
		t.Fatalf("counter after denial = %d, want 3", reloaded.APICallsThisPeriod)
	}
}

func TestAuthenticateHonorsManualRateLimitFlag(t *testing.T) {
	t.Parallel()

	db := setupAccountTestDB(t)
	svc := NewService(db)
	period := time.Now().UTC().Format(periodLayout)
	seeded := seedAccount(t, db, models.TierPaid, 0, 100, true, period)

	if _, _, errAuth := svc.Authenticate(context.Background(), seeded.APIKey); errAuth != ErrRateLimited {
		t.Fatalf("manually limited key = %v, want ErrRateLimited", errAuth)
	}
}

func TestAuthenticateResetsCounterOnPeriodRollover(t *testing.T) {
	t.Parallel()

	db := setupAccountTestDB(t)
	svc := NewService(db)
	seeded := seedAccount(t, db, models.TierFree, 100, 100, false, "2020-01")

	settings, _, errAuth := svc.Authenticate(context.Background(), seeded.APIKey)
	if errAuth != nil {
		t.Fatalf("authenticate after rollover: %v", errAuth)
	}
	if settings.APICallsThisPeriod != 1 {
		t.Fatalf("counter after rollover = %d, want 1", settings.APICallsThisPeriod)
	}
	currentPeriod := time.Now().UTC().Format(periodLayout)
	if settings.PeriodMonth != currentPeriod {
		t.Fatalf("period marker = %q, want %q", settings.PeriodMonth, currentPeriod)
	}
}

func TestAuthenticateUsesStoredTierPolicy(t *testing.T) {
	t.Parallel()

	db := setupAccountTestDB(t)
	svc := NewService(db)
	period := time.Now().UTC().Format(periodLayout)
	seeded := seedAccount(t, db, models.TierPaid, 0, 100, false, period)

	_, pol, errAuth := svc.Authenticate(context.Background(), seeded.APIKey)
	if errAuth != nil {
		t.Fatalf("authenticate paid key: %v", errAuth)
	}
	if !pol.SpamDetection || !pol.IPReputationCheck || !pol.CaptchaVerification {
		t.Fatalf("paid tier policy = %+v, want all capabilities enabled", pol)
	}
}
