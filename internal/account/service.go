package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/formsentry/formsentry/internal/models"
	"github.com/formsentry/formsentry/internal/policy"
	"github.com/formsentry/formsentry/internal/security"
	"github.com/formsentry/formsentry/internal/util"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Errors surfaced to the request path.
var (
	// ErrInvalidKeyFormat means the key does not match the canonical shape.
	ErrInvalidKeyFormat = errors.New("account: invalid api key format")
	// ErrRateLimited means the period ceiling is reached or the manual flag is set.
	ErrRateLimited = errors.New("account: rate limit exceeded")
	// ErrNotProvisionable means lazy provisioning failed partway.
	ErrNotProvisionable = errors.New("account: provisioning failed")
)

// periodLayout formats the UTC accounting-period marker.
const periodLayout = "2006-01"

// defaultPassword seeds the credential of lazily provisioned users; they are
// expected to reset it before ever logging in.
const defaultPassword = "defaultpassword123"

// Service authenticates API keys, provisions unknown ones and enforces the
// per-period usage ceiling.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs an account Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Authenticate resolves an API key to its account settings and tier policy.
//
// An unknown but well-formed key self-registers: a fresh user and a newly
// minted key are persisted on the free tier. A known key counts this call
// against its period ceiling before returning.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (*models.AccountSettings, policy.FeaturePolicy, error) {
	if !security.ValidAPIKeyFormat(apiKey) {
		return nil, policy.FeaturePolicy{}, ErrInvalidKeyFormat
	}

	var settings models.AccountSettings
	errFind := s.db.WithContext(ctx).Where("api_key = ?", apiKey).First(&settings).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return s.provision(ctx)
		}
		return nil, policy.FeaturePolicy{}, fmt.Errorf("account: lookup: %w", errFind)
	}

	pol := policy.ForTier(settings.Tier)
	if errCount := s.countCall(ctx, &settings); errCount != nil {
		return nil, pol, errCount
	}
	return &settings, pol, nil
}

// countCall counts one accepted call against the period ceiling.
//
// The guard and the increment are a single conditional UPDATE so that
// concurrent requests on the same key cannot jointly exceed the ceiling.
// When the stored period marker is stale the counter restarts at 1 for the
// current month.
func (s *Service) countCall(ctx context.Context, settings *models.AccountSettings) error {
	period := s.now().UTC().Format(periodLayout)

	res := s.db.WithContext(ctx).Model(&models.AccountSettings{}).
		Where("id = ? AND is_rate_limited = ? AND (period_month <> ? OR api_calls_this_period < max_api_calls)",
			settings.ID, false, period).
		Updates(map[string]any{
			"api_calls_this_period": gorm.Expr(
				"CASE WHEN period_month <> ? THEN 1 ELSE api_calls_this_period + 1 END", period),
			"period_month": period,
		})
	if res.Error != nil {
		return fmt.Errorf("account: count call: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRateLimited
	}

	if errReload := s.db.WithContext(ctx).First(settings, settings.ID).Error; errReload != nil {
		return fmt.Errorf("account: reload: %w", errReload)
	}
	return nil
}

// provision creates a user and account settings for an unrecognized key.
// The caller-supplied key is discarded; a fresh key of the canonical shape
// is minted and returned on the settings record.
func (s *Service) provision(ctx context.Context) (*models.AccountSettings, policy.FeaturePolicy, error) {
	pol := policy.ForTier(models.TierFree)

	hash, errHash := security.HashPassword(defaultPassword)
	if errHash != nil {
		log.WithError(errHash).Error("account: hash default credential failed")
		return nil, pol, ErrNotProvisionable
	}

	user := models.User{
		Email:        fmt.Sprintf("example%s@example.com", uuid.NewString()[:8]),
		PasswordHash: hash,
	}
	settings := models.AccountSettings{
		APIKey:             security.GenerateAPIKey(),
		Tier:               models.TierFree,
		APICallsThisPeriod: 0,
		MaxAPICalls:        pol.MaxCallsPerPeriod,
		IsRateLimited:      false,
		PeriodMonth:        s.now().UTC().Format(periodLayout),
	}

	// One transaction: a user row must never outlive a failed settings insert.
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			return errCreate
		}
		settings.UserID = user.ID
		return tx.Create(&settings).Error
	})
	if errTx != nil {
		log.WithError(errTx).Error("account: provisioning failed")
		return nil, pol, ErrNotProvisionable
	}

	log.Infof("account: provisioned user %d with key %s", user.ID, util.HideAPIKey(settings.APIKey))
	return &settings, pol, nil
}
