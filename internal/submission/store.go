package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/formsentry/formsentry/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrStoreFailed means the submission was not accepted; callers must not
// proceed to moderation.
var ErrStoreFailed = errors.New("submission: store failed")

// Store persists submissions and applies the partial updates written by the
// moderation stages.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a submission Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create records a raw submission with its moderation fields unset and
// returns the generated identifier.
func (s *Store) Create(ctx context.Context, userID uint64, form map[string]any, ip string) (uint64, error) {
	payload, errMarshal := json.Marshal(form)
	if errMarshal != nil {
		log.WithError(errMarshal).Error("submission: encode form data failed")
		return 0, ErrStoreFailed
	}

	row := models.Submission{
		UserID:    userID,
		FormData:  datatypes.JSON(payload),
		IPAddress: ip,
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).Errorf("submission: insert failed for user %d", userID)
		return 0, ErrStoreFailed
	}
	if row.ID == 0 {
		return 0, ErrStoreFailed
	}
	return row.ID, nil
}

// Update merges the given fields into the submission row. Unmentioned
// columns are left untouched, so the two moderation stages never clobber
// each other's writes.
func (s *Store) Update(ctx context.Context, id uint64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.Submission{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("submission: update %d: %w", id, res.Error)
	}
	return nil
}

// Get loads a submission by id.
func (s *Store) Get(ctx context.Context, id uint64) (*models.Submission, error) {
	var row models.Submission
	if errFind := s.db.WithContext(ctx).First(&row, id).Error; errFind != nil {
		return nil, fmt.Errorf("submission: load %d: %w", id, errFind)
	}
	return &row, nil
}

// Delete removes one submission. Reserved for explicit operator action.
func (s *Store) Delete(ctx context.Context, id uint64) error {
	if errDelete := s.db.WithContext(ctx).Delete(&models.Submission{}, id).Error; errDelete != nil {
		return fmt.Errorf("submission: delete %d: %w", id, errDelete)
	}
	return nil
}

// DeleteMany removes a batch of submissions by id.
func (s *Store) DeleteMany(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	if errDelete := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Submission{}).Error; errDelete != nil {
		return fmt.Errorf("submission: delete batch: %w", errDelete)
	}
	return nil
}
