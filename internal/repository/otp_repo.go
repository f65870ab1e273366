package repository

import (
	"context"
	"errors"
	"time"

	"github.com/quocanhngo/studymate/internal/model"
	"github.com/quocanhngo/studymate/internal/otp"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OTPRepository stores OTP records in PostgreSQL
type OTPRepository struct {
	db *gorm.DB
}

func NewOTPRepository(db *gorm.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// Get finds the record for a key, expired or not
func (r *OTPRepository) Get(ctx context.Context, key string) (*model.OTPRecord, error) {
	var rec model.OTPRecord
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, otp.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put upserts the record for a key (a reissue overwrites code, expiry and attempts)
func (r *OTPRepository) Put(ctx context.Context, key string, record *model.OTPRecord) error {
	rec := *record
	rec.Key = key
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"purpose", "recipient", "code_hash", "issued_at", "expires_at", "attempts"}),
	}).Create(&rec).Error
}

// Delete removes the record for a key
func (r *OTPRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("key = ?", key).Delete(&model.OTPRecord{}).Error
}

// DeleteExpired removes all records that expired before the given time (housekeeping)
func (r *OTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&model.OTPRecord{})
	return res.RowsAffected, res.Error
}
