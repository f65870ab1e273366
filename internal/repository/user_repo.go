package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/studymate/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository handles database operations for student accounts
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByID finds a user by UUID
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail finds a user by (lower-cased) email
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyEmail marks the user's email as verified
func (r *UserRepository) VerifyEmail(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND email_verified_at IS NULL", userID).
		Update("email_verified_at", time.Now()).Error
}

// UpdatePassword replaces the stored password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("password", hashedPassword).Error
}

// UpdateLastLogin stamps a successful sign-in
func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("last_login_at", time.Now()).Error
}

// UpdateProfile updates name, avatar and notification preference; empty values are skipped
func (r *UserRepository) UpdateProfile(ctx context.Context, userID uuid.UUID, name, avatar string, notifEnabled *bool) error {
	updates := map[string]interface{}{}
	if name != "" {
		updates["name"] = name
	}
	if avatar != "" {
		updates["avatar"] = avatar
	}
	if notifEnabled != nil {
		updates["is_notification_enabled"] = *notifEnabled
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error
}

// AddDevice adds or refreshes a push token
func (r *UserRepository) AddDevice(ctx context.Context, userID uuid.UUID, token, platform string) error {
	device := model.UserDevice{
		UserID:       userID,
		FCMToken:     token,
		Platform:     platform,
		LastActiveAt: time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "fcm_token"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_active_at": time.Now(),
			"platform":       platform,
		}),
	}).Create(&device).Error
}

// GetUserDevices lists all push targets for a user
func (r *UserRepository) GetUserDevices(ctx context.Context, userID uuid.UUID) ([]model.UserDevice, error) {
	var devices []model.UserDevice
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&devices).Error
	return devices, err
}

// RemoveDevices drops push tokens FCM reported as unregistered
func (r *UserRepository) RemoveDevices(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("fcm_token IN ?", tokens).Delete(&model.UserDevice{}).Error
}

// GetOrCreateGoogleUser links a Google identity to an existing account by
// email, or creates a new verified account
func (r *UserRepository) GetOrCreateGoogleUser(ctx context.Context, info model.GoogleUserInfo) (*model.User, error) {
	db := r.db.WithContext(ctx)

	var user model.User
	if err := db.Where("email = ?", info.Email).First(&user).Error; err == nil {
		updates := map[string]interface{}{}

		if user.GoogleID == nil || *user.GoogleID != info.GoogleID {
			id := info.GoogleID
			updates["google_id"] = &id
		}
		// Google vouches for the address, which settles a pending signup
		if !user.IsEmailVerified() && info.Verified {
			now := time.Now()
			updates["email_verified_at"] = &now
		}
		if user.Avatar == "" && info.Picture != "" {
			updates["avatar"] = info.Picture
		}

		if len(updates) > 0 {
			if err := db.Model(&user).Updates(updates).Error; err != nil {
				return nil, err
			}
		}
		return &user, nil
	}

	googleID := info.GoogleID
	var verifiedAt *time.Time
	if info.Verified {
		now := time.Now()
		verifiedAt = &now
	}

	newUser := model.User{
		Email:                 info.Email,
		Name:                  info.Name,
		Avatar:                info.Picture,
		GoogleID:              &googleID,
		AuthProvider:          model.AuthProviderGoogle,
		EmailVerifiedAt:       verifiedAt,
		IsNotificationEnabled: true,
	}
	if err := db.Create(&newUser).Error; err != nil {
		return nil, err
	}
	return &newUser, nil
}

// UpdatePendingRegistration replaces the name and password of an account that
// has not confirmed its email yet
func (r *UserRepository) UpdatePendingRegistration(ctx context.Context, userID uuid.UUID, name, hashedPassword string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND email_verified_at IS NULL", userID).
		Updates(map[string]interface{}{
			"name":     name,
			"password": hashedPassword,
		}).Error
}
