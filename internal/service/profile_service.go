package service

import (
	"context"
	"errors"
	"log"
	"mime/multipart"

	"github.com/google/uuid"
	"github.com/quocanhngo/studymate/internal/model"
	"github.com/quocanhngo/studymate/pkg/storage"
)

// ==================== Profile ====================

// GetProfile returns the current user's profile
func (s *AuthService) GetProfile(ctx context.Context, userID uuid.UUID) (*model.UserResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	resp := user.ToResponse()
	return &resp, nil
}

// UpdateProfile updates name, notification preference and, when a file is
// given, the avatar. The previous avatar is removed if we stored it.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, req model.UpdateProfileRequest, file multipart.File, header *multipart.FileHeader) (*model.UserResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	if header != nil {
		if s.storage == nil {
			return nil, ErrAvatarDisabled
		}
		result, err := s.storage.UploadAvatar(ctx, userID, file, header)
		if err != nil {
			if errors.Is(err, storage.ErrTooLarge) || errors.Is(err, storage.ErrUnsupportedImage) {
				return nil, err
			}
			log.Printf("❌ Avatar upload failed for %s: %v", user.Email, err)
			return nil, errors.New("failed to upload avatar")
		}
		req.Avatar = result.URL
	}

	if err := s.users.UpdateProfile(ctx, userID, req.Name, req.Avatar, req.IsNotificationEnabled); err != nil {
		return nil, errors.New("failed to update profile")
	}

	if req.Avatar != "" && user.Avatar != "" && s.storage != nil {
		if old, ok := s.storage.ObjectName(user.Avatar); ok {
			if err := s.storage.Delete(ctx, old); err != nil {
				log.Printf("⚠️  Failed to remove old avatar %s: %v", old, err)
			}
		}
	}

	return s.GetProfile(ctx, userID)
}

// RegisterDevice registers a device for push notifications and code delivery
func (s *AuthService) RegisterDevice(ctx context.Context, userID uuid.UUID, req model.RegisterDeviceRequest) error {
	if err := s.users.AddDevice(ctx, userID, req.FCMToken, req.Platform); err != nil {
		return errors.New("failed to register device")
	}
	return nil
}
