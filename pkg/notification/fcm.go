package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"github.com/quocanhngo/studymate/internal/model"
	"google.golang.org/api/option"
)

var ErrNoDevices = errors.New("no registered devices")

// DeviceStore lists and prunes a student's push tokens
type DeviceStore interface {
	GetUserDevices(ctx context.Context, userID uuid.UUID) ([]model.UserDevice, error)
	RemoveDevices(ctx context.Context, tokens []string) error
}

// Push is a single notification addressed to every device of a user
type Push struct {
	Title string
	Body  string
	Data  map[string]string
}

type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// NotificationService handles FCM notifications
type NotificationService struct {
	client  multicaster
	devices DeviceStore
}

// NewNotificationService creates a new FCM notification service. It returns
// nil when credentials are missing so callers can treat push as disabled.
func NewNotificationService(ctx context.Context, credentialsFile string, devices DeviceStore) *NotificationService {
	if credentialsFile == "" {
		log.Println("⚠️ Firebase credentials not provided, push notifications disabled")
		return nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		log.Printf("⚠️ Failed to initialize Firebase app: %v (push notifications disabled)", err)
		return nil
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		log.Printf("⚠️ Failed to get messaging client: %v", err)
		return nil
	}

	log.Println("✅ Firebase FCM initialized")
	return &NotificationService{client: client, devices: devices}
}

// SendToUser pushes p to all of the user's devices. Tokens FCM reports as
// unregistered are removed. An error is returned only when nothing was delivered.
func (s *NotificationService) SendToUser(ctx context.Context, userID uuid.UUID, p Push) error {
	if s == nil || s.client == nil {
		return errors.New("push notifications disabled")
	}

	devices, err := s.devices.GetUserDevices(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load devices: %w", err)
	}
	if len(devices) == 0 {
		return ErrNoDevices
	}

	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		tokens = append(tokens, d.FCMToken)
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: p.Title,
			Body:  p.Body,
		},
		Data: p.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ClickAction: "FLUTTER_NOTIFICATION_CLICK",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}

	br, err := s.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending multicast message: %w", err)
	}

	if br.FailureCount > 0 {
		var stale []string
		for idx, resp := range br.Responses {
			if resp.Success {
				continue
			}
			log.Printf("⚠️ FCM failure for token %s: %v", tokens[idx], resp.Error)
			if messaging.IsUnregistered(resp.Error) {
				stale = append(stale, tokens[idx])
			}
		}
		if len(stale) > 0 {
			if err := s.devices.RemoveDevices(ctx, stale); err != nil {
				log.Printf("⚠️ Failed to prune %d stale FCM token(s): %v", len(stale), err)
			}
		}
	}

	if br.SuccessCount == 0 {
		return fmt.Errorf("push failed on all %d device(s)", len(tokens))
	}
	return nil
}
