// Package delivery sends freshly issued one-time codes to a student over one
// or more channels.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/studymate/internal/model"
	"github.com/quocanhngo/studymate/pkg/mailer"
	"github.com/quocanhngo/studymate/pkg/notification"
)

var ErrNoChannels = errors.New("no delivery channel configured")

// Message is a code ready to hand to a student
type Message struct {
	User      *model.User
	Purpose   model.OTPPurpose
	Code      string
	ExpiresIn time.Duration
}

// Channel delivers a code out of band
type Channel interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// OTPMailer is the subset of pkg/mailer used here
type OTPMailer interface {
	SendOTP(kind mailer.Template, toEmail, name, code string, expiresIn time.Duration) error
}

// MailChannel sends the code by SMTP
type MailChannel struct {
	mailer OTPMailer
}

func NewMailChannel(m OTPMailer) *MailChannel {
	return &MailChannel{mailer: m}
}

func (c *MailChannel) Name() string { return "email" }

func (c *MailChannel) Deliver(ctx context.Context, msg Message) error {
	kind := mailer.TemplateVerifyEmail
	if msg.Purpose == model.OTPPurposePasswordReset {
		kind = mailer.TemplatePasswordReset
	}
	return c.mailer.SendOTP(kind, msg.User.Email, msg.User.Name, msg.Code, msg.ExpiresIn)
}

// Pusher is the subset of pkg/notification used here
type Pusher interface {
	SendToUser(ctx context.Context, userID uuid.UUID, p notification.Push) error
}

// PushChannel sends the code to the student's registered devices
type PushChannel struct {
	pusher Pusher
}

func NewPushChannel(p Pusher) *PushChannel {
	return &PushChannel{pusher: p}
}

func (c *PushChannel) Name() string { return "push" }

func (c *PushChannel) Deliver(ctx context.Context, msg Message) error {
	if !msg.User.IsNotificationEnabled {
		return errors.New("notifications disabled by user")
	}

	title := "Verify your email"
	if msg.Purpose == model.OTPPurposePasswordReset {
		title = "Reset your password"
	}
	minutes := int(msg.ExpiresIn.Round(time.Minute) / time.Minute)

	return c.pusher.SendToUser(ctx, msg.User.ID, notification.Push{
		Title: title,
		Body:  fmt.Sprintf("Your StudyMate code is %s. It expires in %d minutes.", msg.Code, minutes),
		Data: map[string]string{
			"type":    "otp",
			"purpose": string(msg.Purpose),
		},
	})
}

// LogChannel prints the code instead of sending it. Development only.
type LogChannel struct {
	logger *log.Logger
}

func NewLogChannel(logger *log.Logger) *LogChannel {
	if logger == nil {
		logger = log.Default()
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Deliver(_ context.Context, msg Message) error {
	c.logger.Printf("📧 [dev] OTP for %s (%s): %s, expires in %s", msg.User.Email, msg.Purpose, msg.Code, msg.ExpiresIn)
	return nil
}

// Fanout delivers through every channel and succeeds when at least one did
type Fanout struct {
	channels []Channel
}

func NewFanout(channels ...Channel) *Fanout {
	return &Fanout{channels: channels}
}

func (f *Fanout) Name() string {
	names := make([]string, 0, len(f.channels))
	for _, c := range f.channels {
		names = append(names, c.Name())
	}
	return strings.Join(names, ",")
}

func (f *Fanout) Deliver(ctx context.Context, msg Message) error {
	if len(f.channels) == 0 {
		return ErrNoChannels
	}

	var errs []error
	delivered := 0
	for _, c := range f.channels {
		if err := c.Deliver(ctx, msg); err != nil {
			log.Printf("⚠️  OTP delivery via %s failed for %s: %v", c.Name(), msg.User.Email, err)
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return errors.Join(errs...)
	}
	return nil
}

// FromNames builds a Fanout from a comma separated channel list such as
// "email,push". Channels whose backend is nil are skipped with a warning.
func FromNames(names string, m OTPMailer, p Pusher) (*Fanout, error) {
	var channels []Channel
	seen := map[string]bool{}

	for _, name := range strings.Split(names, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "email":
			if m == nil {
				log.Println("⚠️  email delivery requested but SMTP is not configured")
				continue
			}
			channels = append(channels, NewMailChannel(m))
		case "push":
			if p == nil {
				log.Println("⚠️  push delivery requested but FCM is not configured")
				continue
			}
			channels = append(channels, NewPushChannel(p))
		case "log":
			channels = append(channels, NewLogChannel(nil))
		default:
			return nil, fmt.Errorf("unknown delivery channel %q", name)
		}
	}

	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	return NewFanout(channels...), nil
}
