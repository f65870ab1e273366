package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/quocanhngo/studymate/internal/model"
	"google.golang.org/api/idtoken"
)

// GoogleVerifier checks a Google ID token and returns the identity it carries
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*model.GoogleUserInfo, error)
}

type googleVerifier struct {
	clientID string
	validate func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// NewGoogleVerifier validates tokens issued for clientID
func NewGoogleVerifier(clientID string) GoogleVerifier {
	return &googleVerifier{clientID: clientID, validate: idtoken.Validate}
}

func (v *googleVerifier) Verify(ctx context.Context, token string) (*model.GoogleUserInfo, error) {
	payload, err := v.validate(ctx, token, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid google token: %w", err)
	}
	return userInfoFromPayload(payload)
}

func userInfoFromPayload(payload *idtoken.Payload) (*model.GoogleUserInfo, error) {
	claims := payload.Claims

	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return nil, errors.New("email not found in token")
	}

	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)
	verified, _ := claims["email_verified"].(bool)

	if name == "" {
		name = email
	}

	return &model.GoogleUserInfo{
		GoogleID: payload.Subject,
		Email:    email,
		Name:     name,
		Picture:  picture,
		Verified: verified,
	}, nil
}
