package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"agromind/internal/constants"
	"agromind/internal/errors"
	"agromind/internal/models"
	"agromind/internal/privacy"
	"agromind/internal/validation"

	"github.com/sirupsen/logrus"
)

// UserStore persists users keyed by phone number
type UserStore interface {
	GetOrCreateUserByPhone(ctx context.Context, phone, name, lang string) (*models.User, bool, error)
}

// AuthService implements the demo one-time-code login. Every phone number
// shares the configured code and no SMS is sent.
type AuthService struct {
	store   UserStore
	otpCode string
	logger  *logrus.Logger
}

func NewAuthService(store UserStore, otpCode string, logger *logrus.Logger) *AuthService {
	if otpCode == "" {
		otpCode = constants.DefaultOTPCode
	}
	return &AuthService{store: store, otpCode: otpCode, logger: logger}
}

// SendOTP returns the notice shown to the user after requesting a code
func (s *AuthService) SendOTP(ctx context.Context, phone string) (string, error) {
	if err := validation.ValidatePhoneNumber(phone); err != nil {
		return "", err
	}

	s.logger.WithField("phone", privacy.MaskPhoneNumber(phone)).Info("OTP requested")
	return fmt.Sprintf("Use the OTP sent to your phone (demo: %s)", s.otpCode), nil
}

// VerifyOTP checks the code and returns the user, creating it on first login
// with the given name (default "Farmer") and language "en".
func (s *AuthService) VerifyOTP(ctx context.Context, phone, name, otp string) (*models.User, error) {
	if err := validation.ValidatePhoneNumber(phone); err != nil {
		return nil, err
	}
	if err := validation.ValidateOTP(otp); err != nil {
		return nil, errors.NewAuthError("Invalid OTP")
	}
	if subtle.ConstantTimeCompare([]byte(otp), []byte(s.otpCode)) != 1 {
		s.logger.WithField("phone", privacy.MaskPhoneNumber(phone)).Warn("Invalid OTP submitted")
		return nil, errors.NewAuthError("Invalid OTP")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = constants.DefaultUserName
	}
	if err := validation.ValidateAuthorName(name); err != nil {
		return nil, err
	}

	user, created, err := s.store.GetOrCreateUserByPhone(ctx, phone, name, constants.DefaultMessageLanguage)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldUserID: privacy.MaskUserID(user.ID),
		"created":      created,
	}).Info("User signed in")

	return user, nil
}
