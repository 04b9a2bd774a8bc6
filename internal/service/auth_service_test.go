package service

import (
	"context"
	"testing"

	"agromind/internal/errors"
	"agromind/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAuthService_SendOTP(t *testing.T) {
	svc := NewAuthService(new(mockUserStore), "", testLogger())

	info, err := svc.SendOTP(context.Background(), "+919876543210")
	require.NoError(t, err)
	assert.Equal(t, "Use the OTP sent to your phone (demo: 1234)", info)

	_, err = svc.SendOTP(context.Background(), "abc")
	assert.Error(t, err)
}

func TestAuthService_VerifyOTP(t *testing.T) {
	ctx := context.Background()
	phone := "+919876543210"

	t.Run("wrong code", func(t *testing.T) {
		store := new(mockUserStore)
		svc := NewAuthService(store, "4321", testLogger())

		_, err := svc.VerifyOTP(ctx, phone, "Ravi", "1234")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeAuthentication, errors.GetCode(err))
		assert.Equal(t, "Invalid OTP", errors.GetUserMessage(err))
		store.AssertNotCalled(t, "GetOrCreateUserByPhone", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("defaults the name", func(t *testing.T) {
		store := new(mockUserStore)
		svc := NewAuthService(store, "4321", testLogger())

		user := &models.User{ID: "u1", Name: "Farmer", Phone: phone, Language: "en"}
		store.On("GetOrCreateUserByPhone", mock.Anything, phone, "Farmer", "en").Return(user, true, nil).Once()

		got, err := svc.VerifyOTP(ctx, phone, "", "4321")
		require.NoError(t, err)
		assert.Equal(t, user, got)
		store.AssertExpectations(t)
	})

	t.Run("returns existing user", func(t *testing.T) {
		store := new(mockUserStore)
		svc := NewAuthService(store, "4321", testLogger())

		existing := &models.User{ID: "u1", Name: "Ravi", Phone: phone, Language: "hi"}
		store.On("GetOrCreateUserByPhone", mock.Anything, phone, "Someone", "en").Return(existing, false, nil).Once()

		got, err := svc.VerifyOTP(ctx, phone, "Someone", "4321")
		require.NoError(t, err)
		assert.Equal(t, "Ravi", got.Name)
	})
}
