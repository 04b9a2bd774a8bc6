package service

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"

	"agromind/internal/errors"
	"agromind/internal/models"
	"agromind/internal/validation"

	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
)

const qrCodeSize = 256

// GroupStore persists groups
type GroupStore interface {
	CreateGroup(ctx context.Context, name, description string) (*models.Group, error)
	ListGroups(ctx context.Context) ([]*models.Group, error)
}

// GroupService manages groups and their invite links
type GroupService struct {
	store   GroupStore
	baseURL string
	logger  *logrus.Logger
}

func NewGroupService(store GroupStore, publicBaseURL string, logger *logrus.Logger) *GroupService {
	return &GroupService{
		store:   store,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:  logger,
	}
}

func (s *GroupService) CreateGroup(ctx context.Context, name, description string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if err := validation.ValidateGroupName(name); err != nil {
		return nil, err
	}
	if err := validation.ValidateGroupDescription(description); err != nil {
		return nil, err
	}

	group, err := s.store.CreateGroup(ctx, name, description)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldGroupID: group.ID,
		"name":          group.Name,
	}).Info("Group created")

	return group, nil
}

// ListGroups returns all groups, newest first
func (s *GroupService) ListGroups(ctx context.Context) ([]*models.Group, error) {
	return s.store.ListGroups(ctx)
}

// InviteLink returns the join link for a group. The group is not looked up.
func (s *GroupService) InviteLink(groupID string) (*models.GroupInvite, error) {
	if err := validation.ValidateGroupID(groupID); err != nil {
		return nil, err
	}
	return &models.GroupInvite{Link: s.baseURL + "/?join=" + url.QueryEscape(groupID)}, nil
}

// InviteQRCode renders the invite link as a PNG data URL
func (s *GroupService) InviteQRCode(groupID string) (*models.GroupQRCode, error) {
	invite, err := s.InviteLink(groupID)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(invite.Link, qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to render invite QR code")
	}

	return &models.GroupQRCode{QR: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)}, nil
}
