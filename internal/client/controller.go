package client

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"agromind/internal/constants"
	"agromind/internal/errors"
	"agromind/internal/metrics"
	"agromind/internal/models"
	"agromind/internal/service"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// MessageAPI is the subset of the store the controller needs
type MessageAPI interface {
	CreateMessage(ctx context.Context, groupID string, draft models.MessageDraft, attachment *Attachment) (*models.Message, error)
	ListMessages(ctx context.Context, groupID string, limit int) ([]*models.Message, error)
}

// Outbox persists sends that could not reach the store
type Outbox interface {
	Enqueue(item models.QueuedOutboundMessage) (string, error)
	Keys() ([]string, error)
	Get(localKey string) (*models.QueuedOutboundMessage, error)
	Remove(localKey string) error
}

// Live is the real-time channel
type Live interface {
	Join(ctx context.Context, groupID string) error
	Events() <-chan models.Event
	Restored() <-chan struct{}
}

// RenderFunc receives the full message list of the active group after every
// fetch
type RenderFunc func(groupID string, messages []*models.Message)

// SendResult tells the caller whether a message was stored or queued
type SendResult struct {
	Message *models.Message
	Queued  bool
	Notice  string
}

// DrainReport summarizes one pass over the outbox
type DrainReport struct {
	Attempted int
	Sent      int
	Failed    int
}

// Controller drives one chat client: the active group, sending with offline
// fallback, refreshing on live events and draining the outbox.
type Controller struct {
	api    MessageAPI
	outbox Outbox
	live   Live
	render RenderFunc
	logger *logrus.Logger
	errLog *errors.Logger

	mu          sync.Mutex
	activeGroup string

	drains singleflight.Group
}

// NewController wires a controller. live may be nil for a client without a
// real-time channel; render may be nil when nothing is displayed.
func NewController(api MessageAPI, outbox Outbox, live Live, render RenderFunc, logger *logrus.Logger) *Controller {
	if render == nil {
		render = func(string, []*models.Message) {}
	}
	return &Controller{api: api, outbox: outbox, live: live, render: render, logger: logger, errLog: errors.WrapLogger(logger)}
}

// ActiveGroup returns the selected group, or "" when none is selected
func (c *Controller) ActiveGroup() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeGroup
}

// SelectGroup makes groupID active, joins it on the live channel and
// renders its messages. Selecting the same group again just refreshes.
func (c *Controller) SelectGroup(ctx context.Context, groupID string) error {
	c.mu.Lock()
	c.activeGroup = groupID
	c.mu.Unlock()

	if c.live != nil {
		if err := c.live.Join(ctx, groupID); err != nil {
			c.logger.WithError(err).WithField(service.LogFieldGroupID, groupID).Warn("Failed to join group on live channel")
		}
	}

	return c.refresh(ctx)
}

// SendMessage creates the message in the store. If the store cannot be
// reached the draft is queued without its attachment and the result says
// so; the returned error is nil in that case.
func (c *Controller) SendMessage(ctx context.Context, groupID string, draft models.MessageDraft, attachment *Attachment) (*SendResult, error) {
	msg, err := c.api.CreateMessage(ctx, groupID, draft, attachment)
	if err == nil {
		return &SendResult{Message: msg}, nil
	}
	if !errors.IsNetworkFailure(err) {
		return nil, err
	}

	if attachment != nil {
		c.logger.WithFields(logrus.Fields{
			service.LogFieldGroupID:  groupID,
			service.LogFieldFileName: attachment.FileName,
		}).Warn("Store unreachable, attachment dropped from queued message")
	}
	draft.ImageRef = ""

	key, qerr := c.outbox.Enqueue(models.QueuedOutboundMessage{GroupID: groupID, Payload: draft})
	if qerr != nil {
		return nil, qerr
	}
	metrics.IncrementCounter(metrics.ClientQueued, nil, "Messages queued while offline")

	c.logger.WithFields(logrus.Fields{
		service.LogFieldGroupID:  groupID,
		service.LogFieldLocalKey: key,
	}).WithError(err).Info("Store unreachable, message queued")

	return &SendResult{Queued: true, Notice: constants.QueueOfflineNotice}, nil
}

// OnFanoutEvent refreshes when the event belongs to the active group
func (c *Controller) OnFanoutEvent(ctx context.Context, ev models.Event) error {
	groupID := ev.GroupID
	if ev.Message != nil && ev.Message.GroupID != "" {
		groupID = ev.Message.GroupID
	}
	if groupID == "" || groupID != c.ActiveGroup() {
		return nil
	}
	return c.refresh(ctx)
}

// OnConnectivityRestored drains the outbox and refreshes
func (c *Controller) OnConnectivityRestored(ctx context.Context) error {
	return c.Sync(ctx)
}

// Sync drains the outbox and refreshes the active group
func (c *Controller) Sync(ctx context.Context) error {
	if _, err := c.Drain(ctx); err != nil {
		return err
	}
	return c.refresh(ctx)
}

// Drain resends every queued message in enqueue order. Sent items are
// removed, failed ones stay for the next pass; per-item failures are logged
// and not returned. Overlapping calls share a single pass, which runs
// detached from any one caller's cancellation and is bounded by
// DefaultDrainTimeoutSec. A caller whose ctx ends stops waiting; the pass
// carries on for the others.
func (c *Controller) Drain(ctx context.Context) (DrainReport, error) {
	results := c.drains.DoChan("drain", func() (interface{}, error) {
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultDrainTimeoutSec*time.Second)
		defer cancel()
		return c.drain(passCtx)
	})

	select {
	case <-ctx.Done():
		return DrainReport{}, ctx.Err()
	case res := <-results:
		if res.Shared {
			c.logger.Debug("Joined drain already in progress")
		}
		report, _ := res.Val.(DrainReport)
		return report, res.Err
	}
}

func (c *Controller) drain(ctx context.Context) (DrainReport, error) {
	var report DrainReport

	keys, err := c.outbox.Keys()
	if err != nil {
		return report, err
	}
	if len(keys) == 0 {
		return report, nil
	}

	start := time.Now()
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		item, err := c.outbox.Get(key)
		if stderrors.Is(err, ErrQueueItemNotFound) {
			continue
		}
		report.Attempted++
		if err != nil {
			report.Failed++
			c.logger.WithError(err).WithField(service.LogFieldLocalKey, key).Warn("Failed to read queued message")
			continue
		}

		if _, err := c.api.CreateMessage(ctx, item.GroupID, item.Payload, nil); err != nil {
			report.Failed++
			metrics.IncrementCounter(metrics.ClientDrainFailures, nil, "Queued messages that failed to resend")
			c.errLog.LogRetryableError(err, "Queued message not sent, keeping it", logrus.Fields{
				service.LogFieldLocalKey: key,
				service.LogFieldGroupID:  item.GroupID,
			})
			continue
		}

		if err := c.outbox.Remove(key); err != nil {
			c.logger.WithError(err).WithField(service.LogFieldLocalKey, key).Error("Sent queued message but failed to remove it")
		}
		report.Sent++
		metrics.IncrementCounter(metrics.ClientDrained, nil, "Queued messages resent")
	}

	c.logger.WithFields(logrus.Fields{
		"attempted":              report.Attempted,
		"sent":                   report.Sent,
		"failed":                 report.Failed,
		service.LogFieldDuration: time.Since(start).Milliseconds(),
	}).Info("Outbox drained")

	return report, nil
}

// Run consumes live events and connectivity signals until ctx ends.
// Handler errors are logged.
func (c *Controller) Run(ctx context.Context) error {
	if c.live == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.live.Events():
			if err := c.OnFanoutEvent(ctx, ev); err != nil {
				c.logger.WithError(err).Warn("Failed to refresh after live event")
			}
		case <-c.live.Restored():
			if err := c.OnConnectivityRestored(ctx); err != nil {
				c.logger.WithError(err).Warn("Failed to sync after reconnect")
			}
		}
	}
}

func (c *Controller) refresh(ctx context.Context) error {
	groupID := c.ActiveGroup()
	if groupID == "" {
		return nil
	}

	messages, err := c.api.ListMessages(ctx, groupID, constants.DefaultMessageListLimit)
	if err != nil {
		return err
	}

	// a newer selection wins over a late fetch
	if c.ActiveGroup() != groupID {
		return nil
	}
	c.render(groupID, messages)
	return nil
}
