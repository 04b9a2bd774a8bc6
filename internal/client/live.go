package client

import (
	"context"
	"sync"
	"time"

	"agromind/internal/constants"
	"agromind/internal/fanout"
	"agromind/internal/models"
	"agromind/internal/retry"
	"agromind/internal/service"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// LiveConnection keeps a WebSocket open to the fanout endpoint. It
// reconnects with exponential backoff, re-joins every group joined so far
// and signals Restored after each successful reconnect.
type LiveConnection struct {
	url     string
	backoff *retry.Backoff
	logger  *logrus.Logger

	events   chan models.Event
	restored chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	groups map[string]struct{}
}

func NewLiveConnection(wsURL string, logger *logrus.Logger) *LiveConnection {
	return &LiveConnection{
		url: wsURL,
		backoff: retry.NewBackoff(retry.BackoffConfig{
			InitialDelay: constants.DefaultReconnectInitialMs * time.Millisecond,
			MaxDelay:     constants.DefaultReconnectMaxSec * time.Second,
			Multiplier:   2,
			Jitter:       true,
		}),
		logger:   logger,
		events:   make(chan models.Event, constants.DefaultClientEventBuffer),
		restored: make(chan struct{}, 1),
		groups:   make(map[string]struct{}),
	}
}

// Events delivers message events for joined groups
func (l *LiveConnection) Events() <-chan models.Event {
	return l.events
}

// Restored fires after the connection comes back following a drop
func (l *LiveConnection) Restored() <-chan struct{} {
	return l.restored
}

// Join subscribes to a group now if connected, and after every reconnect
func (l *LiveConnection) Join(ctx context.Context, groupID string) error {
	l.mu.Lock()
	l.groups[groupID] = struct{}{}
	conn := l.conn
	l.mu.Unlock()

	if conn == nil {
		return nil
	}
	return wsjson.Write(ctx, conn, fanout.Command{Type: fanout.CommandJoinGroup, GroupID: groupID})
}

// Connected reports whether a connection is currently open
func (l *LiveConnection) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Run dials and reads until ctx ends
func (l *LiveConnection) Run(ctx context.Context) error {
	attempt := 0
	everConnected := false

	for {
		conn, _, err := websocket.Dial(ctx, l.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt++
			l.logger.WithError(err).WithField(service.LogFieldAttempt, attempt).Debug("Live connection dial failed")
			if err := l.backoff.Wait(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		attempt = 0
		if err := l.attach(ctx, conn); err != nil {
			l.logger.WithError(err).Warn("Failed to re-join groups")
		}
		l.logger.WithField(service.LogFieldURL, l.url).Info("Live connection established")

		if everConnected {
			select {
			case l.restored <- struct{}{}:
			default:
			}
		}
		everConnected = true

		err = l.readLoop(ctx, conn)
		l.detach(conn)
		if ctx.Err() != nil {
			conn.Close(websocket.StatusNormalClosure, "client shutting down")
			return ctx.Err()
		}
		l.logger.WithError(err).Warn("Live connection lost, reconnecting")
	}
}

func (l *LiveConnection) attach(ctx context.Context, conn *websocket.Conn) error {
	l.mu.Lock()
	l.conn = conn
	groups := make([]string, 0, len(l.groups))
	for g := range l.groups {
		groups = append(groups, g)
	}
	l.mu.Unlock()

	for _, g := range groups {
		if err := wsjson.Write(ctx, conn, fanout.Command{Type: fanout.CommandJoinGroup, GroupID: g}); err != nil {
			return err
		}
	}
	return nil
}

func (l *LiveConnection) detach(conn *websocket.Conn) {
	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	l.mu.Unlock()
}

func (l *LiveConnection) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var env fanout.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}

		switch env.Event {
		case fanout.EventJoined:
			l.logger.WithField(service.LogFieldGroupID, env.GroupID).Debug("Joined group")
			continue
		case fanout.EventError:
			l.logger.WithField("error", env.Error).Warn("Live channel reported an error")
			continue
		}

		ev, ok := fanout.EventFromEnvelope(env)
		if !ok {
			l.logger.WithField(service.LogFieldEvent, env.Event).Debug("Ignoring unknown live event")
			continue
		}

		select {
		case l.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
