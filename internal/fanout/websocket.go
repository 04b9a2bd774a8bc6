package fanout

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"agromind/internal/constants"
	"agromind/internal/models"
	"agromind/internal/validation"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HandlerOptions tunes the WebSocket endpoint
type HandlerOptions struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ReadLimit      int64
	OriginPatterns []string
}

// Handler upgrades HTTP requests to WebSocket connections registered on a Hub
type Handler struct {
	hub    *Hub
	logger *logrus.Logger
	opts   HandlerOptions

	closing   chan struct{}
	closeOnce sync.Once
}

func NewHandler(hub *Hub, logger *logrus.Logger, opts HandlerOptions) *Handler {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = time.Duration(constants.DefaultWSWriteTimeoutSec) * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = time.Duration(constants.DefaultWSPingIntervalSec) * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = constants.DefaultWSReadLimitBytes
	}
	return &Handler{hub: hub, logger: logger, opts: opts, closing: make(chan struct{})}
}

// Shutdown closes every open connection. Hijacked connections are not
// tracked by http.Server.Shutdown.
func (h *Handler) Shutdown() {
	h.closeOnce.Do(func() { close(h.closing) })
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	acceptOpts := &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns}
	if len(h.opts.OriginPatterns) == 0 {
		acceptOpts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(w, r, acceptOpts)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.opts.ReadLimit)

	connID := uuid.NewString()
	events := h.hub.Register(connID)
	defer h.hub.Unregister(connID)

	log := h.logger.WithField("connection_id", connID)
	log.Debug("Real-time connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-h.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Control frames from the reader go through the writer so only one
	// goroutine writes.
	replies := make(chan Envelope, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, conn, events, replies, log)
		cancel()
	}()

	h.readLoop(ctx, conn, connID, replies, log)
	cancel()
	<-done

	_ = conn.Close(websocket.StatusNormalClosure, "")
	log.Debug("Real-time connection closed")
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, connID string, replies chan<- Envelope, log *logrus.Entry) {
	for {
		var cmd Command
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			if !isExpectedClose(err) && ctx.Err() == nil {
				log.WithError(err).Debug("Real-time read failed")
			}
			return
		}

		reply := h.handleCommand(connID, cmd)
		log.WithFields(logrus.Fields{"command": cmd.Type, "group_id": cmd.GroupID}).Debug("Real-time command")

		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) handleCommand(connID string, cmd Command) Envelope {
	switch cmd.Type {
	case CommandJoinGroup:
		if err := validation.ValidateGroupID(cmd.GroupID); err != nil {
			return Envelope{Event: EventError, Error: err.Error()}
		}
		if err := h.hub.Subscribe(connID, cmd.GroupID); err != nil {
			return Envelope{Event: EventError, Error: err.Error()}
		}
		return Envelope{Event: EventJoined, GroupID: cmd.GroupID}
	default:
		return Envelope{Event: EventError, Error: "unknown command: " + cmd.Type}
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan models.Event, replies <-chan Envelope, log *logrus.Entry) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		var frame Envelope
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			frame = EnvelopeFor(ev)
		case frame = <-replies:
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.WithError(err).Debug("Real-time ping failed")
				return
			}
			continue
		}

		writeCtx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
		err := wsjson.Write(writeCtx, conn, frame)
		cancel()
		if err != nil {
			if !isExpectedClose(err) {
				log.WithError(err).Debug("Real-time write failed")
			}
			return
		}
	}
}

func isExpectedClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, context.Canceled)
}
