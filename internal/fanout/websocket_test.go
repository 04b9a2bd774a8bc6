package fanout

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agromind/internal/models"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestServer(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var env Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	return env
}

func writeCommand(t *testing.T, conn *websocket.Conn, cmd Command) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, cmd))
}

func TestHandler_JoinAndReceive(t *testing.T) {
	hub := NewHub(testLogger(), 8)
	handler := NewHandler(hub, testLogger(), HandlerOptions{})
	srv := httptest.NewServer(handler)
	defer srv.Close()
	defer handler.Shutdown()

	conn := dialTestServer(t, srv)

	writeCommand(t, conn, Command{Type: CommandJoinGroup, GroupID: "g1"})
	joined := readEnvelope(t, conn)
	assert.Equal(t, EventJoined, joined.Event)
	assert.Equal(t, "g1", joined.GroupID)

	hub.Publish("g2", models.EventCreated, &models.Message{ID: "other", GroupID: "g2"})
	hub.Publish("g1", models.EventCreated, &models.Message{ID: "m1", GroupID: "g1", Text: "hello"})

	env := readEnvelope(t, conn)
	assert.Equal(t, "newMessage", env.Event)
	require.NotNil(t, env.Data)
	assert.Equal(t, "m1", env.Data.ID)
	assert.Equal(t, "hello", env.Data.Text)

	hub.Publish("g1", models.EventPinned, &models.Message{ID: "m1", GroupID: "g1", Pinned: true})
	env = readEnvelope(t, conn)
	assert.Equal(t, "pinMessage", env.Event)
	assert.True(t, env.Data.Pinned)
}

func TestHandler_RejectsBadCommands(t *testing.T) {
	hub := NewHub(testLogger(), 8)
	handler := NewHandler(hub, testLogger(), HandlerOptions{})
	srv := httptest.NewServer(handler)
	defer srv.Close()
	defer handler.Shutdown()

	conn := dialTestServer(t, srv)

	writeCommand(t, conn, Command{Type: "leaveGroup", GroupID: "g1"})
	env := readEnvelope(t, conn)
	assert.Equal(t, EventError, env.Event)
	assert.Contains(t, env.Error, "unknown command")

	writeCommand(t, conn, Command{Type: CommandJoinGroup, GroupID: ""})
	env = readEnvelope(t, conn)
	assert.Equal(t, EventError, env.Event)
}

func TestHandler_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(testLogger(), 8)
	handler := NewHandler(hub, testLogger(), HandlerOptions{})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	conn := dialTestServer(t, srv)
	writeCommand(t, conn, Command{Type: CommandJoinGroup, GroupID: "g1"})
	readEnvelope(t, conn)
	require.Equal(t, 1, hub.Subscribers("g1"))

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	assert.Eventually(t, func() bool { return hub.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, hub.Subscribers("g1"))
}

func TestHandler_ShutdownClosesConnections(t *testing.T) {
	hub := NewHub(testLogger(), 8)
	handler := NewHandler(hub, testLogger(), HandlerOptions{})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	conn := dialTestServer(t, srv)
	writeCommand(t, conn, Command{Type: CommandJoinGroup, GroupID: "g1"})
	readEnvelope(t, conn)

	handler.Shutdown()

	assert.Eventually(t, func() bool { return hub.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}
