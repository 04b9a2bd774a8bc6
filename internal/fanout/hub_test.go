package fanout

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"agromind/internal/config"
	"agromind/internal/models"

	"github.com/go-redis/redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func receiveOne(t *testing.T, events <-chan models.Event) models.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return models.Event{}
	}
}

func assertNoEvent(t *testing.T, events <-chan models.Event) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

type recordingRelay struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingRelay) Forward(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestHub_PublishScopedToGroup(t *testing.T) {
	hub := NewHub(testLogger(), 4)

	a := hub.Register("a")
	b := hub.Register("b")
	require.NoError(t, hub.Subscribe("a", "groupA"))
	require.NoError(t, hub.Subscribe("b", "groupB"))

	msg := &models.Message{ID: "m1", GroupID: "groupA", Text: "hello"}
	delivered := hub.Publish("groupA", models.EventCreated, msg)

	assert.Equal(t, 1, delivered)
	ev := receiveOne(t, a)
	assert.Equal(t, models.EventCreated, ev.Kind)
	assert.Equal(t, "groupA", ev.GroupID)
	assert.Equal(t, msg, ev.Message)
	assertNoEvent(t, b)
}

func TestHub_ConnectionInSeveralGroups(t *testing.T) {
	hub := NewHub(testLogger(), 4)

	events := hub.Register("c1")
	require.NoError(t, hub.Subscribe("c1", "g1"))
	require.NoError(t, hub.Subscribe("c1", "g2"))
	require.NoError(t, hub.Subscribe("c1", "g2"))

	hub.Publish("g1", models.EventCreated, &models.Message{ID: "m1", GroupID: "g1"})
	hub.Publish("g2", models.EventPinned, &models.Message{ID: "m2", GroupID: "g2"})
	hub.Publish("g3", models.EventCreated, &models.Message{ID: "m3", GroupID: "g3"})

	assert.Equal(t, "m1", receiveOne(t, events).Message.ID)
	second := receiveOne(t, events)
	assert.Equal(t, "m2", second.Message.ID)
	assert.Equal(t, models.EventPinned, second.Kind)
	assertNoEvent(t, events)
	assert.Equal(t, 1, hub.Subscribers("g2"))
}

func TestHub_SubscribeUnknownConnection(t *testing.T) {
	hub := NewHub(testLogger(), 4)
	assert.Error(t, hub.Subscribe("ghost", "g1"))
}

func TestHub_PublishNeverBlocksOnFullBuffer(t *testing.T) {
	hub := NewHub(testLogger(), 1)

	slow := hub.Register("slow")
	fast := hub.Register("fast")
	require.NoError(t, hub.Subscribe("slow", "g1"))
	require.NoError(t, hub.Subscribe("fast", "g1"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			hub.Publish("g1", models.EventCreated, &models.Message{ID: "m", GroupID: "g1"})
			<-fast
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}

	receiveOne(t, slow)
	assertNoEvent(t, slow)
}

func TestHub_UnregisterClosesAndRemoves(t *testing.T) {
	hub := NewHub(testLogger(), 4)

	events := hub.Register("c1")
	require.NoError(t, hub.Subscribe("c1", "g1"))
	assert.Equal(t, 1, hub.Connections())

	hub.Unregister("c1")
	hub.Unregister("c1")

	_, open := <-events
	assert.False(t, open)
	assert.Zero(t, hub.Subscribers("g1"))
	assert.Zero(t, hub.Connections())
	assert.Zero(t, hub.Publish("g1", models.EventCreated, &models.Message{ID: "m1"}))
}

func TestHub_RegisterSameIDReplaces(t *testing.T) {
	hub := NewHub(testLogger(), 4)

	first := hub.Register("c1")
	require.NoError(t, hub.Subscribe("c1", "g1"))
	second := hub.Register("c1")

	_, open := <-first
	assert.False(t, open)
	assert.Zero(t, hub.Subscribers("g1"), "replacement starts with no groups")

	require.NoError(t, hub.Subscribe("c1", "g1"))
	hub.Publish("g1", models.EventCreated, &models.Message{ID: "m1"})
	assert.Equal(t, "m1", receiveOne(t, second).Message.ID)
}

func TestHub_ForwardsToRelay(t *testing.T) {
	hub := NewHub(testLogger(), 4)
	relay := &recordingRelay{}
	hub.SetRelay(relay)

	hub.Publish("g1", models.EventPinned, &models.Message{ID: "m1", GroupID: "g1"})

	require.Len(t, relay.events, 1)
	assert.Equal(t, "g1", relay.events[0].GroupID)

	hub.PublishLocal(models.Event{Kind: models.EventCreated, GroupID: "g1", Message: &models.Message{ID: "m2"}})
	assert.Len(t, relay.events, 1, "local-only publish is not relayed")
}

func TestRedisRelay_HandlePayload(t *testing.T) {
	hub := NewHub(testLogger(), 4)
	events := hub.Register("c1")
	require.NoError(t, hub.Subscribe("c1", "g1"))

	relay := newRedisRelay(nil, models.RedisConfig{NodeName: "node-a"}, hub, testLogger())
	assert.Equal(t, "agromind:fanout", relay.channel)

	remote, err := json.Marshal(relayMessage{
		Origin:   "other-process",
		NodeName: "node-b",
		Event:    models.Event{Kind: models.EventCreated, GroupID: "g1", Message: &models.Message{ID: "m1", GroupID: "g1"}},
	})
	require.NoError(t, err)
	assert.True(t, relay.handlePayload(string(remote)))
	assert.Equal(t, "m1", receiveOne(t, events).Message.ID)

	own, err := json.Marshal(relayMessage{
		Origin:   relay.origin,
		NodeName: "node-a",
		Event:    models.Event{Kind: models.EventCreated, GroupID: "g1", Message: &models.Message{ID: "m2"}},
	})
	require.NoError(t, err)
	assert.False(t, relay.handlePayload(string(own)))
	assert.False(t, relay.handlePayload("{not json"))
	assertNoEvent(t, events)
}

// two server processes on one host share the default node name
func TestRedisRelay_SameNodeNameDifferentProcesses(t *testing.T) {
	cfgA, err := config.LoadConfig("")
	require.NoError(t, err)
	cfgB, err := config.LoadConfig("")
	require.NoError(t, err)

	relayA := newRedisRelay(nil, cfgA.Fanout.Redis, NewHub(testLogger(), 4), testLogger())
	hubB := NewHub(testLogger(), 4)
	events := hubB.Register("c1")
	require.NoError(t, hubB.Subscribe("c1", "g1"))
	relayB := newRedisRelay(nil, cfgB.Fanout.Redis, hubB, testLogger())

	require.Equal(t, relayA.node, relayB.node)
	assert.NotEqual(t, relayA.origin, relayB.origin)

	relayA.Forward(models.Event{Kind: models.EventCreated, GroupID: "g1", Message: &models.Message{ID: "m1", GroupID: "g1"}})
	payload, err := json.Marshal(<-relayA.outbox)
	require.NoError(t, err)

	assert.True(t, relayB.handlePayload(string(payload)))
	assert.Equal(t, "m1", receiveOne(t, events).Message.ID)
	assert.False(t, relayA.handlePayload(string(payload)), "own echo is skipped")
}

func TestRedisRelay_CloseRightAfterStart(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	relay := newRedisRelay(rdb, models.RedisConfig{NodeName: "node-a"}, NewHub(testLogger(), 1), testLogger())

	relay.Start(context.Background())

	done := make(chan error, 1)
	go func() { done <- relay.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestRedisRelay_ForwardDropsWhenFull(t *testing.T) {
	relay := newRedisRelay(nil, models.RedisConfig{NodeName: "node-a"}, NewHub(testLogger(), 1), testLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < cap(relay.outbox)+10; i++ {
			relay.Forward(models.Event{Kind: models.EventCreated, GroupID: "g1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward blocked")
	}
	assert.Len(t, relay.outbox, cap(relay.outbox))
}

func TestEnvelopeConversion(t *testing.T) {
	msg := &models.Message{ID: "m1", GroupID: "g1"}
	env := EnvelopeFor(models.Event{Kind: models.EventPinned, GroupID: "g1", Message: msg})
	assert.Equal(t, "pinMessage", env.Event)

	ev, ok := EventFromEnvelope(env)
	require.True(t, ok)
	assert.Equal(t, models.EventPinned, ev.Kind)
	assert.Equal(t, "g1", ev.GroupID)

	_, ok = EventFromEnvelope(Envelope{Event: EventJoined, GroupID: "g1"})
	assert.False(t, ok)
}
