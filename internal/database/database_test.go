package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"agromind/internal/errors"
	"agromind/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "agromind.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// steppingClock returns a clock advancing one second per call
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("../escape.db")
	assert.Error(t, err)
}

func TestNew_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "agromind.db")
	db, err := New(path)
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping(context.Background()))
}

func TestGroups_CreateListGet(t *testing.T) {
	db := setupTestDB(t)
	db.now = steppingClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first, err := db.CreateGroup(ctx, "Paddy", "rice growers")
	require.NoError(t, err)
	second, err := db.CreateGroup(ctx, "Millet", "")
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)

	groups, err := db.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, second.ID, groups[0].ID, "newest group first")
	assert.Equal(t, first.ID, groups[1].ID)
	assert.Equal(t, "Paddy", groups[1].Name)
	assert.Equal(t, "rice growers", groups[1].Description)
	assert.True(t, first.CreatedAt.Equal(groups[1].CreatedAt))
}

func TestListGroups_Empty(t *testing.T) {
	db := setupTestDB(t)

	groups, err := db.ListGroups(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestCreateMessage_AssignsFields(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	msg, err := db.CreateMessage(ctx, "g1", models.MessageDraft{
		AuthorID:   "u1",
		AuthorName: "Asha",
		Text:       "hello",
		ImageRef:   "/uploads/abc.jpg",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "g1", msg.GroupID)
	assert.Equal(t, "en", msg.Language, "language defaults to en")
	assert.False(t, msg.Pinned)
	assert.Nil(t, msg.ParentID)
	assert.False(t, msg.CreatedAt.IsZero())

	stored, err := db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Text, stored.Text)
	assert.Equal(t, msg.ImageRef, stored.ImageRef)
	assert.Equal(t, msg.AuthorName, stored.AuthorName)
	assert.True(t, msg.CreatedAt.Equal(stored.CreatedAt))
}

func TestCreateMessage_GroupNeedNotExist(t *testing.T) {
	db := setupTestDB(t)

	msg, err := db.CreateMessage(context.Background(), "no-such-group", models.MessageDraft{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "no-such-group", msg.GroupID)
}

func TestCreateMessage_ParentReference(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	reply, err := db.CreateMessage(ctx, "g1", models.MessageDraft{Text: "reply", ParentID: models.StringPtr("not-checked")})
	require.NoError(t, err)

	stored, err := db.GetMessage(ctx, reply.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ParentID)
	assert.Equal(t, "not-checked", *stored.ParentID)
	assert.True(t, stored.IsReply())

	empty := ""
	plain, err := db.CreateMessage(ctx, "g1", models.MessageDraft{Text: "plain", ParentID: &empty})
	require.NoError(t, err)
	assert.Nil(t, plain.ParentID)
}

func TestMessageIDsUniqueAcrossGroups(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for _, group := range []string{"g1", "g2", "g1", "g3", "g2"} {
		msg, err := db.CreateMessage(ctx, group, models.MessageDraft{Text: group})
		require.NoError(t, err)
		assert.False(t, seen[msg.ID])
		seen[msg.ID] = true
	}
}

func TestListMessages_PinnedFirstThenNewest(t *testing.T) {
	db := setupTestDB(t)
	db.now = steppingClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	var ids []string
	for _, text := range []string{"m0", "m1", "m2", "m3", "m4"} {
		msg, err := db.CreateMessage(ctx, "g1", models.MessageDraft{Text: text})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}
	_, err := db.CreateMessage(ctx, "g2", models.MessageDraft{Text: "other group"})
	require.NoError(t, err)

	_, err = db.PinMessage(ctx, ids[1])
	require.NoError(t, err)
	_, err = db.PinMessage(ctx, ids[3])
	require.NoError(t, err)

	messages, err := db.ListMessages(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 5)

	got := make([]string, 0, len(messages))
	for _, m := range messages {
		got = append(got, m.Text)
		assert.Equal(t, "g1", m.GroupID)
	}
	assert.Equal(t, []string{"m3", "m1", "m4", "m2", "m0"}, got)
}

func TestListMessages_SameInstantNewestInsertFirst(t *testing.T) {
	db := setupTestDB(t)
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return fixed }
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		_, err := db.CreateMessage(ctx, "g1", models.MessageDraft{Text: text})
		require.NoError(t, err)
	}

	messages, err := db.ListMessages(ctx, "g1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "c", messages[0].Text)
	assert.Equal(t, "a", messages[2].Text)
}

func TestListMessages_Limit(t *testing.T) {
	db := setupTestDB(t)
	db.now = steppingClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := db.CreateMessage(ctx, "g1", models.MessageDraft{Text: "x"})
		require.NoError(t, err)
	}

	messages, err := db.ListMessages(ctx, "g1", 4)
	require.NoError(t, err)
	assert.Len(t, messages, 4)

	messages, err = db.ListMessages(ctx, "g1", 10000)
	require.NoError(t, err)
	assert.Len(t, messages, 6, "oversized limit clamps to the default")

	messages, err = db.ListMessages(ctx, "empty", 10)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestPinMessage_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	msg, err := db.CreateMessage(ctx, "g1", models.MessageDraft{Text: "pin me"})
	require.NoError(t, err)

	once, err := db.PinMessage(ctx, msg.ID)
	require.NoError(t, err)
	twice, err := db.PinMessage(ctx, msg.ID)
	require.NoError(t, err)

	assert.True(t, once.Pinned)
	assert.Equal(t, once, twice)

	messages, err := db.ListMessages(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].Pinned)
}

func TestPinMessage_ConcurrentCallsConverge(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	msg, err := db.CreateMessage(ctx, "g1", models.MessageDraft{Text: "race"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pinned, err := db.PinMessage(ctx, msg.ID)
			if assert.NoError(t, err) {
				assert.True(t, pinned.Pinned)
			}
		}()
	}
	wg.Wait()

	stored, err := db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Pinned)
}

func TestPinMessage_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.PinMessage(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestGetOrCreateUserByPhone(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user, created, err := db.GetOrCreateUserByPhone(ctx, "9876543210", "Ravi", "en")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Ravi", user.Name)

	again, created, err := db.GetOrCreateUserByPhone(ctx, "9876543210", "Someone Else", "kn")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, "Ravi", again.Name, "existing users are returned unchanged")
	assert.Equal(t, "9876543210", again.Phone)
}

func TestCleanupOldMessages(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now.Add(-40 * 24 * time.Hour) }
	_, err := db.CreateMessage(ctx, "g1", models.MessageDraft{Text: "old"})
	require.NoError(t, err)

	db.now = func() time.Time { return now }
	_, err = db.CreateMessage(ctx, "g1", models.MessageDraft{Text: "new"})
	require.NoError(t, err)

	deleted, err := db.CleanupOldMessages(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, deleted, "zero retention disables cleanup")

	deleted, err = db.CleanupOldMessages(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	messages, err := db.ListMessages(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "new", messages[0].Text)
}
