package client

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"agromind/internal/errors"
	"agromind/internal/models"

	"github.com/cockroachdb/pebble"
)

// ErrQueueItemNotFound is returned by Get for a key that is not queued
var ErrQueueItemNotFound = stderrors.New("queued message not found")

const (
	queuePrefix = "outbox:"
	// queueUpper sorts after every key with queuePrefix
	queueUpper = "outbox;"
	keyDigits  = 20
)

// Queue is the durable outbox of messages that could not reach the store.
// Entries survive restarts. Local keys are zero-padded nanosecond
// timestamps, so lexical order is enqueue order.
type Queue struct {
	db  *pebble.DB
	now func() time.Time

	mu      sync.Mutex
	lastKey int64
}

// OpenQueue opens or creates the queue stored in dir
func OpenQueue(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseConnection, "failed to open client queue")
	}

	q := &Queue{db: db, now: time.Now}

	// continue after the newest persisted key so a clock step back keeps order
	keys, err := q.Keys()
	if err != nil {
		db.Close()
		return nil, err
	}
	if n := len(keys); n > 0 {
		if last, err := strconv.ParseInt(keys[n-1], 10, 64); err == nil {
			q.lastKey = last
		}
	}

	return q, nil
}

// Enqueue persists item under a fresh local key and returns the key.
// QueuedAt is set when zero.
func (q *Queue) Enqueue(item models.QueuedOutboundMessage) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	next := now.UnixNano()
	if next <= q.lastKey {
		next = q.lastKey + 1
	}

	item.LocalKey = fmt.Sprintf("%0*d", keyDigits, next)
	if item.QueuedAt.IsZero() {
		item.QueuedAt = now
	}

	data, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("failed to encode queued message: %w", err)
	}
	if err := q.db.Set([]byte(queuePrefix+item.LocalKey), data, pebble.Sync); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to persist queued message")
	}

	q.lastKey = next
	return item.LocalKey, nil
}

// Keys lists every queued local key in enqueue order
func (q *Queue) Keys() ([]string, error) {
	iter, err := q.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(queuePrefix),
		UpperBound: []byte(queueUpper),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to iterate client queue")
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()[len(queuePrefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to iterate client queue")
	}
	return keys, nil
}

// Get loads one queued message
func (q *Queue) Get(localKey string) (*models.QueuedOutboundMessage, error) {
	data, closer, err := q.db.Get([]byte(queuePrefix + localKey))
	if err != nil {
		if stderrors.Is(err, pebble.ErrNotFound) {
			return nil, ErrQueueItemNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to read queued message")
	}
	defer closer.Close()

	var item models.QueuedOutboundMessage
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to decode queued message %s: %w", localKey, err)
	}
	return &item, nil
}

// Remove deletes a queued message. Removing an absent key is not an error.
func (q *Queue) Remove(localKey string) error {
	if err := q.db.Delete([]byte(queuePrefix+localKey), pebble.Sync); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to remove queued message")
	}
	return nil
}

// Len counts queued messages
func (q *Queue) Len() (int, error) {
	keys, err := q.Keys()
	return len(keys), err
}

func (q *Queue) Close() error {
	return q.db.Close()
}
