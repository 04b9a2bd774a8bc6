package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agromind/internal/constants"
	"agromind/internal/errors"
	"agromind/internal/migrations"
	"agromind/internal/models"
	"agromind/internal/security"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
	now       func() time.Time
}

func New(dbPath string) (*Database, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	scripts, err := migrations.All()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	for _, script := range scripts {
		if _, err := db.Exec(script); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseMigration, "failed to initialize schema")
		}
	}

	enc, err := NewEncryptor()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: enc, now: time.Now}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping reports whether the database is reachable
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) CreateGroup(ctx context.Context, name, description string) (*models.Group, error) {
	group := &models.Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   d.now().UTC(),
	}

	err := retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertGroupQuery,
			group.ID, group.Name, group.Description, group.CreatedAt.UnixNano())
		return err
	})
	if err != nil {
		return nil, errors.NewDatabaseError("create group", err)
	}

	return group, nil
}

// ListGroups returns every group, newest first
func (d *Database) ListGroups(ctx context.Context) ([]*models.Group, error) {
	groups, err := retryableDBOperation(ctx, func() ([]*models.Group, error) {
		rows, err := d.db.QueryContext(ctx, SelectGroupsQuery)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		groups := make([]*models.Group, 0)
		for rows.Next() {
			group, err := scanGroup(rows)
			if err != nil {
				return nil, err
			}
			groups = append(groups, group)
		}
		return groups, rows.Err()
	})
	if err != nil {
		return nil, errors.NewDatabaseError("list groups", err)
	}
	return groups, nil
}

// CreateMessage stores a new message in groupID. The group is not required to
// exist. The store assigns id and createdAt and the message starts unpinned.
func (d *Database) CreateMessage(ctx context.Context, groupID string, draft models.MessageDraft) (*models.Message, error) {
	lang := draft.Language
	if lang == "" {
		lang = constants.DefaultMessageLanguage
	}

	msg := &models.Message{
		ID:         uuid.NewString(),
		GroupID:    groupID,
		AuthorID:   draft.AuthorID,
		AuthorName: draft.AuthorName,
		Text:       draft.Text,
		ImageRef:   draft.ImageRef,
		Language:   lang,
		ParentID:   nonEmpty(draft.ParentID),
		CreatedAt:  d.now().UTC(),
	}

	var parentID sql.NullString
	if msg.ParentID != nil {
		parentID = sql.NullString{String: *msg.ParentID, Valid: true}
	}

	err := retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertMessageQuery,
			msg.ID, msg.GroupID, msg.AuthorID, msg.AuthorName, msg.Text,
			msg.ImageRef, msg.Language, parentID, msg.CreatedAt.UnixNano())
		return err
	})
	if err != nil {
		return nil, errors.NewDatabaseError("create message", err)
	}

	return msg, nil
}

// ListMessages returns up to limit messages of a group: pinned first, then
// newest first. Messages created in the same instant keep insertion order
// reversed.
func (d *Database) ListMessages(ctx context.Context, groupID string, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > constants.MaxMessageListLimit {
		limit = constants.DefaultMessageListLimit
	}

	messages, err := retryableDBOperation(ctx, func() ([]*models.Message, error) {
		rows, err := d.db.QueryContext(ctx, SelectMessagesByGroupQuery, groupID, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		messages := make([]*models.Message, 0)
		for rows.Next() {
			msg, err := scanMessage(rows)
			if err != nil {
				return nil, err
			}
			messages = append(messages, msg)
		}
		return messages, rows.Err()
	})
	if err != nil {
		return nil, errors.NewDatabaseError("list messages", err)
	}
	return messages, nil
}

func (d *Database) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := retryableDBOperation(ctx, func() (*models.Message, error) {
		return scanMessage(d.db.QueryRowContext(ctx, SelectMessageByIDQuery, id))
	})
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("message", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get message", err)
	}
	return msg, nil
}

// PinMessage sets the pinned flag and returns the updated message. Pinning
// an already pinned message is a no-op that still returns it.
func (d *Database) PinMessage(ctx context.Context, id string) (*models.Message, error) {
	err := retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, PinMessageQuery, id)
		return err
	})
	if err != nil {
		return nil, errors.NewDatabaseError("pin message", err)
	}

	return d.GetMessage(ctx, id)
}

// GetOrCreateUserByPhone returns the user registered under phone, creating it
// with the given name and language on first use. Existing users are returned
// unchanged.
func (d *Database) GetOrCreateUserByPhone(ctx context.Context, phone, name, lang string) (*models.User, bool, error) {
	lookup := d.encryptor.LookupKey(phone)

	user, err := d.getUserByLookup(ctx, lookup)
	if err == nil {
		return user, false, nil
	}
	if !errors.IsNotFound(err) {
		return nil, false, err
	}

	storedPhone, err := d.encryptor.Encrypt(phone)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeInternalError, "failed to encrypt phone number")
	}

	user = &models.User{
		ID:        uuid.NewString(),
		Name:      name,
		Phone:     phone,
		Language:  lang,
		CreatedAt: d.now().UTC(),
	}

	err = retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertUserQuery,
			user.ID, user.Name, storedPhone, lookup, user.Language, user.CreatedAt.UnixNano())
		return err
	})
	if err != nil {
		// A concurrent login for the same phone won the insert.
		if existing, getErr := d.getUserByLookup(ctx, lookup); getErr == nil {
			return existing, false, nil
		}
		return nil, false, errors.NewDatabaseError("create user", err)
	}

	return user, true, nil
}

func (d *Database) getUserByLookup(ctx context.Context, lookup string) (*models.User, error) {
	var (
		user        models.User
		storedPhone string
		createdAt   int64
	)

	err := retryableDBOperationNoReturn(ctx, func() error {
		return d.db.QueryRowContext(ctx, SelectUserByPhoneHashQuery, lookup).
			Scan(&user.ID, &user.Name, &storedPhone, &user.Language, &createdAt)
	})
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("user", "phone")
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get user", err)
	}

	phone, err := d.encryptor.Decrypt(storedPhone)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to decrypt phone number")
	}
	user.Phone = phone
	user.CreatedAt = time.Unix(0, createdAt).UTC()

	return &user, nil
}

// CleanupOldMessages deletes messages older than retentionDays and returns
// how many were removed.
func (d *Database) CleanupOldMessages(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := d.now().Add(-time.Duration(retentionDays) * 24 * time.Hour).UnixNano()

	deleted, err := retryableDBOperation(ctx, func() (int64, error) {
		result, err := d.db.ExecContext(ctx, DeleteOldMessagesQuery, cutoff)
		if err != nil {
			return 0, err
		}
		return result.RowsAffected()
	})
	if err != nil {
		return 0, errors.NewDatabaseError("cleanup old messages", err)
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGroup(row rowScanner) (*models.Group, error) {
	var (
		group     models.Group
		createdAt int64
	)
	if err := row.Scan(&group.ID, &group.Name, &group.Description, &createdAt); err != nil {
		return nil, err
	}
	group.CreatedAt = time.Unix(0, createdAt).UTC()
	return &group, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg       models.Message
		parentID  sql.NullString
		pinned    int
		createdAt int64
	)
	err := row.Scan(&msg.ID, &msg.GroupID, &msg.AuthorID, &msg.AuthorName, &msg.Text,
		&msg.ImageRef, &msg.Language, &parentID, &pinned, &createdAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid && parentID.String != "" {
		msg.ParentID = models.StringPtr(parentID.String)
	}
	msg.Pinned = pinned != 0
	msg.CreatedAt = time.Unix(0, createdAt).UTC()
	return &msg, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
