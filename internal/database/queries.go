package database

// Group queries
const (
	InsertGroupQuery = `
		INSERT INTO groups (id, name, description, created_at)
		VALUES (?, ?, ?, ?)
	`

	SelectGroupsQuery = `
		SELECT id, name, description, created_at
		FROM groups
		ORDER BY created_at DESC, seq DESC
	`
)

// Message queries
const (
	InsertMessageQuery = `
		INSERT INTO messages (
			id, group_id, user_id, user_name, text, image, lang, parent_id, pinned, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`

	SelectMessagesByGroupQuery = `
		SELECT id, group_id, user_id, user_name, text, image, lang, parent_id, pinned, created_at
		FROM messages
		WHERE group_id = ?
		ORDER BY pinned DESC, created_at DESC, seq DESC
		LIMIT ?
	`

	SelectMessageByIDQuery = `
		SELECT id, group_id, user_id, user_name, text, image, lang, parent_id, pinned, created_at
		FROM messages
		WHERE id = ?
	`

	PinMessageQuery = `
		UPDATE messages
		SET pinned = 1
		WHERE id = ?
	`

	DeleteOldMessagesQuery = `
		DELETE FROM messages
		WHERE created_at < ?
	`
)

// User queries
const (
	InsertUserQuery = `
		INSERT INTO users (id, name, phone, phone_hash, lang, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	SelectUserByPhoneHashQuery = `
		SELECT id, name, phone, lang, created_at
		FROM users
		WHERE phone_hash = ?
	`
)
