package models

import "time"

// Group is a named chat room. Groups are flat: there is no membership list
// and any user may read or post.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// GroupInvite is the shareable join link for a group
type GroupInvite struct {
	Link string `json:"link"`
}

// GroupQRCode carries a PNG data URL encoding the invite link
type GroupQRCode struct {
	QR string `json:"qr"`
}
