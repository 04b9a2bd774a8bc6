package models

import "time"

// User is a community member created on first OTP verification
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Language  string    `json:"lang"`
	CreatedAt time.Time `json:"createdAt"`
}
