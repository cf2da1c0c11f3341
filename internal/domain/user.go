package domain

import "time"

// User is a registered account. Username and email are unique; the
// password hash never leaves the auth service.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
