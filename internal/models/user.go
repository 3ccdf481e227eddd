package models

import "time"

// User is a registered account. The password hash never leaves the server.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the username bound to an authenticated session.
type Identity struct {
	Username string `json:"username"`
}
