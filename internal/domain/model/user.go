package model

import "time"

// User is a bot user. The Telegram id doubles as the primary key, matching
// how payment metadata references users across provider round-trips.
type User struct {
	ID           int64 // Telegram user id
	Username     string
	FirstName    string
	LanguageCode string
	ReferredByID *int64
	RegisteredAt time.Time
}
