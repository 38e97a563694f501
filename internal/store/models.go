package store

import "time"

// Document is the persisted content record consulted on session creation.
type Document struct {
	ID          string
	Content     string
	ContentType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VersionRecord mirrors one committed version for durability and full-text
// search. The in-memory graph remains the authority.
type VersionRecord struct {
	ID          string
	DocumentID  string
	Branch      string
	Sequence    int
	Author      string
	Message     string
	ContentHash string
	Content     string
	CreatedAt   time.Time
}

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
