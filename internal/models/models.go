package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID         uuid.UUID
	Username   string
	FirstName  string
	LastName   string
	Email      string
	PassHash   []byte
	Enabled    bool
	Roles      []string
	Code       *int32
	CodeExpiry *time.Time
}

// RefreshTokenRecord is the server-side ledger entry for an issued refresh
// token. Existence of the record is what makes the token usable for rotation;
// the token string itself is never stored, only its peppered hash.
type RefreshTokenRecord struct {
	TokenID   uuid.UUID
	TokenHash string
	ExpiresAt time.Time
}

type Message struct {
	Email    string `json:"to"`
	Username string `json:"username"`
	Code     int32  `json:"code"`
}
