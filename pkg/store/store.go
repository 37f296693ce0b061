package store

import (
	"errors"

	"emailbots/pkg/domain"
)

// ErrDuplicateEmail is returned when a bot email collides with an existing
// record. The schema-level unique index is the authoritative guard; the
// explicit HasBotEmail check is an advisory UX shortcut.
var ErrDuplicateEmail = errors.New("bot email already exists")

// Store defines persistence operations for users and bots.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// bots
	SaveBot(domain.Bot) error
	ListBots() ([]domain.Bot, error)
	ListBotsByEmail(email string) ([]domain.Bot, error)
	GetBot(id string) (domain.Bot, bool, error)
	DeleteBot(id string) error
	SetAssistantID(id, assistantID string) error
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
