package domain

import "time"

// Bot is a named email-forwarding configuration owned by one user.
// Email is unique across the whole collection; AssistantID stays empty
// until the provisioning service attaches one.
type Bot struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Description     string    `json:"description"`
	ForwardingEmail string    `json:"forwarding_email"`
	AssistantID     string    `json:"assistant_id,omitempty"`
	OwnerID         string    `json:"user_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Settings     Settings  `json:"settings"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Settings holds per-user account preferences.
type Settings struct {
	EmailNotifications bool   `json:"emailNotifications"`
	Timezone           string `json:"timezone"`
}

// DefaultSettings returns the settings applied to new accounts.
func DefaultSettings() Settings {
	return Settings{Timezone: "UTC"}
}
