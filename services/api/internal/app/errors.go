package app

import "errors"

var (
	// ErrInvalidCredentials is shown to end users; it must not enable
	// account enumeration.
	ErrInvalidCredentials = errors.New("Invalid email or password")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrAccountEmailExists       = errors.New("An account with this email already exists. Please sign in instead.")

	// ErrSignInRequired is returned when a mutation arrives without a session.
	ErrSignInRequired = errors.New("Please sign in to create or edit bots")

	// ErrBotEmailExists blocks a create or update whose email collides with
	// another bot record.
	ErrBotEmailExists = errors.New("A bot with this email already exists")

	ErrBotNotFound = errors.New("bot not found")
	ErrNotBotOwner = errors.New("only the owner can modify this bot")

	ErrNameRequired            = errors.New("name is required")
	ErrEmailRequired           = errors.New("email is required")
	ErrForwardingEmailRequired = errors.New("forwarding email is required")
	ErrInvalidEmail            = errors.New("email address is not valid")
	ErrInvalidForwardingEmail  = errors.New("forwarding email address is not valid")
	ErrTimezoneRequired        = errors.New("timezone is required")
)
