package client

import (
	"errors"
	"strings"

	"emailbots/pkg/domain"
)

// ErrSignInRequired is returned when a form is submitted without a session.
var ErrSignInRequired = errors.New("Please sign in to create or edit bots")

// ErrBotEmailExists is returned when the advisory uniqueness pre-check finds
// another record with the draft's email.
var ErrBotEmailExists = errors.New("A bot with this email already exists")

// Form holds a local draft for creating or editing a single bot record.
// The draft survives failed submissions untouched.
type Form struct {
	client *Client

	Draft BotInput

	editing   bool
	recordID  string
	origEmail string
}

// NewCreateForm starts an empty draft for a new record.
func NewCreateForm(c *Client) *Form {
	return &Form{client: c}
}

// NewEditForm seeds the draft from an existing record.
func NewEditForm(c *Client, bot domain.Bot) *Form {
	return &Form{
		client:    c,
		editing:   true,
		recordID:  bot.ID,
		origEmail: bot.Email,
		Draft: BotInput{
			Name:            bot.Name,
			Email:           bot.Email,
			Description:     bot.Description,
			ForwardingEmail: bot.ForwardingEmail,
		},
	}
}

// Editing reports whether the form was seeded from an existing record.
func (f *Form) Editing() bool { return f.editing }

// Submit validates the session, runs the advisory uniqueness pre-check, and
// issues the create or update. The pre-check is skipped when editing and the
// email is unchanged; it is not atomic with the write, the server-side unique
// index is the real guard.
func (f *Form) Submit(token string) (domain.Bot, error) {
	if strings.TrimSpace(token) == "" {
		return domain.Bot{}, ErrSignInRequired
	}

	email := strings.TrimSpace(f.Draft.Email)
	if !f.editing || email != f.origEmail {
		existing, err := f.client.FindBotsByEmail(email)
		if err != nil {
			return domain.Bot{}, err
		}
		if len(existing) > 0 {
			return domain.Bot{}, ErrBotEmailExists
		}
	}

	if f.editing {
		return f.client.UpdateBot(token, f.recordID, f.Draft)
	}
	return f.client.CreateBot(token, f.Draft)
}
