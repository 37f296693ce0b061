package client

import "emailbots/pkg/domain"

// ViewName identifies the active screen.
type ViewName string

const (
	ViewBots     ViewName = "bots"
	ViewSettings ViewName = "settings"
)

// View is the UI state machine: authenticated flag, active screen, and form
// visibility are independent axes. It holds no record data beyond the form
// seed; the Synchronizer owns the list.
type View struct {
	Token string
	User  domain.User

	current ViewName
	form    *Form

	client *Client
}

// NewView starts unauthenticated on the bots screen.
func NewView(c *Client) *View {
	return &View{client: c, current: ViewBots}
}

// Authenticated reports whether a session is active.
func (v *View) Authenticated() bool { return v.Token != "" }

// Current returns the active screen.
func (v *View) Current() ViewName { return v.current }

// Show switches the active screen.
func (v *View) Show(name ViewName) { v.current = name }

// Form returns the open form, or nil when hidden.
func (v *View) Form() *Form { return v.form }

// SignIn records a successful session.
func (v *View) SignIn(s Session) {
	v.Token = s.Token
	v.User = s.User
}

// SignOut drops the session, hides any open form, and gates mutations.
func (v *View) SignOut() error {
	token := v.Token
	v.Token = ""
	v.User = domain.User{}
	v.form = nil
	if token == "" {
		return nil
	}
	return v.client.SignOut(token)
}

// OpenCreateForm shows the form with an empty draft. Mutation entry points
// do not exist when unauthenticated.
func (v *View) OpenCreateForm() bool {
	if !v.Authenticated() {
		return false
	}
	v.form = NewCreateForm(v.client)
	return true
}

// OpenEditForm shows the form seeded with the given record.
func (v *View) OpenEditForm(bot domain.Bot) bool {
	if !v.Authenticated() {
		return false
	}
	v.form = NewEditForm(v.client, bot)
	return true
}

// CloseForm hides the form and clears the seeded record.
func (v *View) CloseForm() { v.form = nil }

// SubmitForm submits the open form. On success the form is hidden; on
// failure it stays open with the draft intact.
func (v *View) SubmitForm() (domain.Bot, error) {
	if v.form == nil {
		return domain.Bot{}, ErrSignInRequired
	}
	bot, err := v.form.Submit(v.Token)
	if err != nil {
		return domain.Bot{}, err
	}
	v.form = nil
	return bot, nil
}

// DeleteBot issues the delete only when confirm reports true; declining
// leaves all state unchanged.
func (v *View) DeleteBot(id string, confirm func() bool) error {
	if !v.Authenticated() {
		return ErrSignInRequired
	}
	if confirm != nil && !confirm() {
		return nil
	}
	return v.client.DeleteBot(v.Token, id)
}
