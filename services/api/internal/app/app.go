package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"emailbots/internal/util"
	"emailbots/pkg/auth"
	"emailbots/pkg/domain"
	"emailbots/pkg/events"
	"emailbots/pkg/store"
)

const botsCollection = "bots"

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration
	JWTSecret     string

	// Optional overrides for tests.
	Store    store.Store
	Sessions store.SessionStore
	Bus      events.Bus
}

// App wires together storage, sessions, and the change-notification bus.
type App struct {
	store    store.Store
	sessions store.SessionStore
	bus      events.Bus
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessions := cfg.Sessions
	if sessions == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for session revocation")
		}
		revoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		var err error
		sessions, err = store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker)
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
	}

	bus := cfg.Bus
	if bus == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for the change bus")
		}
		bus = events.NewRedisBus(cfg.RedisAddr, cfg.RedisPassword, "")
	}

	return &App{
		store:    dataStore,
		sessions: sessions,
		bus:      bus,
	}, nil
}

// SignUp registers a new account and issues a session token.
func (a *App) SignUp(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrAccountEmailExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: passwordHash,
		Settings:     domain.DefaultSettings(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Logout revokes the session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserFromToken resolves a user from a session token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// UpdateSettings replaces the user's account settings.
func (a *App) UpdateSettings(user domain.User, settings domain.Settings) (domain.User, error) {
	settings.Timezone = strings.TrimSpace(settings.Timezone)
	if settings.Timezone == "" {
		return domain.User{}, ErrTimezoneRequired
	}
	user.Settings = settings
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("update settings: %w", err)
	}
	return user, nil
}

// BotDraft carries the editable fields of a bot record.
type BotDraft struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Description     string `json:"description"`
	ForwardingEmail string `json:"forwarding_email"`
}

func (d *BotDraft) normalize() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.TrimSpace(d.Email)
	d.Description = strings.TrimSpace(d.Description)
	d.ForwardingEmail = strings.TrimSpace(d.ForwardingEmail)
	if d.Name == "" {
		return ErrNameRequired
	}
	if d.Email == "" {
		return ErrEmailRequired
	}
	if d.ForwardingEmail == "" {
		return ErrForwardingEmailRequired
	}
	if _, err := mail.ParseAddress(d.Email); err != nil {
		return ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(d.ForwardingEmail); err != nil {
		return ErrInvalidForwardingEmail
	}
	return nil
}

// ListBots returns all bot records ordered newest-created-first.
func (a *App) ListBots() ([]domain.Bot, error) {
	return a.store.ListBots()
}

// ListBotsByEmail backs the advisory uniqueness pre-check.
func (a *App) ListBotsByEmail(email string) ([]domain.Bot, error) {
	return a.store.ListBotsByEmail(strings.TrimSpace(email))
}

// CreateBot inserts a new bot owned by the given user. The owner comes
// from the active session only; drafts cannot set it.
func (a *App) CreateBot(owner domain.User, draft BotDraft) (domain.Bot, error) {
	if owner.ID == "" {
		return domain.Bot{}, ErrSignInRequired
	}
	if err := draft.normalize(); err != nil {
		return domain.Bot{}, err
	}
	if err := a.checkBotEmail(draft.Email, ""); err != nil {
		return domain.Bot{}, err
	}
	now := time.Now().UTC()
	bot := domain.Bot{
		ID:              util.NewID(),
		Name:            draft.Name,
		Email:           draft.Email,
		Description:     draft.Description,
		ForwardingEmail: draft.ForwardingEmail,
		OwnerID:         owner.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.store.SaveBot(bot); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.Bot{}, ErrBotEmailExists
		}
		return domain.Bot{}, fmt.Errorf("save bot: %w", err)
	}
	a.publish(events.TypeCreated, bot.ID)
	return bot, nil
}

// UpdateBot applies the full draft to an existing bot. Only the owner may
// update; the uniqueness check is skipped when the email is unchanged.
func (a *App) UpdateBot(user domain.User, id string, draft BotDraft) (domain.Bot, error) {
	if user.ID == "" {
		return domain.Bot{}, ErrSignInRequired
	}
	if err := draft.normalize(); err != nil {
		return domain.Bot{}, err
	}
	bot, ok, err := a.store.GetBot(id)
	if err != nil {
		return domain.Bot{}, fmt.Errorf("fetch bot: %w", err)
	}
	if !ok {
		return domain.Bot{}, ErrBotNotFound
	}
	if bot.OwnerID != user.ID {
		return domain.Bot{}, ErrNotBotOwner
	}
	if draft.Email != bot.Email {
		if err := a.checkBotEmail(draft.Email, bot.ID); err != nil {
			return domain.Bot{}, err
		}
	}
	bot.Name = draft.Name
	bot.Email = draft.Email
	bot.Description = draft.Description
	bot.ForwardingEmail = draft.ForwardingEmail
	bot.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveBot(bot); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.Bot{}, ErrBotEmailExists
		}
		return domain.Bot{}, fmt.Errorf("save bot: %w", err)
	}
	a.publish(events.TypeUpdated, bot.ID)
	return bot, nil
}

// DeleteBot removes a bot. Hard delete, owner only.
func (a *App) DeleteBot(user domain.User, id string) error {
	if user.ID == "" {
		return ErrSignInRequired
	}
	bot, ok, err := a.store.GetBot(id)
	if err != nil {
		return fmt.Errorf("fetch bot: %w", err)
	}
	if !ok {
		return ErrBotNotFound
	}
	if bot.OwnerID != user.ID {
		return ErrNotBotOwner
	}
	if err := a.store.DeleteBot(id); err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	a.publish(events.TypeDeleted, id)
	return nil
}

// WatchBots opens a change subscription released when ctx is cancelled.
func (a *App) WatchBots(ctx context.Context) (<-chan events.Event, error) {
	return a.bus.Subscribe(ctx)
}

// checkBotEmail is the advisory uniqueness check. The unique index on the
// bots table remains the authoritative guard; this check only produces a
// friendlier error before the write is attempted.
func (a *App) checkBotEmail(email, excludeID string) error {
	existing, err := a.store.ListBotsByEmail(email)
	if err != nil {
		return fmt.Errorf("check bot email: %w", err)
	}
	for _, b := range existing {
		if b.ID != excludeID {
			return ErrBotEmailExists
		}
	}
	return nil
}

func (a *App) publish(eventType events.Type, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.bus.Publish(ctx, events.Event{Collection: botsCollection, Type: eventType, ID: id}); err != nil {
		slog.Warn("publish change event", "type", eventType, "id", id, "err", err)
	}
}
