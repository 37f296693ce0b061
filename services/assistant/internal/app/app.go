// Package app provisions external assistants for bot records. The outbound
// call to the assistant vendor is not implemented yet; a placeholder
// identifier is fabricated and persisted in its place.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"emailbots/internal/util"
	"emailbots/pkg/events"
	"emailbots/pkg/store"
)

var (
	ErrNameRequired  = errors.New("name is required")
	ErrEmailRequired = errors.New("email is required")
	ErrBotIDRequired = errors.New("bot_id is required")
)

// Config holds runtime configuration for the provisioning core.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	// Optional overrides for tests.
	Store store.Store
	Bus   events.Bus
}

// App attaches assistant identifiers to bot records.
type App struct {
	store store.Store
	bus   events.Bus
}

// New constructs the provisioning core.
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
	bus := cfg.Bus
	if bus == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for the change bus")
		}
		bus = events.NewRedisBus(cfg.RedisAddr, cfg.RedisPassword, "")
	}
	return &App{store: dataStore, bus: bus}, nil
}

// Request carries the provisioning parameters for one bot.
type Request struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Description string `json:"description"`
	BotID       string `json:"bot_id"`
}

// Provision fabricates an assistant identifier and stores it on the bot.
// TODO: call the real assistant-creation API instead of fabricating an ID.
func (a *App) Provision(req Request) (string, error) {
	if strings.TrimSpace(req.Name) == "" {
		return "", ErrNameRequired
	}
	if strings.TrimSpace(req.Email) == "" {
		return "", ErrEmailRequired
	}
	if strings.TrimSpace(req.BotID) == "" {
		return "", ErrBotIDRequired
	}

	assistantID := "asst_" + util.NewID()
	if err := a.store.SetAssistantID(req.BotID, assistantID); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.bus.Publish(ctx, events.Event{
		Collection: "bots",
		Type:       events.TypeUpdated,
		ID:         req.BotID,
	}); err != nil {
		slog.Warn("publish change event", "bot_id", req.BotID, "err", err)
	}
	return assistantID, nil
}
