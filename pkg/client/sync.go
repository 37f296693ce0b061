package client

import (
	"context"
	"sync"

	"emailbots/pkg/domain"
)

// Synchronizer keeps an authoritative in-memory copy of the bot list. It
// never patches the list from notifications; every change signal and every
// completed mutation triggers a full re-fetch.
type Synchronizer struct {
	client  *Client
	onError func(error)

	mu   sync.RWMutex
	bots []domain.Bot
}

// NewSynchronizer builds a synchronizer around the API client. onError is
// invoked for fetch failures and may be nil.
func NewSynchronizer(c *Client, onError func(error)) *Synchronizer {
	if onError == nil {
		onError = func(error) {}
	}
	return &Synchronizer{client: c, onError: onError}
}

// Bots returns a snapshot of the current list.
func (s *Synchronizer) Bots() []domain.Bot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Bot, len(s.bots))
	copy(out, s.bots)
	return out
}

// Refresh re-fetches the full list. On failure the previous list is kept and
// the error is reported through onError.
func (s *Synchronizer) Refresh() error {
	bots, err := s.client.ListBots()
	if err != nil {
		s.onError(err)
		return err
	}
	s.mu.Lock()
	s.bots = bots
	s.mu.Unlock()
	return nil
}

// Run performs the initial fetch, holds a single change subscription for its
// lifetime, and re-fetches on every notification. It returns when ctx is
// cancelled or the subscription closes; the subscription is released either
// way.
func (s *Synchronizer) Run(ctx context.Context) error {
	_ = s.Refresh()

	sub, err := s.client.Watch(ctx)
	if err != nil {
		s.onError(err)
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-sub:
			if !ok {
				return nil
			}
			_ = s.Refresh()
		}
	}
}
