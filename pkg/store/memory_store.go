package store

import (
	"sort"
	"sync"
	"time"

	"emailbots/pkg/domain"
)

// MemoryStore keeps users and bots in-process. It mirrors the GormStore
// semantics, including the collection-wide bot email uniqueness, and is
// used by tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
	email map[string]string // user email -> user ID
	bots  map[string]domain.Bot
	order []string // bot insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		email: make(map[string]string),
		bots:  make(map[string]domain.Bot),
	}
}

// SaveUser stores or replaces a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.users[u.ID]; ok && old.Email != u.Email {
		delete(m.email, old.Email)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if a user email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// SaveBot stores or replaces a bot, enforcing email uniqueness.
func (m *MemoryStore) SaveBot(b domain.Bot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.bots {
		if id != b.ID && existing.Email == b.Email {
			return ErrDuplicateEmail
		}
	}
	if _, exists := m.bots[b.ID]; !exists {
		m.order = append(m.order, b.ID)
	}
	m.bots[b.ID] = b
	return nil
}

// ListBots returns all bots ordered newest-created-first.
func (m *MemoryStore) ListBots() ([]domain.Bot, error) {
	return m.listBots(func(domain.Bot) bool { return true })
}

// ListBotsByEmail returns bots with exactly the given email.
func (m *MemoryStore) ListBotsByEmail(email string) ([]domain.Bot, error) {
	return m.listBots(func(b domain.Bot) bool { return b.Email == email })
}

func (m *MemoryStore) listBots(match func(domain.Bot) bool) ([]domain.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Bot, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if b, ok := m.bots[m.order[i]]; ok && match(b) {
			res = append(res, b)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// GetBot retrieves a bot by ID.
func (m *MemoryStore) GetBot(id string) (domain.Bot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bots[id]
	return b, ok, nil
}

// DeleteBot removes a bot.
func (m *MemoryStore) DeleteBot(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bots, id)
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	return nil
}

// SetAssistantID attaches the provisioned assistant identifier to a bot.
func (m *MemoryStore) SetAssistantID(id, assistantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[id]
	if !ok {
		return nil
	}
	b.AssistantID = assistantID
	b.UpdatedAt = time.Now().UTC()
	m.bots[id] = b
	return nil
}
