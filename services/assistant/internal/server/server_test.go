package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"emailbots/pkg/domain"
	"emailbots/pkg/events"
	"emailbots/pkg/store"
	"emailbots/services/assistant/internal/app"
)

const testServiceKey = "service-secret"

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore, *events.MemoryBus) {
	t.Helper()
	dataStore := store.NewMemoryStore()
	bus := events.NewMemoryBus()
	application, err := app.New(app.Config{Store: dataStore, Bus: bus})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	ts := httptest.NewServer(New(Config{App: application, ServiceKey: testServiceKey}).Router())
	t.Cleanup(ts.Close)
	return ts, dataStore, bus
}

func seedBot(t *testing.T, dataStore *store.MemoryStore) domain.Bot {
	t.Helper()
	bot := domain.Bot{
		ID:              "bot-1",
		Name:            "Support",
		Email:           "support@example.com",
		ForwardingEmail: "inbox@example.com",
		OwnerID:         "user-1",
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	if err := dataStore.SaveBot(bot); err != nil {
		t.Fatalf("seed bot: %v", err)
	}
	return bot
}

func postCreateAssistant(t *testing.T, ts *httptest.Server, token string, payload any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/functions/create-assistant", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestCreateAssistantSuccess(t *testing.T) {
	ts, dataStore, bus := newTestServer(t)
	bot := seedBot(t, dataStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	resp := postCreateAssistant(t, ts, testServiceKey, map[string]string{
		"name":        bot.Name,
		"email":       bot.Email,
		"description": "",
		"bot_id":      bot.ID,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Success     bool   `json:"success"`
		AssistantID string `json:"assistant_id"`
		Message     string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success {
		t.Fatal("success = false")
	}
	if !strings.HasPrefix(body.AssistantID, "asst_") {
		t.Fatalf("assistant_id = %q, want asst_ prefix", body.AssistantID)
	}
	if body.Message != "Assistant created and bot updated successfully" {
		t.Fatalf("message = %q", body.Message)
	}

	stored, ok, err := dataStore.GetBot(bot.ID)
	if err != nil || !ok {
		t.Fatalf("get bot: ok=%v err=%v", ok, err)
	}
	if stored.AssistantID != body.AssistantID {
		t.Fatalf("stored assistant id = %q, want %q", stored.AssistantID, body.AssistantID)
	}

	select {
	case e := <-sub:
		if e.Type != events.TypeUpdated || e.ID != bot.ID {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change event published")
	}
}

func TestCreateAssistantRejectsBadToken(t *testing.T) {
	ts, dataStore, _ := newTestServer(t)
	bot := seedBot(t, dataStore)

	for _, token := range []string{"", "wrong-secret"} {
		resp := postCreateAssistant(t, ts, token, map[string]string{
			"name":   bot.Name,
			"email":  bot.Email,
			"bot_id": bot.ID,
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("token %q: status = %d, want 400", token, resp.StatusCode)
		}
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		msg, _ := body["error"].(string)
		if !strings.Contains(msg, "authorization") {
			t.Fatalf("token %q: error = %q", token, msg)
		}
	}

	stored, ok, err := dataStore.GetBot(bot.ID)
	if err != nil || !ok {
		t.Fatalf("get bot: ok=%v err=%v", ok, err)
	}
	if stored.AssistantID != "" {
		t.Fatalf("assistant id set despite rejected calls: %q", stored.AssistantID)
	}
}

func TestCreateAssistantValidation(t *testing.T) {
	ts, _, _ := newTestServer(t)

	cases := []struct {
		name    string
		payload map[string]string
		wantErr string
	}{
		{"missing name", map[string]string{"email": "a@b.com", "bot_id": "bot-1"}, "name is required"},
		{"missing email", map[string]string{"name": "Support", "bot_id": "bot-1"}, "email is required"},
		{"missing bot id", map[string]string{"name": "Support", "email": "a@b.com"}, "bot_id is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postCreateAssistant(t, ts, testServiceKey, tc.payload)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tc.wantErr {
				t.Fatalf("error = %q, want %q", body["error"], tc.wantErr)
			}
		})
	}
}

// Updating an unknown bot matches zero rows; the function still reports
// success, same as the stub it replaces.
func TestCreateAssistantUnknownBot(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postCreateAssistant(t, ts, testServiceKey, map[string]string{
		"name":   "Support",
		"email":  "support@example.com",
		"bot_id": "no-such-bot",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPreflightReturnsOK(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/functions/create-assistant", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preflight status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Fatalf("preflight body = %q, want ok", body)
	}
}
