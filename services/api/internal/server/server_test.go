package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"emailbots/pkg/domain"
	"emailbots/pkg/events"
	"emailbots/pkg/store"
	"emailbots/services/api/internal/app"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.App) {
	t.Helper()
	sessions, err := store.NewJWTSessionStore("test-secret", time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	application, err := app.New(app.Config{
		Store:    store.NewMemoryStore(),
		Sessions: sessions,
		Bus:      events.NewMemoryBus(),
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	srv, err := New(Config{App: application})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, application
}

func doJSON(t *testing.T, method, url, token string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func signUp(t *testing.T, ts *httptest.Server, email string) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/signup", "", map[string]string{
		"email":    email,
		"password": "secret123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d, want 201", resp.StatusCode)
	}
	body := decodeBody[map[string]json.RawMessage](t, resp)
	var token string
	if err := json.Unmarshal(body["token"], &token); err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

func createBot(t *testing.T, ts *httptest.Server, token, name, email string) domain.Bot {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/bots", token, map[string]string{
		"name":             name,
		"email":            email,
		"forwarding_email": "inbox@example.com",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create bot status = %d, want 201", resp.StatusCode)
	}
	return decodeBody[domain.Bot](t, resp)
}

type listResponse struct {
	Items []domain.Bot `json:"items"`
	Count int          `json:"count"`
}

func listBots(t *testing.T, ts *httptest.Server, query string) listResponse {
	t.Helper()
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/bots"+query, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}
	return decodeBody[listResponse](t, resp)
}

func TestSignupAndLogin(t *testing.T) {
	ts, _ := newTestServer(t)

	signUp(t, ts, "owner@example.com")

	// duplicate signup rejected
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/signup", "", map[string]string{
		"email":    "owner@example.com",
		"password": "secret123",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate signup status = %d, want 400", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if !strings.Contains(body["error"], "already exists") {
		t.Fatalf("duplicate signup error = %q", body["error"])
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"email":    "owner@example.com",
		"password": "secret123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// wrong password
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"email":    "owner@example.com",
		"password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	ts, _ := newTestServer(t)
	token := signUp(t, ts, "owner@example.com")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/logout", token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/bots", token, map[string]string{
		"name":             "Support",
		"email":            "support@example.com",
		"forwarding_email": "inbox@example.com",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("create after logout status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestBotLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)
	token := signUp(t, ts, "owner@example.com")

	bot := createBot(t, ts, token, "Support", "support@example.com")
	if bot.OwnerID == "" {
		t.Fatal("created bot has no owner")
	}
	if bot.AssistantID != "" {
		t.Fatalf("created bot has assistant id %q", bot.AssistantID)
	}

	list := listBots(t, ts, "")
	if list.Count != 1 || len(list.Items) != 1 {
		t.Fatalf("list count = %d, want 1", list.Count)
	}
	if list.Items[0].ID != bot.ID {
		t.Fatalf("listed bot id = %q, want %q", list.Items[0].ID, bot.ID)
	}

	resp := doJSON(t, http.MethodPut, ts.URL+"/api/bots/"+bot.ID, token, map[string]string{
		"name":             "Support EU",
		"email":            "support@example.com",
		"forwarding_email": "inbox@example.com",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, want 200", resp.StatusCode)
	}
	updated := decodeBody[domain.Bot](t, resp)
	if updated.Name != "Support EU" {
		t.Fatalf("updated name = %q", updated.Name)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/bots/"+bot.ID, token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	if list := listBots(t, ts, ""); list.Count != 0 {
		t.Fatalf("list after delete count = %d, want 0", list.Count)
	}
}

func TestBotListNewestFirst(t *testing.T) {
	ts, _ := newTestServer(t)
	token := signUp(t, ts, "owner@example.com")

	for i := 0; i < 3; i++ {
		createBot(t, ts, token, fmt.Sprintf("Bot %d", i), fmt.Sprintf("bot%d@example.com", i))
	}
	list := listBots(t, ts, "")
	if len(list.Items) != 3 {
		t.Fatalf("listed %d bots, want 3", len(list.Items))
	}
	if list.Items[0].Email != "bot2@example.com" {
		t.Fatalf("first listed bot = %q, want newest", list.Items[0].Email)
	}
}

func TestBotEmailFilter(t *testing.T) {
	ts, _ := newTestServer(t)
	token := signUp(t, ts, "owner@example.com")
	createBot(t, ts, token, "Support", "support@example.com")
	createBot(t, ts, token, "Sales", "sales@example.com")

	list := listBots(t, ts, "?email=sales@example.com")
	if len(list.Items) != 1 || list.Items[0].Name != "Sales" {
		t.Fatalf("filtered list = %+v", list.Items)
	}
	if list := listBots(t, ts, "?email=nobody@example.com"); len(list.Items) != 0 {
		t.Fatalf("filter on unknown email returned %d bots", len(list.Items))
	}
}

func TestDuplicateBotEmailRejected(t *testing.T) {
	ts, _ := newTestServer(t)
	token := signUp(t, ts, "owner@example.com")
	createBot(t, ts, token, "Support", "support@example.com")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/bots", token, map[string]string{
		"name":             "Shadow",
		"email":            "support@example.com",
		"forwarding_email": "inbox@example.com",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate bot status = %d, want 400", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if body["error"] != "A bot with this email already exists" {
		t.Fatalf("duplicate bot error = %q", body["error"])
	}
	if list := listBots(t, ts, ""); list.Count != 1 {
		t.Fatalf("list count after rejected create = %d, want 1", list.Count)
	}
}

func TestMutationsRequireOwnership(t *testing.T) {
	ts, _ := newTestServer(t)
	owner := signUp(t, ts, "owner@example.com")
	other := signUp(t, ts, "other@example.com")
	bot := createBot(t, ts, owner, "Support", "support@example.com")

	resp := doJSON(t, http.MethodPut, ts.URL+"/api/bots/"+bot.ID, other, map[string]string{
		"name":             "Hijacked",
		"email":            "support@example.com",
		"forwarding_email": "inbox@example.com",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign update status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/bots/"+bot.ID, other, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign delete status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	// unauthenticated mutation
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/bots", "", map[string]string{
		"name":             "Anon",
		"email":            "anon@example.com",
		"forwarding_email": "inbox@example.com",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnknownBotReturnsNotFound(t *testing.T) {
	ts, _ := newTestServer(t)
	token := signUp(t, ts, "owner@example.com")

	resp := doJSON(t, http.MethodDelete, ts.URL+"/api/bots/no-such-id", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delete unknown status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSettingsRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)
	token := signUp(t, ts, "owner@example.com")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/users/me/settings", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get settings status = %d, want 200", resp.StatusCode)
	}
	settings := decodeBody[domain.Settings](t, resp)
	if settings.Timezone != "UTC" {
		t.Fatalf("default timezone = %q, want UTC", settings.Timezone)
	}

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/users/me/settings", token, domain.Settings{
		EmailNotifications: true,
		Timezone:           "Europe/Berlin",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put settings status = %d, want 200", resp.StatusCode)
	}
	settings = decodeBody[domain.Settings](t, resp)
	if !settings.EmailNotifications || settings.Timezone != "Europe/Berlin" {
		t.Fatalf("updated settings = %+v", settings)
	}
}

func TestPreflightReturnsOK(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/bots", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
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
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestWatchStreamsChanges(t *testing.T) {
	ts, _ := newTestServer(t)
	token := signUp(t, ts, "owner@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/bots/watch"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial watch: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// give the handler a moment to register its subscription
	time.Sleep(100 * time.Millisecond)

	bot := createBot(t, ts, token, "Support", "support@example.com")

	var event events.Event
	if err := wsjson.Read(ctx, conn, &event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Collection != "bots" || event.Type != events.TypeCreated || event.ID != bot.ID {
		t.Fatalf("event = %+v", event)
	}

	resp := doJSON(t, http.MethodDelete, ts.URL+"/api/bots/"+bot.ID, token, nil)
	resp.Body.Close()
	if err := wsjson.Read(ctx, conn, &event); err != nil {
		t.Fatalf("read delete event: %v", err)
	}
	if event.Type != events.TypeDeleted || event.ID != bot.ID {
		t.Fatalf("delete event = %+v", event)
	}
}
