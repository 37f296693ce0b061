// Package client implements the front-end side of the bots API: an HTTP
// client, a list synchronizer driven by change notifications, a form
// controller for create/edit, and the view state machine the terminal UI
// renders from.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"emailbots/pkg/domain"
	"emailbots/pkg/events"
)

// Client calls the bots API over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents an API error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs an API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Session is the result of a successful sign-up or sign-in.
type Session struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) SignUp(email, password string) (Session, error) {
	var s Session
	err := c.postJSON("/api/auth/signup", "", credentials{Email: email, Password: password}, &s)
	return s, err
}

func (c *Client) SignIn(email, password string) (Session, error) {
	var s Session
	err := c.postJSON("/api/auth/login", "", credentials{Email: email, Password: password}, &s)
	return s, err
}

func (c *Client) SignOut(token string) error {
	return c.postJSON("/api/auth/logout", token, nil, nil)
}

func (c *Client) Me(token string) (domain.User, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/users/me", nil)
	if err != nil {
		return domain.User{}, err
	}
	addAuthHeader(req, token)
	var user domain.User
	if err := c.do(req, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (c *Client) GetSettings(token string) (domain.Settings, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/users/me/settings", nil)
	if err != nil {
		return domain.Settings{}, err
	}
	addAuthHeader(req, token)
	var settings domain.Settings
	if err := c.do(req, &settings); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

func (c *Client) UpdateSettings(token string, settings domain.Settings) (domain.Settings, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return domain.Settings{}, err
	}
	req, err := http.NewRequest(http.MethodPut, c.baseURL+"/api/users/me/settings", bytes.NewReader(raw))
	if err != nil {
		return domain.Settings{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req, token)
	var updated domain.Settings
	if err := c.do(req, &updated); err != nil {
		return domain.Settings{}, err
	}
	return updated, nil
}

// BotInput carries the editable fields of a bot record.
type BotInput struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Description     string `json:"description"`
	ForwardingEmail string `json:"forwarding_email"`
}

func (c *Client) ListBots() ([]domain.Bot, error) {
	return c.listBots("")
}

// FindBotsByEmail is the advisory uniqueness pre-check: it asks the server
// for records matching the exact email.
func (c *Client) FindBotsByEmail(email string) ([]domain.Bot, error) {
	return c.listBots("?email=" + url.QueryEscape(email))
}

func (c *Client) listBots(query string) ([]domain.Bot, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/bots"+query, nil)
	if err != nil {
		return nil, err
	}
	var resp listBotsResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) CreateBot(token string, input BotInput) (domain.Bot, error) {
	var bot domain.Bot
	err := c.postJSON("/api/bots", token, input, &bot)
	return bot, err
}

func (c *Client) UpdateBot(token, id string, input BotInput) (domain.Bot, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return domain.Bot{}, err
	}
	path := fmt.Sprintf("%s/api/bots/%s", c.baseURL, id)
	req, err := http.NewRequest(http.MethodPut, path, bytes.NewReader(raw))
	if err != nil {
		return domain.Bot{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req, token)
	var bot domain.Bot
	if err := c.do(req, &bot); err != nil {
		return domain.Bot{}, err
	}
	return bot, nil
}

func (c *Client) DeleteBot(token, id string) error {
	path := fmt.Sprintf("%s/api/bots/%s", c.baseURL, id)
	req, err := http.NewRequest(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	addAuthHeader(req, token)
	return c.do(req, nil)
}

// Watch opens the change-notification stream. The channel closes when ctx is
// cancelled or the connection drops; events carry no record data, only the
// signal to re-fetch.
func (c *Client) Watch(ctx context.Context) (<-chan events.Event, error) {
	wsURL := c.baseURL + "/api/bots/watch"
	if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + strings.TrimPrefix(wsURL, "http")
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	out := make(chan events.Event)
	go func() {
		defer close(out)
		defer conn.Close(websocket.StatusNormalClosure, "watch ended")
		for {
			var e events.Event
			if err := wsjson.Read(ctx, conn, &e); err != nil {
				return
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) postJSON(path, token string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req, token)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func addAuthHeader(req *http.Request, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

type listBotsResponse struct {
	Items []domain.Bot `json:"items"`
	Count int          `json:"count"`
}
