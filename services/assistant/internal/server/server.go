package server

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"emailbots/internal/util"
	"emailbots/services/assistant/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// ServiceKey is the shared secret callers must present as a bearer token.
	ServiceKey string
}

// Server exposes the provisioning function over HTTP.
type Server struct {
	app        *app.App
	serviceKey string
	mux        *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:        cfg.App,
		serviceKey: cfg.ServiceKey,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with middleware applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("assistant", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/functions/create-assistant", s.handleCreateAssistant)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateAssistant mirrors the provisioning contract: any failure is a
// 400 with {error, details}, including authorization mismatches.
func (s *Server) handleCreateAssistant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFailure(w, "method not allowed", r.Method)
		return
	}
	if err := s.authorizeCaller(r); err != nil {
		writeFailure(w, err.Error(), "")
		return
	}

	var req app.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeFailure(w, "invalid JSON body", err.Error())
		return
	}

	assistantID, err := s.app.Provision(req)
	if err != nil {
		slog.Error("provision assistant", "bot_id", req.BotID, "err", err)
		writeFailure(w, err.Error(), "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"assistant_id": assistantID,
		"message":      "Assistant created and bot updated successfully",
	})
}

type authError string

func (e authError) Error() string { return string(e) }

func (s *Server) authorizeCaller(r *http.Request) error {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return authError("Missing authorization header")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.serviceKey)) != 1 {
		return authError("Invalid authorization")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFailure(w http.ResponseWriter, msg, details string) {
	body := map[string]any{"error": msg}
	if details != "" {
		body["details"] = details
	}
	writeJSON(w, http.StatusBadRequest, body)
}
