package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"github.com/munnerz/goautoneg"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	s.writeJSON(w, status, apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	})
}

// writeJSON writes v without the response envelope
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

// negotiableTypes mirrors the html, json, text preference of the learn site
var negotiableTypes = []string{"text/html", "application/json", "text/plain"}

// wantsJSON reports whether JSON is the best match for the Accept header.
// A missing header or */* selects html.
func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return false
	}
	return goautoneg.Negotiate(accept, negotiableTypes) == "application/json"
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := s.health.CheckAll(r.Context())

	checks := make(map[string]string, len(results))
	ready := true
	for name, err := range results {
		if err != nil {
			ready = false
			checks[name] = err.Error()
			s.logger.Warn().Err(err).Str("check", name).Msg("readiness check failed")
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		s.writeJSON(w, http.StatusServiceUnavailable, apiResponse{
			Success: false,
			Data:    map[string]interface{}{"status": "not_ready", "checks": checks},
			Error:   &apiError{Code: "not_ready", Message: "service not ready"},
		})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}

// Leaderboard handlers

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := int64(10) // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.ParseInt(limitStr, 10, 64); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	entries, err := s.leaderboard.Top(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("failed to load leaderboard")
		s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to load leaderboard")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

// CSRF handlers

func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"token": csrf.Token(r),
	})
}

func (s *Server) handleCSRFFailure(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn().
		Err(csrf.FailureReason(r)).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("csrf check failed")

	if wantsJSON(r) {
		s.respondError(w, http.StatusForbidden, "csrf_failed", "invalid CSRF token")
		return
	}
	w.WriteHeader(http.StatusForbidden)
}
