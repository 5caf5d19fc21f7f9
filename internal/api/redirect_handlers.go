package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/terra-clan/challenge-tracker/internal/storage"
)

func (s *Server) handleCurrentChallenge(w http.ResponseWriter, r *http.Request) {
	var challengeID string

	if claims := ClaimsFromContext(r.Context()); claims != nil && s.users != nil {
		user, err := s.users.GetUser(r.Context(), claims.UserID())
		switch {
		case err == nil:
			challengeID = user.CurrentChallengeID
		case errors.Is(err, storage.ErrUserNotFound):
		default:
			s.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("failed to load user")
			s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to load user")
			return
		}
	}

	target, err := s.catalog.ChallengeURL(s.config.LearnURL, challengeID)
	if err != nil {
		s.logger.Error().Err(err).Str("challenge_id", challengeID).Msg("catalog may not be properly seeded")
		s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to find current challenge")
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleRedirectToLearn(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.catalog.LegacyURL(s.config.LearnURL, r.URL.Path), http.StatusFound)
}
