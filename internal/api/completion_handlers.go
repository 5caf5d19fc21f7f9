package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/terra-clan/challenge-tracker/internal/completion"
	"github.com/terra-clan/challenge-tracker/internal/storage"
)

type validationResponse struct {
	Errors map[string]completion.FieldError `json:"errors"`
}

type flash struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type flashResponse struct {
	Flash flash `json:"flash"`
}

// completionHandler serves one completion route. Anonymous callers get a
// 200 "true" without any validation or storage access.
func (s *Server) completionHandler(variant completion.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			sendTrue(w)
			return
		}

		structured := wantsJSON(r)
		reqID := middleware.GetReqID(r.Context())

		sub, err := variant.Decode(r.Body)
		if err != nil {
			s.metrics.IncValidationFailure(variant.String())
			s.respondRejected(w, variant, err, structured)
			return
		}

		result, err := s.completions.Complete(r.Context(), claims.UserID(), sub)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				s.logger.Debug().Str("user_id", claims.UserID()).Msg("no user record for session")
				sendTrue(w)
				return
			}

			s.logger.Error().
				Err(err).
				Str("user_id", claims.UserID()).
				Str("challenge_id", sub.ID).
				Str("request_id", reqID).
				Msg("failed to record completion")

			if structured {
				s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to record completion")
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if structured {
			s.writeJSON(w, http.StatusOK, result)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) respondRejected(w http.ResponseWriter, variant completion.Variant, err error, structured bool) {
	s.logger.Debug().Err(err).Str("variant", variant.String()).Msg("completion rejected")

	if !structured {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var verr *completion.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeJSON(w, http.StatusForbidden, validationResponse{Errors: verr.Fields})
	case errors.Is(err, completion.ErrMissingGithubLink):
		s.writeJSON(w, http.StatusForbidden, flashResponse{
			Flash: flash{Type: "danger", Message: completion.MissingLinksMessage},
		})
	default:
		s.respondError(w, http.StatusForbidden, "invalid_request", err.Error())
	}
}

func sendTrue(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("true"))
}
