package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/nerrad567/fleet-relay/internal/telegram"
)

// headerWebhookSecret carries the secret given to setWebhook.
const headerWebhookSecret = "X-Telegram-Bot-Api-Secret-Token"

// handleWebhook decodes a Telegram update and runs it through the dispatcher.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if secret := s.botCfg.WebhookSecret; secret != "" {
		got := r.Header.Get(headerWebhookSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			s.logger.Warn("webhook secret mismatch", "request_id", r.Context().Value(ctxKeyRequestID))
			writeUnauthorized(w, "invalid webhook secret")
			return
		}
	}

	var upd telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.logger.Warn("malformed webhook body", "error", err)
		writeJSON(w, http.StatusOK, webhookResponse{Status: "error", Message: "invalid update payload"})
		return
	}

	if err := s.dispatcher.Process(r.Context(), &upd); err != nil {
		s.logger.Error("processing update failed", "update_id", upd.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, webhookResponse{Status: "error", Message: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Status: "ok"})
}

// handleHealth reports liveness. It never touches optional backends.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"bot_token_set": s.botCfg.Token != "",
		"version":       s.version,
	})
}
