package handlers

import (
	"errors"
	"net/http"

	"camwatch/internal/core"
	"camwatch/internal/logger"
	"camwatch/internal/middleware"
	"camwatch/internal/store"

	"github.com/google/uuid"
)

// BindAuthCodeHandler attaches a notification auth code to the account.
// One code per account; the existing one is reported on conflict. If the
// client supplies no code a fresh one is generated.
func BindAuthCodeHandler(st *store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := middleware.Username(r.Context())

		var req struct {
			Code string `json:"code"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, log, "malformed request body")
			return
		}
		if req.Code == "" {
			req.Code = uuid.NewString()
		}

		code, err := st.BindAuthCode(username, req.Code)
		if errors.Is(err, core.ErrExists) {
			writeJSON(w, log, http.StatusConflict, map[string]interface{}{
				"error":     errorBody{Kind: "conflict", Message: "auth code already generated for this account"},
				"auth_code": code,
			})
			return
		}
		if err != nil {
			writeError(w, log, err)
			return
		}

		log.Info("Bound auth code for %s", username)
		writeJSON(w, log, http.StatusOK, map[string]string{"status": "success", "auth_code": code})
	}
}

// LinkChatHandler completes the relay-side linking handshake: the relay
// reports which chat claimed an auth code. No session gates this call;
// the code itself is the credential.
func LinkChatHandler(st *store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code   string `json:"code"`
			ChatID string `json:"chat_id"`
		}
		if err := decodeJSON(r, &req); err != nil || req.Code == "" || req.ChatID == "" {
			writeBadRequest(w, log, "code and chat_id are required")
			return
		}

		username, err := st.LinkChat(req.Code, req.ChatID)
		if err != nil {
			writeError(w, log, err)
			return
		}

		log.Info("Linked chat %s to user %s", req.ChatID, username)
		writeJSON(w, log, http.StatusOK, statusOK)
	}
}
