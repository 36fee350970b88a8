// Package handlers exposes the service over a JSON HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/musicvault/musicvault/internal/auth"
	"github.com/musicvault/musicvault/internal/dao"
	"github.com/musicvault/musicvault/internal/domain"
	"github.com/musicvault/musicvault/internal/logger"
	"github.com/musicvault/musicvault/internal/metastore"
	"github.com/musicvault/musicvault/internal/player"
	"github.com/musicvault/musicvault/internal/reconciler"
)

type Handler struct {
	Auth       *auth.Service
	Reconciler *reconciler.Reconciler
	Player     *player.Player
	Library    *dao.Library
	Store      *metastore.DB
	Log        *logger.Logger
}

func NewHandler(a *auth.Service, r *reconciler.Reconciler, p *player.Player,
	lib *dao.Library, store *metastore.DB, log *logger.Logger) *Handler {
	return &Handler{
		Auth:       a,
		Reconciler: r,
		Player:     p,
		Library:    lib,
		Store:      store,
		Log:        log.WithComponent("http"),
	}
}

type ctxKey int

const userKey ctxKey = 0

// requireUser wraps a handler so it only runs with a valid bearer session.
func (h *Handler) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		user, err := h.Auth.UserFor(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "not signed in")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	}
}

func currentUser(r *http.Request) *domain.User {
	user, _ := r.Context().Value(userKey).(*domain.User)
	return user
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
