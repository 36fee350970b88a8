package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/musicvault/musicvault/internal/auth"
	"github.com/musicvault/musicvault/internal/dao"
	"github.com/musicvault/musicvault/internal/filesystem"
	"github.com/musicvault/musicvault/internal/player"
	"github.com/musicvault/musicvault/internal/tagging"
)

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", h.SignUp)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)

		r.Get("/music/available", h.AvailableMusic)
		r.Get("/music/local", h.LocalMusic)
		r.Get("/music/downloaded", h.requireUser(h.DownloadedMusic))
		r.Post("/music/{name}/download", h.requireUser(h.Download))
		r.Delete("/music/{name}", h.requireUser(h.DeleteMusic))
		r.Post("/music/{name}/favorite", h.requireUser(h.Favorite))
		r.Get("/music/{name}/artwork", h.Artwork)
		r.Get("/music/{name}/stream", h.Stream)
		r.Post("/music/{name}/play", h.Play)

		r.Post("/player/stop", h.StopPlayer)
		r.Get("/player", h.PlayerState)

		r.Post("/sync", h.requireUser(h.Sync))
		r.Get("/intents", h.Intents)
		r.Get("/progress", h.Progress)

		r.Get("/library", h.LibraryList)
		r.Post("/library", h.LibraryInsert)

		r.Get("/tables", h.Tables)
	})
}

func assetName(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return name
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Birthday string `json:"birthday"` // MM-DD-YYYY
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	birthday, err := time.Parse("01-02-2006", req.Birthday)
	if err != nil {
		writeError(w, http.StatusBadRequest, "birthday must be MM-DD-YYYY")
		return
	}

	user, err := h.Auth.SignUp(req.Name, req.Email, req.Password, birthday)
	if err != nil {
		switch {
		case errors.Is(err, dao.ErrEmailTaken):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, err := h.Auth.SignIn(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	h.Auth.SignOut(trimBearer(token))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func trimBearer(s string) string {
	const prefix = "Bearer "
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

func (h *Handler) AvailableMusic(w http.ResponseWriter, r *http.Request) {
	names, err := h.Reconciler.RefreshAvailable(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": names})
}

func (h *Handler) LocalMusic(w http.ResponseWriter, r *http.Request) {
	names, err := h.Reconciler.ListLocal()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"local": names})
}

func (h *Handler) DownloadedMusic(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	states, err := h.Reconciler.RefreshDownloaded(r.Context(), user.Email)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"downloaded": states})
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	intent, err := h.Reconciler.Enqueue(user.Email, assetName(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, intent)
}

func (h *Handler) DeleteMusic(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if err := h.Reconciler.Delete(r.Context(), user.Email, assetName(r)); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) Favorite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Favorite bool `json:"favorite"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	user := currentUser(r)
	if err := h.Reconciler.SetFavorite(r.Context(), user.Email, assetName(r), req.Favorite); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) Artwork(w http.ResponseWriter, r *http.Request) {
	name := assetName(r)
	path := filepath.Join(h.Reconciler.MusicDir(), filesystem.Sanitize(name))
	if !filesystem.Exists(path) {
		writeError(w, http.StatusNotFound, "asset not downloaded: "+name)
		return
	}

	data, mime, err := tagging.ExtractArtwork(path)
	if err != nil {
		if errors.Is(err, tagging.ErrNoArtwork) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", mime)
	_, _ = w.Write(data)
}

func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	name := assetName(r)
	path, err := h.Player.Play(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	http.ServeFile(w, r, path)
}

func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	path, err := h.Player.Play(assetName(r))
	if err != nil {
		if errors.Is(err, player.ErrNotDownloaded) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"playing": h.Player.Current(), "path": path})
}

func (h *Handler) StopPlayer(w http.ResponseWriter, r *http.Request) {
	h.Player.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) PlayerState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"playing": h.Player.Current()})
}

func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	states, err := h.Reconciler.RefreshDownloaded(r.Context(), user.Email)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	missing := 0
	for _, s := range states {
		if !s.OnDisk {
			missing++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": states, "healing": missing})
}

func (h *Handler) Intents(w http.ResponseWriter, r *http.Request) {
	intents, err := h.Reconciler.Intents().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"intents": intents})
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"progress":   h.Reconciler.Progress(),
		"last_error": h.Reconciler.LastError(),
	})
}

func (h *Handler) LibraryList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Library.Entries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"library": entries})
}

func (h *Handler) LibraryInsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MusicName string `json:"music_name"`
		Author    string `json:"author"`
	}
	if err := decodeJSON(r, &req); err != nil || req.MusicName == "" {
		writeError(w, http.StatusBadRequest, "music_name is required")
		return
	}

	if err := h.Library.Insert(req.MusicName, req.Author); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}

func (h *Handler) Tables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.Store.ListTables()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}
