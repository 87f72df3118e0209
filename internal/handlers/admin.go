package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"

	"snaplink/internal/auth"
	"snaplink/internal/metrics"
	"snaplink/internal/registry"
	"snaplink/internal/store"
	"snaplink/internal/ws"
	"snaplink/web"
)

// Credentials is the single static admin login pair.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) match(username, password string) bool {
	u := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username))
	p := subtle.ConstantTimeCompare([]byte(password), []byte(c.Password))
	return u == 1 && p == 1
}

// LoginPageHandler renders the login form.
func LoginPageHandler(w http.ResponseWriter, r *http.Request) {
	renderLogin(w, "")
}

// LoginHandler checks the submitted credentials and sets the admin cookie
// flag on success.
func LoginHandler(w http.ResponseWriter, r *http.Request, creds Credentials, sessionStore sessions.Store) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	if !creds.match(username, password) {
		log.Warn().Str("username", username).Msg("failed admin login")
		w.WriteHeader(http.StatusUnauthorized)
		renderLogin(w, "Invalid username or password")
		return
	}

	session, _ := sessionStore.Get(r, auth.SessionName)
	session.Values["logged_in"] = true
	if err := session.Save(r, w); err != nil {
		log.Error().Err(err).Msg("save admin session")
		http.Error(w, "failed to save session", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/admin/panel", http.StatusSeeOther)
}

// LogoutHandler clears the admin cookie flag.
func LogoutHandler(w http.ResponseWriter, r *http.Request, sessionStore sessions.Store) {
	session, _ := sessionStore.Get(r, auth.SessionName)
	session.Values["logged_in"] = false
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		log.Error().Err(err).Msg("clear admin session")
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// PanelHandler lists every session, newest first.
func PanelHandler(w http.ResponseWriter, r *http.Request, reg *registry.Registry) {
	data := map[string]any{"Sessions": reg.List()}
	if err := web.Templates.ExecuteTemplate(w, "admin.html", data); err != nil {
		log.Error().Err(err).Msg("render admin panel")
	}
}

// GenerateLinkHandler issues a fresh one-time capture link.
func GenerateLinkHandler(w http.ResponseWriter, r *http.Request, reg *registry.Registry, meta MetadataWriter, m *metrics.Metrics) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}

	rec := reg.Create(req.Name)
	if meta != nil {
		if err := meta.SaveMetadata(rec); err != nil {
			log.Warn().Err(err).Str("session", rec.ID).Msg("metadata write failed")
		}
	}
	m.SessionsCreated.Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"id":      rec.ID,
		"url":     "/camera/" + rec.ID,
	})
}

type captureView struct {
	FullURL    string
	ThumbURL   string
	CapturedAt time.Time
}

// ShowCapturesHandler renders the image grid for one session.
func ShowCapturesHandler(w http.ResponseWriter, r *http.Request, reg *registry.Registry, local *store.Local) {
	id := chi.URLParam(r, "id")

	rec, ok := reg.Get(id)
	if !ok {
		http.Error(w, "no data for this session", http.StatusNotFound)
		return
	}

	views := make([]captureView, 0, len(rec.Images))
	for _, img := range rec.Images {
		v := captureView{FullURL: img.Locator, ThumbURL: img.Locator, CapturedAt: img.CapturedAt}
		if local != nil {
			// local locators are disk paths, served through the capture routes
			base := filepath.Base(img.Locator)
			v.FullURL = "/captures/" + id + "/" + base
			v.ThumbURL = "/thumbnail/" + id + "/" + base
		}
		views = append(views, v)
	}

	data := map[string]any{"Session": rec, "Images": views}
	if err := web.Templates.ExecuteTemplate(w, "captures.html", data); err != nil {
		log.Error().Err(err).Msg("render captures page")
	}
}

// DeleteSessionHandler removes the registry entry first, then cleans up
// backing storage best-effort. A reader never sees a half-deleted record;
// a failed remote delete is logged and does not resurrect the session.
func DeleteSessionHandler(w http.ResponseWriter, r *http.Request, reg *registry.Registry, st store.ImageStore, meta MetadataWriter, hub *ws.Hub, m *metrics.Metrics) {
	id := chi.URLParam(r, "id")

	rec, err := reg.Delete(id)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"success": false})
		return
	}

	for _, img := range rec.Images {
		if err := st.Delete(context.Background(), img); err != nil {
			log.Warn().Err(err).Str("session", id).Str("locator", img.Locator).Msg("backing image delete failed")
		}
	}
	if meta != nil {
		if err := meta.RemoveSession(id); err != nil {
			log.Warn().Err(err).Str("session", id).Msg("session dir removal failed")
		}
	}

	hub.Notify(ws.Event{Type: ws.EventSessionDeleted, SessionID: id, OwnerName: rec.OwnerName})
	m.SessionsDeleted.Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func renderLogin(w http.ResponseWriter, errMsg string) {
	if err := web.Templates.ExecuteTemplate(w, "login.html", map[string]string{"Error": errMsg}); err != nil {
		log.Error().Err(err).Msg("render login page")
	}
}
