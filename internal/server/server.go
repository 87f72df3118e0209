package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/sessions"

	"snaplink/internal/auth"
	"snaplink/internal/config"
	"snaplink/internal/handlers"
	"snaplink/internal/metrics"
	"snaplink/internal/registry"
	"snaplink/internal/store"
	"snaplink/internal/ws"
	"snaplink/web"
)

// Deps is everything the router needs. Local is nil unless the local
// backend is active; handlers fall back to remote locators without it.
type Deps struct {
	Config   config.Config
	Registry *registry.Registry
	Store    store.ImageStore
	Local    *store.Local
	Sessions sessions.Store
	Hub      *ws.Hub
	Metrics  *metrics.Metrics
}

// New assembles the full route table. main and the handler tests share it.
func New(d Deps) chi.Router {
	var meta handlers.MetadataWriter
	if d.Local != nil {
		meta = d.Local
	}
	creds := handlers.Credentials{
		Username: d.Config.AdminUsername,
		Password: d.Config.AdminPassword,
	}
	thumbs := handlers.NewThumbnailCache()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", handlers.IndexHandler)
	r.Handle("/static/*", web.Static())
	r.Handle("/metrics", d.Metrics.Handler())

	r.Get("/camera/{id}", func(w http.ResponseWriter, r *http.Request) {
		handlers.CapturePageHandler(w, r, d.Registry, meta, d.Config.AllowLinkReuse, d.Metrics)
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(
			20,
			1*time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		))
		r.Post("/upload", func(w http.ResponseWriter, r *http.Request) {
			handlers.UploadHandler(w, r, d.Registry, d.Store, meta, d.Hub, d.Metrics, d.Config.UploadTimeout)
		})
	})

	r.Get("/login", handlers.LoginPageHandler)
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		handlers.LoginHandler(w, r, creds, d.Sessions)
	})
	r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
		handlers.LogoutHandler(w, r, d.Sessions)
	})

	// Admin routes behind the cookie gate
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin(d.Sessions))

		r.Get("/admin/panel", func(w http.ResponseWriter, r *http.Request) {
			handlers.PanelHandler(w, r, d.Registry)
		})
		r.Post("/generate-link", func(w http.ResponseWriter, r *http.Request) {
			handlers.GenerateLinkHandler(w, r, d.Registry, meta, d.Metrics)
		})
		r.Get("/show-captures/{id}", func(w http.ResponseWriter, r *http.Request) {
			handlers.ShowCapturesHandler(w, r, d.Registry, d.Local)
		})
		r.Delete("/delete-session/{id}", func(w http.ResponseWriter, r *http.Request) {
			handlers.DeleteSessionHandler(w, r, d.Registry, d.Store, meta, d.Hub, d.Metrics)
		})
		r.Get("/admin/ws", d.Hub.ServeWS)

		if d.Local != nil {
			r.Get("/captures/{id}/{file}", func(w http.ResponseWriter, r *http.Request) {
				handlers.CaptureFileHandler(w, r, d.Local)
			})
			r.Get("/thumbnail/{id}/{file}", func(w http.ResponseWriter, r *http.Request) {
				handlers.ThumbnailHandler(w, r, d.Local, thumbs)
			})
		}
	})

	return r
}
