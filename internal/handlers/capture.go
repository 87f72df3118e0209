package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"snaplink/internal/metrics"
	"snaplink/internal/registry"
	"snaplink/web"
)

// CapturePageHandler serves the camera page for a link. The first visit
// consumes the link; a consumed link renders the already-used page unless
// reuse is allowed globally or via the ?reuse=1 override.
func CapturePageHandler(w http.ResponseWriter, r *http.Request, reg *registry.Registry, meta MetadataWriter, allowReuse bool, m *metrics.Metrics) {
	id := chi.URLParam(r, "id")

	rec, ok := reg.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	reuse := allowReuse || r.URL.Query().Get("reuse") == "1"
	if rec.Consumed && !reuse {
		if err := web.Templates.ExecuteTemplate(w, "consumed.html", nil); err != nil {
			log.Error().Err(err).Msg("render consumed page")
		}
		return
	}

	if err := reg.MarkConsumed(id); err != nil {
		// deleted between Get and the transition
		http.NotFound(w, r)
		return
	}
	if meta != nil {
		if current, ok := reg.Get(id); ok {
			if err := meta.SaveMetadata(current); err != nil {
				log.Warn().Err(err).Str("session", id).Msg("metadata write failed")
			}
		}
	}
	m.CapturesServed.Inc()

	data := map[string]string{
		"SessionID": id,
		"OwnerName": rec.OwnerName,
	}
	if err := web.Templates.ExecuteTemplate(w, "capture.html", data); err != nil {
		log.Error().Err(err).Msg("render capture page")
	}
}

// IndexHandler serves the landing page.
func IndexHandler(w http.ResponseWriter, r *http.Request) {
	if err := web.Templates.ExecuteTemplate(w, "index.html", nil); err != nil {
		log.Error().Err(err).Msg("render index page")
	}
}
