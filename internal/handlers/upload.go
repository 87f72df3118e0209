package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"snaplink/internal/metrics"
	"snaplink/internal/registry"
	"snaplink/internal/store"
	"snaplink/internal/ws"
	"snaplink/models"
)

// MetadataWriter persists registry state next to the images. Only the
// local backend implements it; remote backends pass nil.
type MetadataWriter interface {
	SaveMetadata(rec models.SessionRecord) error
	RemoveSession(id string) error
}

type uploadRequest struct {
	Image     string `json:"image"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// UploadHandler accepts one captured JPEG, persists it, and records it
// against the session. The store call runs before any registry mutation,
// so a failed upload leaves the registry untouched.
func UploadHandler(w http.ResponseWriter, r *http.Request, reg *registry.Registry, st store.ImageStore, meta MetadataWriter, hub *ws.Hub, m *metrics.Metrics, timeout time.Duration) {
	req, data, err := parseUpload(r)
	if err != nil {
		m.Uploads.WithLabelValues("bad_request").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	ref, err := st.Put(ctx, req.SessionID, req.Type, data)
	if err != nil {
		log.Error().Err(err).Str("session", req.SessionID).Msg("image store put failed")
		m.Uploads.WithLabelValues("store_error").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"error": "failed to store image"})
		return
	}

	_, existed := reg.Get(req.SessionID)
	rec := reg.GetOrCreate(req.SessionID, req.Name)
	if !existed {
		m.SessionsCreated.Inc()
	}

	if err := reg.AppendImage(req.SessionID, ref); err != nil {
		// session deleted between GetOrCreate and append; drop the orphan
		log.Warn().Err(err).Str("session", req.SessionID).Msg("append after delete, removing stored image")
		if derr := st.Delete(context.Background(), ref); derr != nil {
			log.Warn().Err(derr).Str("locator", ref.Locator).Msg("orphan cleanup failed")
		}
		m.Uploads.WithLabelValues("not_found").Inc()
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	if meta != nil {
		if current, ok := reg.Get(req.SessionID); ok {
			if err := meta.SaveMetadata(current); err != nil {
				log.Warn().Err(err).Str("session", req.SessionID).Msg("metadata write failed")
			}
		}
	}

	hub.Notify(ws.Event{
		Type:      ws.EventCaptureNew,
		SessionID: req.SessionID,
		OwnerName: rec.OwnerName,
		URL:       ref.Locator,
	})
	m.Uploads.WithLabelValues("ok").Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"url":     ref.Locator,
	})
}

// parseUpload reads either the JSON body the capture page sends (base64
// data URL) or a multipart form with a "photo" file part. All four fields
// are required; nothing is written before validation passes.
func parseUpload(r *http.Request) (uploadRequest, []byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return parseMultipartUpload(r)
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return uploadRequest{}, nil, errBadRequest("invalid JSON body")
	}
	if req.Image == "" || req.Name == "" || req.Type == "" || req.SessionID == "" {
		return uploadRequest{}, nil, errBadRequest("missing required fields")
	}

	data, err := decodeDataURL(req.Image)
	if err != nil {
		return uploadRequest{}, nil, err
	}
	return req, data, nil
}

func parseMultipartUpload(r *http.Request) (uploadRequest, []byte, error) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		return uploadRequest{}, nil, errBadRequest("invalid multipart form")
	}

	req := uploadRequest{
		Name:      r.FormValue("name"),
		Type:      r.FormValue("type"),
		SessionID: r.FormValue("sessionId"),
	}
	file, _, err := r.FormFile("photo")
	if err != nil {
		return uploadRequest{}, nil, errBadRequest("missing photo")
	}
	defer file.Close()

	if req.Name == "" || req.Type == "" || req.SessionID == "" {
		return uploadRequest{}, nil, errBadRequest("missing required fields")
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return uploadRequest{}, nil, errBadRequest("unreadable photo")
	}
	if len(data) == 0 {
		return uploadRequest{}, nil, errBadRequest("empty photo")
	}
	return req, data, nil
}

func decodeDataURL(image string) ([]byte, error) {
	payload := image
	if i := strings.Index(payload, "base64,"); i >= 0 {
		payload = payload[i+len("base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errBadRequest("invalid base64 image data")
	}
	if len(data) == 0 {
		return nil, errBadRequest("empty image")
	}
	return data, nil
}

type errBadRequest string

func (e errBadRequest) Error() string { return string(e) }
