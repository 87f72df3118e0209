package handlers

import (
	"bytes"
	"image"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/nfnt/resize"

	"snaplink/internal/store"
)

// ThumbnailCache keeps generated thumbnails in memory keyed by file path.
type ThumbnailCache struct {
	mu    sync.RWMutex
	cache map[string][]byte
}

func NewThumbnailCache() *ThumbnailCache {
	return &ThumbnailCache{cache: make(map[string][]byte)}
}

// CaptureFileHandler serves a stored capture from the local backend.
func CaptureFileHandler(w http.ResponseWriter, r *http.Request, local *store.Local) {
	path, ok := localCapturePath(r, local)
	if !ok {
		http.Error(w, "invalid file path", http.StatusBadRequest)
		return
	}
	http.ServeFile(w, r, path)
}

// ThumbnailHandler serves a 300px thumbnail of a local capture, generating
// and caching it on first request.
func ThumbnailHandler(w http.ResponseWriter, r *http.Request, local *store.Local, cache *ThumbnailCache) {
	path, ok := localCapturePath(r, local)
	if !ok {
		http.Error(w, "invalid file path", http.StatusBadRequest)
		return
	}

	cache.mu.RLock()
	cached, ok := cache.cache[path]
	cache.mu.RUnlock()
	if ok {
		writeThumb(w, cached)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		http.Error(w, "failed to decode image", http.StatusInternalServerError)
		return
	}

	thumb := resize.Thumbnail(300, 300, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		http.Error(w, "failed to encode thumbnail", http.StatusInternalServerError)
		return
	}

	cache.mu.Lock()
	cache.cache[path] = buf.Bytes()
	cache.mu.Unlock()

	writeThumb(w, buf.Bytes())
}

// localCapturePath resolves {id}/{file} inside the upload root, rejecting
// anything that escapes it.
func localCapturePath(r *http.Request, local *store.Local) (string, bool) {
	id := chi.URLParam(r, "id")
	file := chi.URLParam(r, "file")
	if id == "" || file == "" || !strings.HasSuffix(file, ".jpg") {
		return "", false
	}

	path := filepath.Join(local.Root(), id, file)
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(local.Root())) {
		return "", false
	}
	return path, true
}

func writeThumb(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
