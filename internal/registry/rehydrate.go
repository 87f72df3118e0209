package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"snaplink/models"
)

// MetadataFile is the name of the per-session metadata file inside each
// session directory.
const MetadataFile = "session.json"

// Metadata is what the local backend persists next to a session's images.
type Metadata struct {
	OwnerName string    `json:"ownerName"`
	Timestamp time.Time `json:"timestamp"`
	Consumed  bool      `json:"consumed"`
}

// Import rebuilds session records from a directory tree laid out as one
// subdirectory per session id, each holding JPEG captures and an optional
// session.json. Sessions with malformed metadata are skipped with a log
// line; a directory without metadata imports with an empty owner name.
// Import never fails because of a single bad session.
func Import(root string) ([]models.SessionRecord, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read upload dir: %w", err)
	}

	var records []models.SessionRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := importSession(root, entry.Name())
		if err != nil {
			log.Warn().Err(err).Str("session", entry.Name()).Msg("skipping session during rehydration")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func importSession(root, id string) (models.SessionRecord, error) {
	dir := filepath.Join(root, id)

	rec := models.SessionRecord{
		ID:     id,
		Images: []models.ImageRef{},
	}

	raw, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	switch {
	case err == nil:
		var meta Metadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return models.SessionRecord{}, fmt.Errorf("parse %s: %w", MetadataFile, err)
		}
		rec.OwnerName = meta.OwnerName
		rec.CreatedAt = meta.Timestamp
		rec.Consumed = meta.Consumed
	case os.IsNotExist(err):
		// images without metadata are still worth listing
	default:
		return models.SessionRecord{}, fmt.Errorf("read %s: %w", MetadataFile, err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("read session dir: %w", err)
	}

	var names []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".jpg") {
			continue
		}
		names = append(names, f.Name())
	}
	// filenames embed the capture timestamp, so name order is capture order
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		rec.Images = append(rec.Images, models.ImageRef{
			Locator:    path,
			CapturedAt: captureTime(dir, name),
		})
	}

	if rec.CreatedAt.IsZero() {
		if info, err := os.Stat(dir); err == nil {
			rec.CreatedAt = info.ModTime()
		} else {
			rec.CreatedAt = time.Now()
		}
	}
	return rec, nil
}

// captureTime recovers the capture timestamp from a filename of the form
// <type>_<unixms>.jpg, falling back to the file's mtime.
func captureTime(dir, name string) time.Time {
	base := strings.TrimSuffix(name, ".jpg")
	if i := strings.LastIndex(base, "_"); i >= 0 {
		var ms int64
		if _, err := fmt.Sscanf(base[i+1:], "%d", &ms); err == nil && ms > 0 {
			return time.UnixMilli(ms)
		}
	}
	if info, err := os.Stat(filepath.Join(dir, name)); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}
