package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"snaplink/internal/registry"
	"snaplink/models"
)

// Local writes captures under one directory per session id and keeps a
// session.json beside them so the registry can be rehydrated at startup.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{root: root}, nil
}

// Root returns the base upload directory.
func (l *Local) Root() string { return l.root }

func (l *Local) Put(ctx context.Context, sessionID, captureType string, data []byte) (models.ImageRef, error) {
	now := time.Now()
	dir := filepath.Join(l.root, sanitize(sessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.ImageRef{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	stem := objectName(sanitize(captureType), now)
	path, err := writeUnique(dir, stem, data)
	if err != nil {
		return models.ImageRef{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	return models.ImageRef{Locator: path, CapturedAt: now}, nil
}

func (l *Local) Delete(ctx context.Context, ref models.ImageRef) error {
	path := filepath.Clean(ref.Locator)
	if !strings.HasPrefix(path, filepath.Clean(l.root)) {
		return fmt.Errorf("locator %q outside upload dir", ref.Locator)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SaveMetadata writes the session's metadata file so a restart can
// rehydrate the registry.
func (l *Local) SaveMetadata(rec models.SessionRecord) error {
	dir := filepath.Join(l.root, sanitize(rec.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	meta := registry.Metadata{
		OwnerName: rec.OwnerName,
		Timestamp: rec.CreatedAt,
		Consumed:  rec.Consumed,
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, registry.MetadataFile), raw, 0o644)
}

// RemoveSession drops the whole session directory after its registry
// entry is gone.
func (l *Local) RemoveSession(id string) error {
	return os.RemoveAll(filepath.Join(l.root, sanitize(id)))
}

// writeUnique creates <stem>.jpg, suffixing a counter when two captures
// land in the same millisecond. The suffix keeps lexical order intact.
func writeUnique(dir, stem string, data []byte) (string, error) {
	name := stem + ".jpg"
	for i := 1; ; i++ {
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				name = fmt.Sprintf("%s_%d.jpg", stem, i)
				continue
			}
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", err
		}
		return path, f.Close()
	}
}

// sanitize strips anything that could escape the session directory.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, s)
}
