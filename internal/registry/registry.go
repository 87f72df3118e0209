package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"snaplink/models"
)

// ErrNotFound is returned for any operation against an unknown session id.
var ErrNotFound = errors.New("session not found")

// Registry is the single source of truth for capture sessions while the
// process runs. All mutation goes through one mutex; reads hand out deep
// copies so callers never see the live maps or slices.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*models.SessionRecord
}

func New() *Registry {
	return &Registry{sessions: make(map[string]*models.SessionRecord)}
}

// NewFrom builds a registry pre-populated with imported records, skipping
// duplicates by id. Used by the disk rehydration path at startup.
func NewFrom(records []models.SessionRecord) *Registry {
	r := New()
	for _, rec := range records {
		if _, ok := r.sessions[rec.ID]; ok {
			continue
		}
		c := rec.Clone()
		r.sessions[rec.ID] = &c
	}
	return r
}

// Create issues a fresh session with an unguessable id.
func (r *Registry) Create(ownerName string) models.SessionRecord {
	rec := models.SessionRecord{
		ID:        uuid.NewString(),
		OwnerName: ownerName,
		CreatedAt: time.Now(),
		Images:    []models.ImageRef{},
	}

	r.mu.Lock()
	// uuid collisions are negligible, but never clobber an existing record
	for r.sessions[rec.ID] != nil {
		rec.ID = uuid.NewString()
	}
	c := rec.Clone()
	r.sessions[rec.ID] = &c
	r.mu.Unlock()

	return rec
}

// GetOrCreate returns the session for a client-chosen id, creating it on
// first sight. An existing record keeps its original owner name and
// creation time.
func (r *Registry) GetOrCreate(id, ownerName string) models.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.sessions[id]; ok {
		return rec.Clone()
	}
	rec := &models.SessionRecord{
		ID:        id,
		OwnerName: ownerName,
		CreatedAt: time.Now(),
		Images:    []models.ImageRef{},
	}
	r.sessions[id] = rec
	return rec.Clone()
}

// Get returns a copy of the session, if it exists.
func (r *Registry) Get(id string) (models.SessionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[id]
	if !ok {
		return models.SessionRecord{}, false
	}
	return rec.Clone(), true
}

// AppendImage records a stored capture against an existing session.
func (r *Registry) AppendImage(id string, ref models.ImageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	rec.Images = append(rec.Images, ref)
	return nil
}

// MarkConsumed flips the one-shot flag. Calling it on an already consumed
// session is a no-op, not an error.
func (r *Registry) MarkConsumed(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	rec.Consumed = true
	return nil
}

// Delete removes the session and returns the final record so the caller
// can clean up backing storage.
func (r *Registry) Delete(id string) (models.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return models.SessionRecord{}, ErrNotFound
	}
	delete(r.sessions, id)
	return rec.Clone(), nil
}

// List returns a snapshot of every session, newest first.
func (r *Registry) List() []models.SessionRecord {
	r.mu.RLock()
	out := make([]models.SessionRecord, 0, len(r.sessions))
	for _, rec := range r.sessions {
		out = append(out, rec.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len reports how many sessions are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

