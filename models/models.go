package models

import "time"

// SessionRecord is a single capture link and everything uploaded under it.
// The ID is the opaque token embedded in the capture URL.
type SessionRecord struct {
	ID        string     `json:"id"`
	OwnerName string     `json:"ownerName"`
	CreatedAt time.Time  `json:"createdAt"`
	Consumed  bool       `json:"consumed"`
	Images    []ImageRef `json:"images"`
}

// ImageRef points at one stored capture. Locator is a local path or a
// remote URL; ExternalID is set only by remote backends and is what a
// later delete needs.
type ImageRef struct {
	Locator    string    `json:"locator"`
	ExternalID string    `json:"externalId,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Clone returns a deep copy so callers can hand records out of the
// registry without exposing the live Images slice.
func (s SessionRecord) Clone() SessionRecord {
	out := s
	out.Images = make([]ImageRef, len(s.Images))
	copy(out.Images, s.Images)
	return out
}
