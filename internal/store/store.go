package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snaplink/models"
)

// ErrUploadFailed marks persistence failures outside local control
// (network, quota). Handlers map it to a 500 and leave the registry alone.
var ErrUploadFailed = errors.New("image upload failed")

// ImageStore durably holds captured JPEGs and returns a locator for each.
// Delete is best-effort for remote backends.
type ImageStore interface {
	Put(ctx context.Context, sessionID, captureType string, data []byte) (models.ImageRef, error)
	Delete(ctx context.Context, ref models.ImageRef) error
}

// objectName builds the per-capture file stem: <type>_<unixms>. Keeping
// the millisecond timestamp in the name makes lexical order capture order.
func objectName(captureType string, at time.Time) string {
	return fmt.Sprintf("%s_%d", captureType, at.UnixMilli())
}
