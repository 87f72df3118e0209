package store

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"snaplink/models"
)

// Cloudinary uploads captures to the Cloudinary image API. Requests carry
// a SHA-1 signature over the sorted parameters plus the API secret, per
// their upload protocol. The returned public_id becomes the ExternalID
// used by destroy calls.
type Cloudinary struct {
	http      *resty.Client
	apiKey    string
	apiSecret string
}

type CloudinaryOptions struct {
	CloudName string
	APIKey    string
	APISecret string
	Timeout   time.Duration

	// BaseURL overrides the API endpoint, for tests.
	BaseURL string
}

type cloudinaryUploadResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
}

type cloudinaryDestroyResponse struct {
	Result string `json:"result"`
}

func NewCloudinary(opts CloudinaryOptions) *Cloudinary {
	base := opts.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://api.cloudinary.com/v1_1/%s", opts.CloudName)
	}

	r := resty.New()
	r.SetBaseURL(base)
	r.SetTimeout(opts.Timeout)

	return &Cloudinary{
		http:      r,
		apiKey:    opts.APIKey,
		apiSecret: opts.APISecret,
	}
}

func (c *Cloudinary) Put(ctx context.Context, sessionID, captureType string, data []byte) (models.ImageRef, error) {
	now := time.Now()
	publicID := fmt.Sprintf("captures/%s/%s", sessionID, objectName(captureType, now))
	timestamp := fmt.Sprintf("%d", now.Unix())

	params := map[string]string{
		"public_id": publicID,
		"timestamp": timestamp,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"file":      "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
			"api_key":   c.apiKey,
			"public_id": publicID,
			"timestamp": timestamp,
			"signature": c.sign(params),
		}).
		SetResult(&cloudinaryUploadResponse{}).
		Post("/image/upload")
	if err != nil {
		return models.ImageRef{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if resp.IsError() {
		return models.ImageRef{}, fmt.Errorf("%w: cloudinary returned %s: %s", ErrUploadFailed, resp.Status(), resp.String())
	}

	result, ok := resp.Result().(*cloudinaryUploadResponse)
	if !ok || result.SecureURL == "" {
		return models.ImageRef{}, fmt.Errorf("%w: malformed cloudinary response", ErrUploadFailed)
	}

	return models.ImageRef{
		Locator:    result.SecureURL,
		ExternalID: result.PublicID,
		CapturedAt: now,
	}, nil
}

func (c *Cloudinary) Delete(ctx context.Context, ref models.ImageRef) error {
	if ref.ExternalID == "" {
		return nil
	}
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	params := map[string]string{
		"public_id": ref.ExternalID,
		"timestamp": timestamp,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"public_id": ref.ExternalID,
			"api_key":   c.apiKey,
			"timestamp": timestamp,
			"signature": c.sign(params),
		}).
		SetResult(&cloudinaryDestroyResponse{}).
		Post("/image/destroy")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("cloudinary destroy returned %s: %s", resp.Status(), resp.String())
	}
	return nil
}

// sign builds the SHA-1 request signature: parameters sorted by name,
// joined as key=value pairs with '&', with the API secret appended.
func (c *Cloudinary) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return fmt.Sprintf("%x", sum)
}
