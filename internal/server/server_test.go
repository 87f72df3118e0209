package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaplink/internal/config"
	"snaplink/internal/metrics"
	"snaplink/internal/registry"
	"snaplink/internal/store"
	"snaplink/internal/ws"
	"snaplink/models"
)

type env struct {
	cfg      config.Config
	registry *registry.Registry
	local    *store.Local
	server   *httptest.Server
	client   *http.Client
}

func newEnv(t *testing.T, mutate func(*Deps)) *env {
	t.Helper()

	cfg := config.Config{
		Port:           "0",
		AdminUsername:  "admin",
		AdminPassword:  "hunter2",
		SessionSecret:  "test-secret",
		StorageBackend: "local",
		UploadDir:      t.TempDir(),
		UploadTimeout:  5 * time.Second,
	}

	local, err := store.NewLocal(cfg.UploadDir)
	require.NoError(t, err)

	hub := ws.NewHub()
	go hub.Run()

	deps := Deps{
		Config:   cfg,
		Registry: registry.New(),
		Store:    local,
		Local:    local,
		Sessions: sessions.NewCookieStore([]byte(cfg.SessionSecret)),
		Hub:      hub,
		Metrics:  metrics.New(),
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv := httptest.NewServer(New(deps))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &env{
		cfg:      deps.Config,
		registry: deps.Registry,
		local:    local,
		server:   srv,
		client:   &http.Client{Jar: jar},
	}
}

func (e *env) noRedirects() {
	e.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
}

func (e *env) login(t *testing.T) {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+"/login", url.Values{
		"username": {"admin"},
		"password": {"hunter2"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (e *env) uploadJSON(t *testing.T, body map[string]string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := e.client.Post(e.server.URL+"/upload", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func dataURL(content string) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte(content))
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestUploadMissingFieldIsBadRequest(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.uploadJSON(t, map[string]string{
		"image": dataURL("jpeg"),
		"name":  "Alice",
		"type":  "camera",
		// sessionId missing
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, e.registry.Len())

	// nothing may have been written to the store either
	entries, err := os.ReadDir(e.cfg.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadCreatesSessionAndAppendsInOrder(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.uploadJSON(t, map[string]string{
		"image":     dataURL("first"),
		"name":      "Alice",
		"type":      "camera",
		"sessionId": "link-1",
	})
	body := decodeJSON(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["url"])

	resp = e.uploadJSON(t, map[string]string{
		"image":     dataURL("second"),
		"name":      "Someone Else",
		"type":      "camera",
		"sessionId": "link-1",
	})
	decodeJSON(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rec, ok := e.registry.Get("link-1")
	require.True(t, ok)
	assert.Equal(t, "Alice", rec.OwnerName, "first upload's name sticks")
	require.Len(t, rec.Images, 2)

	first, err := os.ReadFile(rec.Images[0].Locator)
	require.NoError(t, err)
	assert.Equal(t, "first", string(first))
	second, err := os.ReadFile(rec.Images[1].Locator)
	require.NoError(t, err)
	assert.Equal(t, "second", string(second))
}

func TestUploadMultipart(t *testing.T) {
	e := newEnv(t, nil)

	var buf bytes.Buffer
	mw := newMultipart(t, &buf, map[string]string{
		"name":      "Alice",
		"type":      "camera",
		"sessionId": "link-m",
	}, "photo", "capture.jpg", []byte("jpeg-bytes"))

	resp, err := e.client.Post(e.server.URL+"/upload", mw, &buf)
	require.NoError(t, err)
	body := decodeJSON(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	rec, ok := e.registry.Get("link-m")
	require.True(t, ok)
	require.Len(t, rec.Images, 1)
}

type failingStore struct{}

func (failingStore) Put(ctx context.Context, sessionID, captureType string, data []byte) (models.ImageRef, error) {
	return models.ImageRef{}, fmt.Errorf("%w: connection reset", store.ErrUploadFailed)
}

func (failingStore) Delete(ctx context.Context, ref models.ImageRef) error { return nil }

func TestUploadStoreFailureLeavesRegistryUntouched(t *testing.T) {
	e := newEnv(t, func(d *Deps) {
		d.Store = failingStore{}
		d.Local = nil
	})

	resp := e.uploadJSON(t, map[string]string{
		"image":     dataURL("jpeg"),
		"name":      "Alice",
		"type":      "camera",
		"sessionId": "link-1",
	})
	body := decodeJSON(t, resp)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
	assert.Equal(t, 0, e.registry.Len())
}

func TestAdminPanelRedirectsWithoutLogin(t *testing.T) {
	e := newEnv(t, nil)
	e.noRedirects()

	resp, err := e.client.Get(e.server.URL + "/admin/panel")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	e := newEnv(t, nil)

	resp, err := e.client.PostForm(e.server.URL+"/login", url.Values{
		"username": {"admin"},
		"password": {"wrong"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginThenPanelSucceeds(t *testing.T) {
	e := newEnv(t, nil)
	e.registry.GetOrCreate("link-1", "Alice")

	e.login(t)

	resp, err := e.client.Get(e.server.URL + "/admin/panel")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sb strings.Builder
	_, err = io.Copy(&sb, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "Alice")
}

func TestLogoutClosesTheGate(t *testing.T) {
	e := newEnv(t, nil)
	e.login(t)

	resp, err := e.client.Post(e.server.URL+"/logout", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	e.noRedirects()
	resp, err = e.client.Get(e.server.URL + "/admin/panel")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestShowCapturesUnknownSessionIs404(t *testing.T) {
	e := newEnv(t, nil)
	e.login(t)

	resp, err := e.client.Get(e.server.URL + "/show-captures/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteSessionRemovesAssetsAndEntry(t *testing.T) {
	e := newEnv(t, nil)

	for i := 0; i < 3; i++ {
		resp := e.uploadJSON(t, map[string]string{
			"image":     dataURL(fmt.Sprintf("capture-%d", i)),
			"name":      "Alice",
			"type":      "camera",
			"sessionId": "link-1",
		})
		decodeJSON(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	rec, ok := e.registry.Get("link-1")
	require.True(t, ok)
	require.Len(t, rec.Images, 3)

	e.login(t)
	req, err := http.NewRequest(http.MethodDelete, e.server.URL+"/delete-session/link-1", nil)
	require.NoError(t, err)
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	body := decodeJSON(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	_, ok = e.registry.Get("link-1")
	assert.False(t, ok)
	assert.Empty(t, e.registry.List())
	for _, img := range rec.Images {
		_, statErr := os.Stat(img.Locator)
		assert.True(t, os.IsNotExist(statErr), "asset %s should be gone", img.Locator)
	}
}

func TestDeleteUnknownSessionFails(t *testing.T) {
	e := newEnv(t, nil)
	e.login(t)

	req, err := http.NewRequest(http.MethodDelete, e.server.URL+"/delete-session/nope", nil)
	require.NoError(t, err)
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	body := decodeJSON(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestCapturePageLifecycle(t *testing.T) {
	e := newEnv(t, nil)

	// unknown link
	resp, err := e.client.Get(e.server.URL + "/camera/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	e.registry.GetOrCreate("link-1", "Alice")

	// first visit arms the camera and consumes the link
	resp, err = e.client.Get(e.server.URL + "/camera/link-1")
	require.NoError(t, err)
	page := readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, "link-1")
	assert.Contains(t, page, "capture.js")

	rec, ok := e.registry.Get("link-1")
	require.True(t, ok)
	assert.True(t, rec.Consumed)

	// second visit is refused
	resp, err = e.client.Get(e.server.URL + "/camera/link-1")
	require.NoError(t, err)
	page = readBody(t, resp)
	assert.Contains(t, page, "already been used")
	assert.NotContains(t, page, "capture.js")

	// per-request override re-arms it
	resp, err = e.client.Get(e.server.URL + "/camera/link-1?reuse=1")
	require.NoError(t, err)
	page = readBody(t, resp)
	assert.Contains(t, page, "capture.js")
}

func TestAllowLinkReusePolicy(t *testing.T) {
	e := newEnv(t, func(d *Deps) {
		d.Config.AllowLinkReuse = true
	})
	e.registry.GetOrCreate("link-1", "Alice")

	for i := 0; i < 2; i++ {
		resp, err := e.client.Get(e.server.URL + "/camera/link-1")
		require.NoError(t, err)
		page := readBody(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, page, "capture.js")
	}
}

func TestGenerateLinkFlow(t *testing.T) {
	e := newEnv(t, nil)
	e.login(t)

	resp, err := e.client.Post(e.server.URL+"/generate-link", "application/json",
		strings.NewReader(`{"name":"Alice"}`))
	require.NoError(t, err)
	body := decodeJSON(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "/camera/"+id, body["url"])

	rec, ok := e.registry.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Alice", rec.OwnerName)
	assert.False(t, rec.Consumed)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var sb strings.Builder
	_, err := io.Copy(&sb, resp.Body)
	require.NoError(t, err)
	return sb.String()
}

// newMultipart writes a multipart body with the given fields and one file
// part, returning the content type.
func newMultipart(t *testing.T, buf *bytes.Buffer, fields map[string]string, fileField, fileName string, fileData []byte) string {
	t.Helper()
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile(fileField, fileName)
	require.NoError(t, err)
	_, err = fw.Write(fileData)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return mw.FormDataContentType()
}
