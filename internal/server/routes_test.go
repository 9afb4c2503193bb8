package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-aquamark/internal/assets"
	"go-aquamark/internal/config"
	"go-aquamark/internal/handlers"
	"go-aquamark/internal/ledger"
	"go-aquamark/internal/pdf"
	"go-aquamark/internal/pdf/pdftest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner = "owner@example.com"
	token = "secret"
)

type testEnv struct {
	server *httptest.Server
	store  *ledger.MemoryStore
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:              8080,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       5 * time.Second,
		APIToken:          token,
		MaxUploadBytes:    5 << 20,
		QPDFPath:          "/nonexistent/qpdf",
		DecryptTimeout:    time.Second,
		TempDir:           t.TempDir(),
		LedgerDriver:      config.DriverMemory,
		LedgerTimeout:     time.Second,
		AssetTimeout:      time.Second,
		LogoWidthFraction: 0.35,
		TileGap:           100,
		TileOpacity:       0.15,
		QRSize:            50,
		QROpacity:         0.4,
		DPIScale:          0.5,
		BatchConcurrency:  2,
	}
}

func writeLogo(t *testing.T, root, identity string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.NRGBA{R: 20, G: 80, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	dir := filepath.Join(root, identity)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo-1700000000000.png"), buf.Bytes(), 0o644))
}

func setupTestServer(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	for _, m := range mutate {
		m(cfg)
	}
	root := t.TempDir()
	writeLogo(t, root, owner)
	dir, err := assets.NewDirStore(root)
	require.NoError(t, err)

	store := ledger.NewMemoryStore()
	s, err := New(cfg, Deps{Ledger: store, Assets: dir})
	require.NoError(t, err)

	srv := httptest.NewServer(s.RegisterRoutes())
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, store: store}
}

func (e *testEnv) used(t *testing.T, identity string) int {
	t.Helper()
	rec, err := e.store.Get(context.Background(), identity)
	require.NoError(t, err)
	return rec.PagesUsed
}

type upload struct {
	name string
	data []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...upload) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, f := range files {
		part, err := w.CreateFormFile("file", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func post(t *testing.T, url, auth, contentType string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readAll(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

func TestRootAndHealth(t *testing.T) {
	env := setupTestServer(t)

	resp, err := http.Get(env.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, handlers.Banner, string(readAll(t, resp)))

	resp, err = http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
}

func TestWatermarkRequiresToken(t *testing.T) {
	env := setupTestServer(t)

	for _, auth := range []string{"", "wrong"} {
		body, ct := multipartBody(t, map[string]string{"user_email": owner}, upload{"a.pdf", pdftest.Document(1, pdftest.Letter)})
		resp := post(t, env.server.URL+"/watermark", auth, ct, body)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "auth %q", auth)
		assert.Equal(t, "unauthorized", resp.Header.Get("X-Error-Code"))
	}
}

func TestWatermarkEmptyTokenRejects(t *testing.T) {
	env := setupTestServer(t, func(c *config.Config) { c.APIToken = "" })

	body, ct := multipartBody(t, map[string]string{"user_email": owner}, upload{"a.pdf", pdftest.Document(1, pdftest.Letter)})
	resp := post(t, env.server.URL+"/watermark", "", ct, body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWatermarkMissingFields(t *testing.T) {
	env := setupTestServer(t)

	cases := []struct {
		name   string
		fields map[string]string
		files  []upload
	}{
		{name: "no email", files: []upload{{"a.pdf", pdftest.Document(1, pdftest.Letter)}}},
		{name: "no file", fields: map[string]string{"user_email": owner}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := multipartBody(t, tc.fields, tc.files...)
			resp := post(t, env.server.URL+"/watermark", token, ct, body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "input_missing", resp.Header.Get("X-Error-Code"))
			assert.Contains(t, string(readAll(t, resp)), "Missing required fields")
		})
	}
}

func TestWatermarkEndToEnd(t *testing.T) {
	env := setupTestServer(t)
	env.store.Set(owner, 10, 0)

	body, ct := multipartBody(t, map[string]string{
		"user_email": owner,
		"lender":     "Acme Capital",
		"state":      "ny",
	}, upload{"statement.pdf", pdftest.Document(3, pdftest.Letter)})
	resp := post(t, env.server.URL+"/watermark", token, ct, body)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="statement-protected.pdf"`, resp.Header.Get("Content-Disposition"))

	info, err := pdf.Inspect(readAll(t, resp))
	require.NoError(t, err)
	assert.Equal(t, 3, info.PageCount)
	assert.Equal(t, 3, env.used(t, owner))
}

func TestWatermarkInsufficientCredit(t *testing.T) {
	env := setupTestServer(t)
	env.store.Set(owner, 10, 9)

	body, ct := multipartBody(t, map[string]string{"user_email": owner}, upload{"statement.pdf", pdftest.Document(3, pdftest.Letter)})
	resp := post(t, env.server.URL+"/watermark", token, ct, body)

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "insufficient_credit", resp.Header.Get("X-Error-Code"))
	assert.Equal(t, 9, env.used(t, owner))
}

func TestWatermarkUnknownUser(t *testing.T) {
	env := setupTestServer(t)

	body, ct := multipartBody(t, map[string]string{"user_email": owner}, upload{"a.pdf", pdftest.Document(1, pdftest.Letter)})
	resp := post(t, env.server.URL+"/watermark", token, ct, body)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "ledger_record_not_found", resp.Header.Get("X-Error-Code"))
}

func TestWatermarkUploadTooLarge(t *testing.T) {
	env := setupTestServer(t, func(c *config.Config) { c.MaxUploadBytes = 512 })

	body, ct := multipartBody(t, map[string]string{"user_email": owner}, upload{"a.pdf", bytes.Repeat([]byte("x"), 4096)})
	resp := post(t, env.server.URL+"/watermark", token, ct, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestWatermarkMultipleFilesManifest(t *testing.T) {
	env := setupTestServer(t)
	env.store.Set(owner, 10, 0)

	body, ct := multipartBody(t, map[string]string{"user_email": owner},
		upload{"a.pdf", pdftest.Document(2, pdftest.Letter)},
		upload{"b.pdf", pdftest.Document(1, pdftest.Letter)},
	)
	resp := post(t, env.server.URL+"/watermark", token, ct, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var manifest []struct {
		Filename string `json:"filename"`
		Base64   string `json:"base64"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&manifest))
	require.Len(t, manifest, 2)
	assert.Equal(t, "a-protected.pdf", manifest[0].Filename)
	assert.Equal(t, "b-protected.pdf", manifest[1].Filename)

	data, err := base64.StdEncoding.DecodeString(manifest[0].Base64)
	require.NoError(t, err)
	info, err := pdf.Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, 2, info.PageCount)
	assert.Equal(t, 3, env.used(t, owner))
}

func TestBatchWatermark(t *testing.T) {
	env := setupTestServer(t)
	env.store.Set(owner, 10, 0)
	env.store.Set("nologo@example.com", 10, 0)

	doc := base64.StdEncoding.EncodeToString(pdftest.Document(2, pdftest.Letter))
	payload, err := json.Marshal([]map[string]string{
		{"user_email": owner, "file": doc, "lender": "Acme", "filename": "one.pdf"},
		{"user_email": "nologo@example.com", "file": doc, "lender": "Acme"},
		{"user_email": owner, "file": "%%% not base64"},
	})
	require.NoError(t, err)

	resp := post(t, env.server.URL+"/batch-watermark", token, "application/json", bytes.NewReader(payload))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Batch-ID"))

	var results []handlers.BatchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 3)

	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, "success", results[0].Status)
	assert.Equal(t, "one-protected.pdf", results[0].Filename)
	assert.Equal(t, 2, results[0].Pages)
	assert.NotEmpty(t, results[0].Base64)

	assert.Equal(t, "failure", results[1].Status)
	assert.Equal(t, "logo_not_found", results[1].Code)
	assert.Equal(t, "nologo@example.com", results[1].UserEmail)

	assert.Equal(t, "failure", results[2].Status)
	assert.Equal(t, "input_missing", results[2].Code)

	assert.Equal(t, 2, env.used(t, owner))
	assert.Equal(t, 0, env.used(t, "nologo@example.com"))
}

func TestBatchWatermarkBadPayload(t *testing.T) {
	env := setupTestServer(t)

	for name, body := range map[string]string{"invalid json": "{not json", "empty batch": "[]"} {
		t.Run(name, func(t *testing.T) {
			resp := post(t, env.server.URL+"/batch-watermark", token, "application/json", strings.NewReader(body))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestDecryptNoFile(t *testing.T) {
	env := setupTestServer(t)

	body, ct := multipartBody(t, nil)
	resp := post(t, env.server.URL+"/decrypt", "", ct, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(readAll(t, resp)), "No file uploaded.")
}

func TestDecryptToolFailure(t *testing.T) {
	env := setupTestServer(t)

	body, ct := multipartBody(t, nil, upload{"a.pdf", pdftest.Document(1, pdftest.Letter)})
	resp := post(t, env.server.URL+"/decrypt", "", ct, body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(readAll(t, resp)), "Failed to decrypt PDF.")
}

func TestDecryptRunsTool(t *testing.T) {
	tool := filepath.Join(t.TempDir(), "fake-qpdf")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\ncp \"$2\" \"$3\"\n"), 0o755))
	env := setupTestServer(t, func(c *config.Config) { c.QPDFPath = tool })

	in := pdftest.Document(1, pdftest.Letter)
	body, ct := multipartBody(t, nil, upload{"a.pdf", in})
	resp := post(t, env.server.URL+"/decrypt", "", ct, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, in, readAll(t, resp))
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	env.store.Set(owner, 10, 0)

	body, ct := multipartBody(t, map[string]string{"user_email": owner}, upload{"a.pdf", pdftest.Document(1, pdftest.Letter)})
	resp := post(t, env.server.URL+"/watermark", token, ct, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mresp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	text := string(readAll(t, mresp))
	assert.Contains(t, text, `aquamark_documents_total{outcome="success",route="/watermark"} 1`)
	assert.Contains(t, text, "aquamark_pages_stamped_total 1")
}

func TestLocalhostOnly(t *testing.T) {
	h := localhostOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := map[string]int{
		"127.0.0.1:5000":   http.StatusOK,
		"[::1]:5000":       http.StatusOK,
		"203.0.113.9:5000": http.StatusForbidden,
	}
	for addr, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, addr)
	}
}

func TestNewServerAddr(t *testing.T) {
	cfg := testConfig(t)
	srv, err := NewServer(cfg, Deps{Ledger: ledger.NewMemoryStore(), Assets: mustDirStore(t)})
	require.NoError(t, err)
	assert.Equal(t, ":8080", srv.Addr)
	assert.Equal(t, cfg.ReadTimeout, srv.ReadTimeout)
}

func TestNewRejectsBadBadgeTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badge.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	cfg := testConfig(t)
	cfg.BadgeTemplatePath = path
	_, err := New(cfg, Deps{Ledger: ledger.NewMemoryStore(), Assets: mustDirStore(t)})
	assert.ErrorContains(t, err, "decode badge template")
}

func mustDirStore(t *testing.T) *assets.DirStore {
	t.Helper()
	dir, err := assets.NewDirStore(t.TempDir())
	require.NoError(t, err)
	return dir
}
