package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-app/atelier/internal/metrics"
	"github.com/atelier-app/atelier/internal/store"
	"github.com/atelier-app/atelier/internal/sweep"
	"github.com/atelier-app/atelier/internal/vertex"
)

type fakeGenerator struct {
	lastPrompt string
	text       string
	images     []vertex.Image
	err        error
}

func (f *fakeGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.text, f.err
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, prompt string, params vertex.ImageParams) ([]vertex.Image, error) {
	f.lastPrompt = prompt
	return f.images, f.err
}

func newTestHandler(gen *fakeGenerator, st store.Store) *Handler {
	policy := sweep.Policy{Prefix: "generated/", KeepFor: 7 * 24 * time.Hour}
	m := metrics.New(prometheus.NewRegistry())
	sweeper := sweep.NewSweeper(st, m)
	h := NewHandler(gen, st, sweeper, policy)
	h.Metrics = m
	return h
}

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGenerateText(t *testing.T) {
	gen := &fakeGenerator{text: "a haiku"}
	h := newTestHandler(gen, store.NewMemoryStore())
	mux := http.NewServeMux()
	h.Register(mux)

	rec := postJSON(mux, "/api/generate/text", `{"prompt":"write a haiku"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp textResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a haiku", resp.Text)
	assert.Equal(t, "write a haiku", gen.lastPrompt)
}

func TestGenerateTextWithRolePreamble(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	h := newTestHandler(gen, store.NewMemoryStore())
	mux := http.NewServeMux()
	h.Register(mux)

	rec := postJSON(mux, "/api/generate/text", `{"prompt":"slogan for a bakery","role":"writer"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(gen.lastPrompt, DefaultRoles()["writer"]))
	assert.True(t, strings.HasSuffix(gen.lastPrompt, "slogan for a bakery"))
}

func TestGenerateTextValidation(t *testing.T) {
	h := newTestHandler(&fakeGenerator{}, store.NewMemoryStore())
	mux := http.NewServeMux()
	h.Register(mux)

	rec := postJSON(mux, "/api/generate/text", `{"prompt":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(mux, "/api/generate/text", `{"prompt":"hi","role":"astronaut"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(mux, "/api/generate/text", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/generate/text", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGenerateTextProviderFailure(t *testing.T) {
	gen := &fakeGenerator{err: &vertex.ProviderError{Model: "gemini-2.0-flash", Reason: "response contains no text"}}
	h := newTestHandler(gen, store.NewMemoryStore())
	mux := http.NewServeMux()
	h.Register(mux)

	rec := postJSON(mux, "/api/generate/text", `{"prompt":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGenerateImageStoresAndReturnsURLs(t *testing.T) {
	gen := &fakeGenerator{images: []vertex.Image{
		{Bytes: []byte("png-1"), MIMEType: "image/png"},
		{Bytes: []byte("jpg-2"), MIMEType: "image/jpeg"},
	}}
	st := store.NewMemoryStore()
	h := newTestHandler(gen, st)
	mux := http.NewServeMux()
	h.Register(mux)

	rec := postJSON(mux, "/api/generate/image", `{"prompt":"a red fox","count":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp imageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.URLs, 2)
	assert.Equal(t, 2, st.Len())

	infos, err := st.List(context.Background(), "generated/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	for _, info := range infos {
		assert.False(t, info.CreatedAt.IsZero())
	}
	assert.Contains(t, resp.URLs[0], "memory://generated/")
}

func TestGenerateImageValidation(t *testing.T) {
	h := newTestHandler(&fakeGenerator{}, store.NewMemoryStore())
	mux := http.NewServeMux()
	h.Register(mux)

	rec := postJSON(mux, "/api/generate/image", `{"prompt":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(mux, "/api/generate/image", `{"prompt":"fox","count":9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateImageProviderFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exhausted")}
	h := newTestHandler(gen, store.NewMemoryStore())
	mux := http.NewServeMux()
	h.Register(mux)

	rec := postJSON(mux, "/api/generate/image", `{"prompt":"fox"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestManualSweepReturnsResult(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	require.NoError(t, st.Put(context.Background(), "generated/old.png", store.Object{
		Body: []byte("x"), ContentType: "image/png", CreatedAt: now.Add(-10 * 24 * time.Hour),
	}))
	require.NoError(t, st.Put(context.Background(), "generated/new.png", store.Object{
		Body: []byte("x"), ContentType: "image/png", CreatedAt: now.Add(-time.Hour),
	}))

	h := newTestHandler(&fakeGenerator{}, st)
	mux := http.NewServeMux()
	h.Register(mux)

	rec := postJSON(mux, "/admin/sweep", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result sweep.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 1, st.Len())
}

func TestManualSweepPolicyOverride(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	require.NoError(t, st.Put(context.Background(), "generated/two-days.png", store.Object{
		Body: []byte("x"), ContentType: "image/png", CreatedAt: now.Add(-2 * 24 * time.Hour),
	}))

	h := newTestHandler(&fakeGenerator{}, st)
	mux := http.NewServeMux()
	h.Register(mux)

	// Default policy keeps 7 days; the override shrinks it to 1.
	rec := postJSON(mux, "/admin/sweep", `{"keepDays":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result sweep.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Deleted)

	rec = postJSON(mux, "/admin/sweep", `{"keepDays":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManualSweepAuthorization(t *testing.T) {
	h := newTestHandler(&fakeGenerator{}, store.NewMemoryStore())
	h.AdminToken = "s3cret"
	mux := http.NewServeMux()
	h.Register(mux)

	rec := postJSON(mux, "/admin/sweep", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/admin/sweep", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/sweep", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestManualSweepListFailure(t *testing.T) {
	st := store.NewMemoryStore()
	st.FailList = errors.New("store unavailable")

	h := newTestHandler(&fakeGenerator{}, st)
	mux := http.NewServeMux()
	h.Register(mux)

	rec := postJSON(mux, "/admin/sweep", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(&fakeGenerator{}, store.NewMemoryStore())
	h.AllowOrigin = "https://app.example.com"
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodOptions, "/api/generate/text", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
