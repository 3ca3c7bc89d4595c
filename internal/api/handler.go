// Package api exposes the browser-facing endpoints: text and image
// generation plus the manual retention-sweep trigger.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-app/atelier/internal/metrics"
	"github.com/atelier-app/atelier/internal/store"
	"github.com/atelier-app/atelier/internal/sweep"
	"github.com/atelier-app/atelier/internal/vertex"
)

// Generator is the slice of the vertex client the handlers need.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateImage(ctx context.Context, prompt string, params vertex.ImageParams) ([]vertex.Image, error)
}

type Handler struct {
	Gen         Generator
	Store       store.Store
	Sweeper     *sweep.Sweeper
	Policy      sweep.Policy
	Metrics     *metrics.Metrics
	Roles       map[string]string
	AdminToken  string
	AllowOrigin string

	logger *slog.Logger
	clock  func() time.Time
}

func NewHandler(gen Generator, st store.Store, sweeper *sweep.Sweeper, policy sweep.Policy) *Handler {
	return &Handler{
		Gen:     gen,
		Store:   st,
		Sweeper: sweeper,
		Policy:  policy,
		Roles:   DefaultRoles(),
		logger:  slog.Default().With("component", "api"),
		clock:   time.Now,
	}
}

// DefaultRoles maps the front-end's role picker to prompt preambles.
func DefaultRoles() map[string]string {
	return map[string]string{
		"writer":      "You are a concise copywriter. Answer with polished prose only.",
		"illustrator": "Describe the requested scene as a vivid visual brief.",
		"translator":  "Translate the following text, keeping tone and register.",
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("/api/generate/text", h.cors(http.HandlerFunc(h.handleText)))
	mux.Handle("/api/generate/image", h.cors(http.HandlerFunc(h.handleImage)))
	mux.Handle("/admin/sweep", h.cors(http.HandlerFunc(h.handleSweep)))
}

type textRequest struct {
	Prompt string `json:"prompt"`
	Role   string `json:"role,omitempty"`
}

type textResponse struct {
	Text string `json:"text"`
}

func (h *Handler) handleText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	prompt := req.Prompt
	if req.Role != "" {
		preamble, ok := h.Roles[req.Role]
		if !ok {
			http.Error(w, "unknown role", http.StatusBadRequest)
			return
		}
		prompt = preamble + "\n\n" + prompt
	}

	text, err := h.Gen.GenerateText(r.Context(), prompt)
	h.Metrics.ObserveGeneration("text", err)
	if err != nil {
		h.logger.Error("text generation failed", "error", err)
		http.Error(w, "text generation failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: text})
}

type imageRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	Count       int32  `json:"count,omitempty"`
}

type imageResponse struct {
	URLs []string `json:"urls"`
}

func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}
	if req.Count < 0 || req.Count > 4 {
		http.Error(w, "count must be at most 4", http.StatusBadRequest)
		return
	}

	images, err := h.Gen.GenerateImage(r.Context(), req.Prompt, vertex.ImageParams{
		AspectRatio: req.AspectRatio,
		Count:       req.Count,
	})
	h.Metrics.ObserveGeneration("image", err)
	if err != nil {
		h.logger.Error("image generation failed", "error", err)
		http.Error(w, "image generation failed", http.StatusBadGateway)
		return
	}

	now := h.clock().UTC()
	urls := make([]string, 0, len(images))
	for _, img := range images {
		key := h.Policy.Prefix + uuid.NewString() + extension(img.MIMEType)
		obj := store.Object{Body: img.Bytes, ContentType: img.MIMEType, CreatedAt: now}
		if err := h.Store.Put(r.Context(), key, obj); err != nil {
			h.logger.Error("image upload failed", "key", key, "error", err)
			http.Error(w, "failed to store generated image", http.StatusInternalServerError)
			return
		}
		urls = append(urls, h.Store.PublicURL(key))
	}
	writeJSON(w, http.StatusOK, imageResponse{URLs: urls})
}

type sweepRequest struct {
	KeepDays int    `json:"keepDays,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	policy := h.Policy
	if r.Body != nil && r.ContentLength != 0 {
		var req sweepRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.KeepDays != 0 {
			policy.KeepFor = time.Duration(req.KeepDays) * 24 * time.Hour
		}
		if req.Prefix != "" {
			policy.Prefix = req.Prefix
		}
	}
	if err := policy.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Sweeper.Sweep(r.Context(), policy)
	if err != nil {
		h.logger.Error("manual sweep failed", "error", err)
		http.Error(w, "sweep failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.AdminToken == "" {
		return true
	}
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	return auth[len(prefix):] == h.AdminToken
}

func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.AllowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", h.AllowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func extension(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
