// Package vertex wraps the Google GenAI SDK behind the two operations this
// service actually needs: prompt-to-text and prompt-to-image.
package vertex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ProviderError marks a malformed or empty response from the model. Callers
// must not retry these here; retry policy belongs to the request layer.
type ProviderError struct {
	Model  string
	Reason string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Model, e.Reason)
}

type Config struct {
	Project    string
	Location   string
	APIKey     string
	TextModel  string
	ImageModel string
}

type Client struct {
	client     *genai.Client
	textModel  string
	imageModel string
	logger     *slog.Logger
}

// NewClient connects against Vertex AI when a project is configured and
// falls back to the Gemini API key backend for local development.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	gc := genai.ClientConfig{}
	if cfg.Project != "" {
		gc.Backend = genai.BackendVertexAI
		gc.Project = cfg.Project
		gc.Location = cfg.Location
	} else {
		gc.Backend = genai.BackendGeminiAPI
		gc.APIKey = cfg.APIKey
	}

	client, err := genai.NewClient(ctx, &gc)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &Client{
		client:     client,
		textModel:  cfg.TextModel,
		imageModel: cfg.ImageModel,
		logger:     slog.Default().With("component", "vertex"),
	}, nil
}

func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	contents := []*genai.Content{{
		Role:  string(genai.RoleUser),
		Parts: []*genai.Part{genai.NewPartFromText(prompt)},
	}}

	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		return "", &ProviderError{Model: c.textModel, Reason: "response contains no text"}
	}

	c.logger.Debug("text generated",
		"model", c.textModel,
		"duration", time.Since(start),
		"chars", len(text),
	)
	return text, nil
}

type ImageParams struct {
	AspectRatio string
	Count       int32
}

type Image struct {
	Bytes    []byte
	MIMEType string
}

func (c *Client) GenerateImage(ctx context.Context, prompt string, params ImageParams) ([]Image, error) {
	start := time.Now()
	if params.Count <= 0 {
		params.Count = 1
	}

	gic := &genai.GenerateImagesConfig{
		NumberOfImages: params.Count,
	}
	if params.AspectRatio != "" {
		gic.AspectRatio = params.AspectRatio
	}

	resp, err := c.client.Models.GenerateImages(ctx, c.imageModel, prompt, gic)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}

	var images []Image
	for _, gi := range resp.GeneratedImages {
		if gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			continue
		}
		mime := gi.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		images = append(images, Image{Bytes: gi.Image.ImageBytes, MIMEType: mime})
	}
	if len(images) == 0 {
		return nil, &ProviderError{Model: c.imageModel, Reason: "response contains no images"}
	}

	c.logger.Debug("images generated",
		"model", c.imageModel,
		"duration", time.Since(start),
		"count", len(images),
	)
	return images, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
