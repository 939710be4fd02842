// Package gemini implements the inference-service ports against the Google
// Gemini API: the synchronous surface through the genai SDK, the batch
// surface through the REST API.
package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"docsieve/internal/config"
	"docsieve/internal/domain"
	"docsieve/internal/inference"
	"docsieve/internal/port"
)

const (
	apiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	downloadBaseURL = "https://generativelanguage.googleapis.com/download/v1beta"
)

// Service implements port.InferenceClient, port.FileStore, port.PromptCache,
// and port.BatchAPI.
type Service struct {
	client      *genai.Client
	apiKey      string
	http        *http.Client
	baseURL     string
	downloadURL string
}

// NewService creates a Gemini-backed inference service.
func NewService(ctx context.Context, cfg *config.InferenceConfig) (*Service, error) {
	return newService(ctx, cfg, "", "")
}

// NewServiceWithEndpoint creates a service pointing at custom API endpoints
// (for testing).
func NewServiceWithEndpoint(ctx context.Context, cfg *config.InferenceConfig, baseURL, downloadURL string) (*Service, error) {
	return newService(ctx, cfg, baseURL, downloadURL)
}

func newService(ctx context.Context, cfg *config.InferenceConfig, baseURL, downloadURL string) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, domain.ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if baseURL == "" {
		baseURL = apiBaseURL
	}
	if downloadURL == "" {
		downloadURL = downloadBaseURL
	}
	return &Service{
		client:      client,
		apiKey:      cfg.APIKey,
		http:        &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		downloadURL: downloadURL,
	}, nil
}

// normalizeError converts SDK errors into the shared provider taxonomy so
// the retry engine can classify them.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return inference.NewProviderError(apiErr.Code, apiErr.Message, err)
	}
	return err
}

// Generate performs one synchronous generateContent call.
func (s *Service) Generate(ctx context.Context, input *port.GenerateInput) (*port.GenerateOutput, error) {
	var parts []*genai.Part
	if input.File != nil {
		parts = append(parts, genai.NewPartFromFile(genai.File{
			URI:      input.File.URI,
			MIMEType: input.File.MIMEType,
		}))
	}
	if input.Prompt != "" {
		parts = append(parts, genai.NewPartFromText(input.Prompt))
	}
	if len(input.Schema) > 0 {
		parts = append(parts, genai.NewPartFromText("The response must conform to this JSON schema:\n"+string(input.Schema)))
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("generate called with neither prompt nor file")
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if input.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = input.MaxOutputTokens
	}
	if input.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(input.SystemInstruction, genai.RoleUser)
	}
	if input.CacheName != "" {
		cfg.CachedContent = input.CacheName
	}

	resp, err := s.client.Models.GenerateContent(ctx, input.Model, contents, cfg)
	if err != nil {
		return nil, normalizeError(err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from API: no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 || candidate.Content.Parts[0].Text == "" {
		return nil, fmt.Errorf("empty response from API: no text parts")
	}

	out := &port.GenerateOutput{Text: candidate.Content.Parts[0].Text}
	if resp.UsageMetadata != nil {
		out.CachedTokens = resp.UsageMetadata.CachedContentTokenCount
		out.TotalTokens = resp.UsageMetadata.TotalTokenCount
	}
	return out, nil
}

// Upload pushes raw document bytes to the provider's file store.
func (s *Service) Upload(ctx context.Context, data []byte, mimeType, displayName string) (*port.FileRef, error) {
	f, err := s.client.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	return &port.FileRef{Name: f.Name, URI: f.URI, MIMEType: f.MIMEType}, nil
}

// Delete removes an uploaded file.
func (s *Service) Delete(ctx context.Context, name string) error {
	_, err := s.client.Files.Delete(ctx, name, nil)
	return normalizeError(err)
}

// Create provisions a server-side cached prompt prefix and returns its
// resource name.
func (s *Service) Create(ctx context.Context, model, systemInstruction, displayName string, ttl time.Duration) (string, error) {
	cc, err := s.client.Caches.Create(ctx, model, &genai.CreateCachedContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		DisplayName:       displayName,
		TTL:               ttl,
	})
	if err != nil {
		return "", normalizeError(err)
	}
	return cc.Name, nil
}

// Probe checks that a cache resource still exists.
func (s *Service) Probe(ctx context.Context, name string) error {
	_, err := s.client.Caches.Get(ctx, name, nil)
	return normalizeError(err)
}
