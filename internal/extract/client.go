package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"docsieve/internal/domain"
	"docsieve/internal/inference"
	"docsieve/internal/port"
)

const defaultMaxOutputTokens = 16384

// Request carries one document through the synchronous extraction client.
type Request struct {
	Structure    *domain.DocumentStructure
	Document     []byte
	ContentType  string
	Filename     string
	DocumentType string
	Schema       json.RawMessage
}

// Client orchestrates quality routing, cache management, and retry around
// the inference service for single-document extraction.
type Client struct {
	inference port.InferenceClient
	files     port.FileStore
	caches    *CacheManager
	policy    RetryPolicy
	model     string
}

// NewClient creates a synchronous extraction client.
func NewClient(inf port.InferenceClient, files port.FileStore, caches *CacheManager, policy RetryPolicy, model string) *Client {
	return &Client{
		inference: inf,
		files:     files,
		caches:    caches,
		policy:    policy,
		model:     model,
	}
}

// Extract runs the full state machine for one document. On semantic failure
// in either branch it returns a *PartialError carrying the structural data
// already known plus the original cause; callers decide whether to persist
// the partial record.
func (c *Client) Extract(ctx context.Context, req *Request) (*domain.ExtractionResult, error) {
	route := Route(req.Structure)

	var (
		result *domain.ExtractionResult
		err    error
	)
	switch route {
	case RouteVisionFallback:
		result, err = c.extractVision(ctx, req)
	default:
		result, err = c.extractHybrid(ctx, req)
	}
	if err != nil {
		return nil, c.partialError(req, err)
	}
	return result, nil
}

// extractHybrid embeds the structural markdown into the prompt and reuses
// the primary domain's server-side cache. A cache-expired error clears the
// handle and retries the same request once uncached; a second failure
// propagates through the retry engine like any other provider error.
func (c *Client) extractHybrid(ctx context.Context, req *Request) (*domain.ExtractionResult, error) {
	prompt := BuildHybridPrompt(req.DocumentType, req.Structure.Markdown)
	instruction := SystemInstructionFor(domain.CacheDomainPrimary)

	var usedCache bool
	out, err := Do(ctx, c.policy, "hybrid generate", func(ctx context.Context) (*port.GenerateOutput, error) {
		cacheName, cerr := c.caches.GetOrCreate(ctx, domain.CacheDomainPrimary)
		if cerr != nil {
			log.Printf("extractClient.extractHybrid: cache unavailable for %s, proceeding uncached: %v", req.Filename, cerr)
			cacheName = ""
		}
		usedCache = cacheName != ""

		input := &port.GenerateInput{
			Model:           c.model,
			Prompt:          prompt,
			Schema:          req.Schema,
			CacheName:       cacheName,
			MaxOutputTokens: defaultMaxOutputTokens,
		}
		if cacheName == "" {
			// With a cache the instruction lives server-side.
			input.SystemInstruction = instruction
		}

		out, err := c.inference.Generate(ctx, input)
		if err != nil && cacheName != "" && inference.IsCacheExpired(err) {
			log.Printf("extractClient.extractHybrid: cache %q expired, retrying once uncached", cacheName)
			c.caches.Invalidate(domain.CacheDomainPrimary)
			usedCache = false
			input.CacheName = ""
			input.SystemInstruction = instruction
			out, err = c.inference.Generate(ctx, input)
		}
		return out, err
	})
	if err != nil {
		return nil, err
	}

	data, err := mergeStructural(out.Text, req.Structure)
	if err != nil {
		return nil, err
	}

	return &domain.ExtractionResult{
		Data:          data,
		Tables:        req.Structure.Tables,
		BoundingBoxes: req.Structure.BoundingBoxes,
		Metadata: domain.ExtractionMetadata{
			Method:       domain.MethodHybrid,
			Model:        c.model,
			QualityScore: req.Structure.QualityScore,
			CacheHit:     usedCache && out.CachedTokens > 0,
			CachedTokens: out.CachedTokens,
			TotalTokens:  out.TotalTokens,
		},
	}, nil
}

// extractVision uploads the raw document and lets the model read it
// directly. The uploaded file is deleted on every exit path; a failed
// delete is logged and swallowed.
func (c *Client) extractVision(ctx context.Context, req *Request) (*domain.ExtractionResult, error) {
	ref, err := c.files.Upload(ctx, req.Document, req.ContentType, req.Filename)
	if err != nil {
		return nil, fmt.Errorf("uploading document for vision fallback: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if derr := c.files.Delete(cleanupCtx, ref.Name); derr != nil {
			log.Printf("extractClient.extractVision: failed to delete uploaded file %s: %v", ref.Name, derr)
		}
	}()

	prompt := BuildVisionPrompt(req.DocumentType)
	out, err := Do(ctx, c.policy, "vision generate", func(ctx context.Context) (*port.GenerateOutput, error) {
		return c.inference.Generate(ctx, &port.GenerateInput{
			Model:             c.model,
			Prompt:            prompt,
			File:              ref,
			SystemInstruction: SystemInstructionFor(domain.CacheDomainPrimary),
			Schema:            req.Schema,
			MaxOutputTokens:   defaultMaxOutputTokens,
		})
	})
	if err != nil {
		return nil, err
	}

	data, err := mergeStructural(out.Text, req.Structure)
	if err != nil {
		return nil, err
	}

	return &domain.ExtractionResult{
		Data:          data,
		Tables:        req.Structure.Tables,
		BoundingBoxes: req.Structure.BoundingBoxes,
		Metadata: domain.ExtractionMetadata{
			Method:       domain.MethodVisionFallback,
			Model:        c.model,
			QualityScore: req.Structure.QualityScore,
			TotalTokens:  out.TotalTokens,
			Reason:       "low quality score",
		},
	}, nil
}

// partialError shapes the degraded result from the structural data already
// known.
func (c *Client) partialError(req *Request, cause error) error {
	data, _ := json.Marshal(map[string]any{
		"title":   "Partial Extraction - Manual Review Required",
		"partial": true,
	})
	return &PartialError{
		Result: &domain.ExtractionResult{
			Data:          data,
			Tables:        req.Structure.Tables,
			BoundingBoxes: req.Structure.BoundingBoxes,
			Metadata: domain.ExtractionMetadata{
				Method:       domain.MethodPartial,
				Model:        c.model,
				QualityScore: req.Structure.QualityScore,
				Reason:       cause.Error(),
			},
		},
		Cause: cause,
	}
}

// mergeStructural parses the model's semantic JSON and overwrites its
// "tables" with the structural pre-pass extraction, which is treated as
// ground truth.
func mergeStructural(semantic string, structure *domain.DocumentStructure) (json.RawMessage, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(semantic), &m); err != nil {
		return nil, fmt.Errorf("parsing semantic JSON: %w", err)
	}
	m["tables"] = structure.Tables
	merged, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("merging structural tables: %w", err)
	}
	return merged, nil
}
