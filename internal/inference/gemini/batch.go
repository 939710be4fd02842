package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"docsieve/internal/domain"
	"docsieve/internal/inference"
	"docsieve/internal/port"
)

// batchState values reported by the batch API.
const (
	batchStatePending   = "BATCH_STATE_PENDING"
	batchStateRunning   = "BATCH_STATE_RUNNING"
	batchStateSucceeded = "BATCH_STATE_SUCCEEDED"
	batchStateFailed    = "BATCH_STATE_FAILED"
	batchStateCancelled = "BATCH_STATE_CANCELLED"
	batchStateExpired   = "BATCH_STATE_EXPIRED"
)

// CreateInline submits a batch job whose requests travel in the request body.
// Response ordering matches request ordering; the returned name identifies the
// provider-side job.
func (s *Service) CreateInline(ctx context.Context, model, displayName string, requests []port.BatchRequest) (string, error) {
	inlined := make([]map[string]interface{}, 0, len(requests))
	for _, r := range requests {
		inlined = append(inlined, map[string]interface{}{
			"request": buildGenerateRequest(r),
		})
	}
	body := map[string]interface{}{
		"batch": map[string]interface{}{
			"displayName": displayName,
			"inputConfig": map[string]interface{}{
				"requests": map[string]interface{}{
					"requests": inlined,
				},
			},
		},
	}
	endpoint := fmt.Sprintf("%s/models/%s:batchGenerateContent", s.baseURL, model)
	return s.createBatch(ctx, endpoint, body)
}

// CreateFromFile submits a batch job whose requests were uploaded as a JSONL
// file beforehand. fileName is the provider file resource name.
func (s *Service) CreateFromFile(ctx context.Context, model, displayName, fileName string) (string, error) {
	body := map[string]interface{}{
		"batch": map[string]interface{}{
			"displayName": displayName,
			"inputConfig": map[string]interface{}{
				"fileName": fileName,
			},
		},
	}
	endpoint := fmt.Sprintf("%s/models/%s:batchGenerateContent", s.baseURL, model)
	return s.createBatch(ctx, endpoint, body)
}

// buildGenerateRequest converts one batch request into the provider's
// generateContent request shape.
func buildGenerateRequest(r port.BatchRequest) map[string]interface{} {
	parts := []map[string]interface{}{
		{
			"file_data": map[string]interface{}{
				"file_uri":  r.FileURI,
				"mime_type": r.MIMEType,
			},
		},
	}
	prompt := r.Prompt
	if len(r.Schema) > 0 {
		prompt += "\nThe response must conform to this JSON schema:\n" + string(r.Schema)
	}
	parts = append(parts, map[string]interface{}{"text": prompt})

	req := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role":  "user",
				"parts": parts,
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
		},
	}
	if r.SystemInstruction != "" {
		req["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{
				{"text": r.SystemInstruction},
			},
		}
	}
	return req
}

func (s *Service) createBatch(ctx context.Context, endpoint string, body map[string]interface{}) (string, error) {
	respBody, err := s.call(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	var created struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", fmt.Errorf("unmarshaling batch create response: %w", err)
	}
	if created.Name == "" {
		return "", fmt.Errorf("batch create response missing job name")
	}
	return created.Name, nil
}

// batchJobResponse models the batch job resource returned by the API.
type batchJobResponse struct {
	Name     string `json:"name"`
	Metadata struct {
		State string `json:"state"`
	} `json:"metadata"`
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response struct {
		InlinedResponses struct {
			InlinedResponses []struct {
				Response json.RawMessage `json:"response"`
				Error    struct {
					Code    int    `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			} `json:"inlinedResponses"`
		} `json:"inlinedResponses"`
		ResponsesFile string `json:"responsesFile"`
	} `json:"response"`
}

// GetJob fetches the current state of a batch job.
func (s *Service) GetJob(ctx context.Context, jobName string) (*port.BatchJobState, error) {
	endpoint := fmt.Sprintf("%s/%s", s.baseURL, jobName)
	respBody, err := s.call(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var job batchJobResponse
	if err := json.Unmarshal(respBody, &job); err != nil {
		return nil, fmt.Errorf("unmarshaling batch job: %w", err)
	}

	state := &port.BatchJobState{
		Status:         mapBatchState(job.Metadata.State),
		ResultFileName: job.Response.ResponsesFile,
		Error:          job.Error.Message,
	}
	for _, r := range job.Response.InlinedResponses.InlinedResponses {
		item := port.InlineResult{Raw: r.Response}
		if r.Error.Message != "" {
			item.Error = r.Error.Message
		}
		state.InlineResults = append(state.InlineResults, item)
	}
	return state, nil
}

func mapBatchState(state string) domain.BatchJobStatus {
	switch state {
	case batchStateSucceeded:
		return domain.BatchJobStatusSucceeded
	case batchStateFailed:
		return domain.BatchJobStatusFailed
	case batchStateCancelled:
		return domain.BatchJobStatusCancelled
	case batchStateExpired:
		return domain.BatchJobStatusExpired
	case batchStatePending, batchStateRunning:
		return domain.BatchJobStatusPending
	default:
		return domain.BatchJobStatusPending
	}
}

// Download fetches the content of a provider file, used for batch result
// files. name is the file resource name ("files/...").
func (s *Service) Download(ctx context.Context, name string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s:download?alt=media", s.downloadURL, name)
	return s.call(ctx, http.MethodGet, endpoint, nil)
}

// call performs one authenticated API request and returns the response body.
// Non-2xx statuses become provider errors carrying the HTTP status code.
func (s *Service) call(ctx context.Context, method, endpoint string, body map[string]interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-goog-api-key", s.apiKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling gemini API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, inference.NewProviderError(resp.StatusCode,
			fmt.Sprintf("gemini API error: %s", truncate(string(respBody), 500)), nil)
	}
	return respBody, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
