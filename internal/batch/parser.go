package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"docsieve/internal/domain"
	"docsieve/internal/port"
)

// maxResultLineBytes bounds one JSONL response line.
const maxResultLineBytes = 16 << 20

// responseEnvelope mirrors the provider's generateContent response shape as
// it appears inside batch results.
type responseEnvelope struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// extractText pulls the model's text out of the nested candidate structure.
func extractText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("No candidates in response")
	}
	var env responseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("unmarshaling response: %w", err)
	}
	if len(env.Candidates) == 0 {
		return "", errors.New("No candidates in response")
	}
	parts := env.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0].Text == "" {
		return "", errors.New("No candidates in response")
	}
	return parts[0].Text, nil
}

// ParseInline zips positional inline results against the submission key
// order. A missing tail yields one "Missing response" item per absent key;
// per-item errors never fail the batch.
func ParseInline(results []port.InlineResult, keysInOrder []string) []domain.BatchResponseItem {
	items := make([]domain.BatchResponseItem, 0, len(keysInOrder))
	for i, key := range keysInOrder {
		if i >= len(results) {
			items = append(items, domain.BatchResponseItem{Key: key, Error: "Missing response"})
			continue
		}
		r := results[i]
		if r.Error != "" {
			items = append(items, domain.BatchResponseItem{Key: key, Error: r.Error})
			continue
		}
		text, err := extractText(r.Raw)
		if err != nil {
			items = append(items, domain.BatchResponseItem{Key: key, Error: err.Error()})
			continue
		}
		items = append(items, domain.BatchResponseItem{Key: key, ResponseText: text})
	}
	return items
}

// resultLine is one JSONL line of a file-based result.
type resultLine struct {
	Key      string          `json:"key"`
	Error    string          `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// ParseResultsFile decodes a downloaded JSONL results file. Each line
// carries its own key; order is not meaningful. Malformed lines are skipped
// with a warning and never fail the job.
func ParseResultsFile(data []byte) []domain.BatchResponseItem {
	var items []domain.BatchResponseItem

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), maxResultLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rl resultLine
		if err := json.Unmarshal(line, &rl); err != nil {
			log.Printf("batchParser.ParseResultsFile: skipping malformed line %d: %v", lineNo, err)
			continue
		}
		if rl.Key == "" {
			log.Printf("batchParser.ParseResultsFile: skipping line %d without a key", lineNo)
			continue
		}

		if rl.Error != "" {
			items = append(items, domain.BatchResponseItem{Key: rl.Key, Error: rl.Error})
			continue
		}

		text, err := extractText(rl.Response)
		if err != nil {
			items = append(items, domain.BatchResponseItem{Key: rl.Key, Error: err.Error()})
			continue
		}
		items = append(items, domain.BatchResponseItem{Key: rl.Key, ResponseText: text})
	}
	if err := scanner.Err(); err != nil {
		log.Printf("batchParser.ParseResultsFile: stopped reading results after line %d: %v", lineNo, err)
	}
	return items
}
