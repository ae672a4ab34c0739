package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/emu-entities/internal/debug"
)

// DefaultTimeout bounds a single request to an NLP service
const DefaultTimeout = 60 * time.Second

// service is the JSON-over-HTTP transport shared by the sidecar engines
type service struct {
	baseURL    string
	httpClient *http.Client
	debug      bool
}

func newService(baseURL string, timeout time.Duration) service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return service{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// post sends payload as JSON to path and decodes the response into result.
// A 404 answer is reported as ErrModelMissing.
func (s *service) post(ctx context.Context, path string, payload, result interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	url := s.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	debug.DebugOutput(s.debug, "POST %s (%d bytes)", url, len(jsonData))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	debug.DebugOutput(s.debug, "Response status: %s, body size: %d bytes", resp.Status, len(respBody))

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrModelMissing, strings.TrimSpace(string(respBody)))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// runeSlice returns runes[start:end] as a string with both bounds clamped
func runeSlice(runes []rune, start, end int) string {
	start = max(0, min(start, len(runes)))
	end = max(start, min(end, len(runes)))
	return string(runes[start:end])
}
