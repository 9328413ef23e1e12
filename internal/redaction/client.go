// Package redaction de-identifies note text before it leaves the trust
// boundary, replacing person names with stable alias tokens (PERSON_1,
// PERSON_2, ...) via an external analyzer sidecar.
package redaction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbj-app/pbj-api/pkg/config"
)

// Redactor masks personally identifying names in free text. Implementations
// must be safe for concurrent use.
type Redactor interface {
	Redact(ctx context.Context, text string) (*Result, error)
}

// Result carries the masked text and the alias→identity mapping needed to
// restore names after extraction.
type Result struct {
	RedactedText string            `json:"redacted_text"`
	NameMapping  map[string]string `json:"name_mapping"`
}

// Restore replaces alias tokens in s with the original names. Aliases the
// mapping does not know are left untouched. Longer aliases are replaced
// first: PERSON_1 is a prefix of PERSON_10, so replacing in map order would
// corrupt the longer token.
func (r *Result) Restore(s string) string {
	if r == nil || len(r.NameMapping) == 0 {
		return s
	}
	aliases := make([]string, 0, len(r.NameMapping))
	for alias := range r.NameMapping {
		aliases = append(aliases, alias)
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})
	for _, alias := range aliases {
		s = strings.ReplaceAll(s, alias, r.NameMapping[alias])
	}
	return s
}

// HTTPClient talks to the redaction sidecar's /redact endpoint.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient constructs a redaction client from configuration.
func NewHTTPClient(cfg config.RedactionConfig, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Redact sends the text to the sidecar and returns the masked text with its
// alias mapping.
func (c *HTTPClient) Redact(ctx context.Context, text string) (*Result, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("encode redaction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/redact", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build redaction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call redaction service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read redaction response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("redaction service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode redaction response: %w", err)
	}

	c.logger.Debug("note redacted", zap.Int("aliases", len(result.NameMapping)))
	return &result, nil
}

// Passthrough satisfies Redactor without masking anything. Used when the
// sidecar is disabled; the pipeline must tolerate the redactor's absence.
type Passthrough struct{}

// Redact returns the text unchanged with an empty mapping.
func (Passthrough) Redact(_ context.Context, text string) (*Result, error) {
	return &Result{RedactedText: text, NameMapping: map[string]string{}}, nil
}
