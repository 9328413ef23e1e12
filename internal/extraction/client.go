package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pbj-app/pbj-api/pkg/config"
)

// Client converts free-text teacher notes into validated structured records
// by delegating to an external reasoning service.
type Client interface {
	Extract(ctx context.Context, originalText string, recordingTimestamp time.Time) (*Result, error)
}

// OpenAIClient drives an OpenAI-compatible chat-completions endpoint with a
// forced tool call. Any transport failure, missing tool call, or payload that
// fails contract validation is a terminal error for the call; retries, if
// any, belong to the caller.
type OpenAIClient struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewOpenAIClient constructs the extraction client with a bounded per-call
// timeout so a stalled reasoning service cannot hang a request indefinitely.
func NewOpenAIClient(cfg config.LLMConfig, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		validator:  NewValidator(),
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type chatToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

type chatRequest struct {
	Model      string         `json:"model"`
	Messages   []chatMessage  `json:"messages"`
	Tools      []chatTool     `json:"tools"`
	ToolChoice chatToolChoice `json:"tool_choice"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Name      string          `json:"name"`
					Arguments json.RawMessage `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Extract sends the note to the reasoning service and returns the validated
// extraction result. The caller-determined recording timestamp is injected
// into the prompt as the authoritative value.
func (c *OpenAIClient) Extract(ctx context.Context, originalText string, recordingTimestamp time.Time) (*Result, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(originalText, recordingTimestamp)},
		},
		Tools: []chatTool{{
			Type: "function",
			Function: chatToolFunction{
				Name:        toolName,
				Description: "Extracts structured student behavior records from unstructured teacher notes.",
				Parameters:  toolSchema(),
			},
		}},
	}
	reqBody.ToolChoice.Type = "function"
	reqBody.ToolChoice.Function.Name = toolName

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode extraction request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call extraction service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}

	c.logger.Debug("extraction call completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("extraction service returned %d", resp.StatusCode)
	}

	if len(parsed.Choices) == 0 || len(parsed.Choices[0].Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("extraction service did not return a tool call")
	}

	call := parsed.Choices[0].Message.ToolCalls[0].Function
	if call.Name != toolName {
		return nil, fmt.Errorf("extraction service called unexpected tool %q", call.Name)
	}

	// Tool arguments arrive as a JSON-encoded string per the chat-completions
	// contract; tolerate raw objects from compatible local backends.
	args := call.Arguments
	var argString string
	if err := json.Unmarshal(call.Arguments, &argString); err == nil {
		args = json.RawMessage(argString)
	}

	result, err := Validate(c.validator, args)
	if err != nil {
		return nil, err
	}

	return result, nil
}
