package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pbj-app/pbj-api/pkg/config"
)

func toolCallResponse(t *testing.T, args interface{}) string {
	t.Helper()
	encoded, err := json.Marshal(args)
	require.NoError(t, err)
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{
				"message": map[string]interface{}{
					"tool_calls": []map[string]interface{}{
						{
							"function": map[string]interface{}{
								"name":      "parse_behavior_record",
								"arguments": string(encoded),
							},
						},
					},
				},
			},
		},
	}
	body, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(body)
}

func newTestClient(baseURL string) *OpenAIClient {
	return NewOpenAIClient(config.LLMConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "gpt-4o",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestExtractForcesToolCallAndInjectsTimestamp(t *testing.T) {
	recordedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		payload := validPayload()
		payload["records"].([]map[string]interface{})[0]["recording_timestamp"] = recordedAt.Format(time.RFC3339)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(toolCallResponse(t, payload)))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.Extract(context.Background(), "Maria was disruptive during algebra.", recordedAt)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	assert.Equal(t, "function", captured.ToolChoice.Type)
	assert.Equal(t, "parse_behavior_record", captured.ToolChoice.Function.Name)
	require.Len(t, captured.Messages, 2)
	assert.Contains(t, captured.Messages[1].Content, recordedAt.Format(time.RFC3339))
	assert.Contains(t, captured.Messages[1].Content, "Maria was disruptive")
}

func TestExtractRejectsMissingToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"I cannot do that."}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Extract(context.Background(), "note", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool call")
}

func TestExtractRejectsWrongTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"tool_calls":[{"function":{"name":"something_else","arguments":"{}"}}]}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Extract(context.Background(), "note", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected tool")
}

func TestExtractSurfacesServiceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Extract(context.Background(), "note", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestExtractRejectsContractViolations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := validPayload()
		payload["records"].([]map[string]interface{})[0]["behavior"].(map[string]interface{})["severity"] = "extreme"
		_, _ = w.Write([]byte(toolCallResponse(t, payload)))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Extract(context.Background(), "note", time.Now())
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Paths, "records[0].behavior.severity")
}

func TestExtractHonorsContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := newTestClient(server.URL)
	_, err := client.Extract(ctx, "note", time.Now())
	require.Error(t, err)
}
