package redaction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pbj-app/pbj-api/pkg/config"
)

func TestHTTPClientRedact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/redact", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Maria pushed Jimmy in the hallway.", req["text"])

		_ = json.NewEncoder(w).Encode(Result{
			RedactedText: "PERSON_1 pushed PERSON_2 in the hallway.",
			NameMapping:  map[string]string{"PERSON_1": "Maria", "PERSON_2": "Jimmy"},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(config.RedactionConfig{BaseURL: server.URL, Timeout: 2 * time.Second}, zap.NewNop())
	result, err := client.Redact(context.Background(), "Maria pushed Jimmy in the hallway.")
	require.NoError(t, err)
	assert.Equal(t, "PERSON_1 pushed PERSON_2 in the hallway.", result.RedactedText)
	assert.Len(t, result.NameMapping, 2)
}

func TestHTTPClientRedactFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("analyzer crashed"))
	}))
	defer server.Close()

	client := NewHTTPClient(config.RedactionConfig{BaseURL: server.URL}, zap.NewNop())
	_, err := client.Redact(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyzer crashed")
}

func TestResultRestore(t *testing.T) {
	result := &Result{
		NameMapping: map[string]string{"PERSON_1": "Maria", "PERSON_2": "Jimmy"},
	}

	restored := result.Restore("PERSON_1 apologized to PERSON_2. PERSON_3 watched.")
	assert.Equal(t, "Maria apologized to Jimmy. PERSON_3 watched.", restored)
}

func TestResultRestorePrefixAliases(t *testing.T) {
	// PERSON_1 is a prefix of PERSON_10; a two-digit alias must never be
	// clobbered by its one-digit prefix regardless of map iteration order.
	mapping := map[string]string{"PERSON_10": "Jimmy"}
	for i := 1; i < 10; i++ {
		mapping[fmt.Sprintf("PERSON_%d", i)] = fmt.Sprintf("Student%d", i)
	}
	result := &Result{NameMapping: mapping}

	for i := 0; i < 50; i++ {
		restored := result.Restore("PERSON_10 was calm while PERSON_1 shouted.")
		require.Equal(t, "Jimmy was calm while Student1 shouted.", restored)
	}
}

func TestPassthrough(t *testing.T) {
	result, err := Passthrough{}.Redact(context.Background(), "unchanged text")
	require.NoError(t, err)
	assert.Equal(t, "unchanged text", result.RedactedText)
	assert.Empty(t, result.NameMapping)
	assert.Equal(t, "same", result.Restore("same"))
}
