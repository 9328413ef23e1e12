package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() map[string]interface{} {
	return map[string]interface{}{
		"records": []map[string]interface{}{
			{
				"student_name":        "Maria",
				"recording_timestamp": "2026-03-01T09:30:00Z",
				"behavior": map[string]interface{}{
					"category":       "disruption",
					"description":    "Talking over the teacher during algebra.",
					"severity":       "moderate",
					"is_positive":    false,
					"needs_followup": true,
					"tags":           []string{"talking"},
				},
			},
		},
	}
}

func marshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestValidateAcceptsConformingPayload(t *testing.T) {
	v := NewValidator()

	result, err := Validate(v, marshal(t, validPayload()))
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	assert.Equal(t, "Maria", *rec.StudentName)
	assert.Equal(t, "disruption", rec.Behavior.Category)
	assert.False(t, *rec.Behavior.IsPositive)
	assert.True(t, *rec.Behavior.NeedsFollowup)
}

func TestValidateAllowsEmptyStudentName(t *testing.T) {
	v := NewValidator()
	payload := validPayload()
	payload["records"].([]map[string]interface{})[0]["student_name"] = ""

	result, err := Validate(v, marshal(t, payload))
	require.NoError(t, err)
	assert.Equal(t, "", *result.Records[0].StudentName)
}

func TestValidateAllowsEmptyRecords(t *testing.T) {
	// Zero records passes schema validation; the pipeline classifies it as an
	// empty-extraction error separately.
	v := NewValidator()

	result, err := Validate(v, marshal(t, map[string]interface{}{"records": []map[string]interface{}{}}))
	require.NoError(t, err)
	assert.Empty(t, result.Records)
}

func TestValidateRejectsInvalidEnums(t *testing.T) {
	v := NewValidator()

	cases := []struct {
		name     string
		mutate   func(rec map[string]interface{})
		wantPath string
	}{
		{
			name: "category",
			mutate: func(rec map[string]interface{}) {
				rec["behavior"].(map[string]interface{})["category"] = "shouting"
			},
			wantPath: "records[0].behavior.category",
		},
		{
			name: "severity",
			mutate: func(rec map[string]interface{}) {
				rec["behavior"].(map[string]interface{})["severity"] = "catastrophic"
			},
			wantPath: "records[0].behavior.severity",
		},
		{
			name: "intervention status",
			mutate: func(rec map[string]interface{}) {
				rec["intervention"] = map[string]interface{}{"status": "pending"}
			},
			wantPath: "records[0].intervention.status",
		},
		{
			name: "intervention tier",
			mutate: func(rec map[string]interface{}) {
				rec["intervention"] = map[string]interface{}{"tier": "tier_4"}
			},
			wantPath: "records[0].intervention.tier",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := validPayload()
			tc.mutate(payload["records"].([]map[string]interface{})[0])

			_, err := Validate(v, marshal(t, payload))
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Paths, tc.wantPath)
		})
	}
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	v := NewValidator()
	payload := validPayload()
	rec := payload["records"].([]map[string]interface{})[0]
	behavior := rec["behavior"].(map[string]interface{})
	delete(behavior, "is_positive")
	delete(behavior, "tags")
	delete(rec, "recording_timestamp")

	_, err := Validate(v, marshal(t, payload))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Paths, "records[0].behavior.is_positive")
	assert.Contains(t, verr.Paths, "records[0].behavior.tags")
	assert.Contains(t, verr.Paths, "records[0].recording_timestamp")
}

func TestValidateRejectsBadTimestamps(t *testing.T) {
	v := NewValidator()
	payload := validPayload()
	rec := payload["records"].([]map[string]interface{})[0]
	rec["recording_timestamp"] = "yesterday"
	rec["behavior_date"] = "March 1st"

	_, err := Validate(v, marshal(t, payload))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Paths, "records[0].recording_timestamp")
	assert.Contains(t, verr.Paths, "records[0].behavior_date")
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	v := NewValidator()

	_, err := Validate(v, json.RawMessage(`{"records": [`))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
