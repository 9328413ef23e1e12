package extraction

import (
	"fmt"
	"time"
)

const toolName = "parse_behavior_record"

const systemPrompt = `You are a specialized assistant that extracts structured student behavior records from unstructured teacher notes.
You must always use the ` + "`parse_behavior_record`" + ` tool.
You are a high school behavior specialist familiar with PBIS, MTSS, and other behavior intervention programs.
If there are multiple students mentioned in a note, return one record per student mentioned.
Severity and intervention requirements should be in line with a high school environment.
Student names in the note may appear as aliases (e.g., PERSON_1, PERSON_2) for privacy protection. Use these aliases exactly as they appear in the student_name field - do not try to guess or replace them with real names.
Always include category, description, severity, is_positive, needs_followup and tags in every behavior record.
Use the recording_timestamp value supplied by the caller exactly; never invent your own.
Do not hallucinate the behavior date. If it is not explicitly mentioned in the note, omit behavior_date entirely.
Never guess student_name or class_name; if that information is not explicitly mentioned in the note, return an empty string.`

func userPrompt(originalText string, recordingTimestamp time.Time) string {
	return fmt.Sprintf("Please process the following teacher note: %q\n\nThe recording_timestamp for this note is: %s\nUse this exact timestamp value for the recording_timestamp field in every record.",
		originalText, recordingTimestamp.UTC().Format(time.RFC3339))
}

// toolSchema is the JSON Schema for the forced tool call. The top level is a
// records array so a single note can yield one record per student mentioned.
func toolSchema() map[string]interface{} {
	categoryEnum := []string{
		"off-task", "disruption", "non-participation", "tardy", "absence",
		"peer-disruption", "technology-violation", "prosocial", "defiance",
		"aggression", "self-management", "respect", "other",
	}

	recordSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"student_name":        map[string]interface{}{"type": "string"},
			"student_id":          map[string]interface{}{"type": "string"},
			"recording_timestamp": map[string]interface{}{"type": "string"},
			"behavior_date":       map[string]interface{}{"type": "string"},
			"source":              map[string]interface{}{"type": "string", "enum": []string{"teacher_note"}},
			"behavior": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"category":       map[string]interface{}{"type": "string", "enum": categoryEnum},
					"description":    map[string]interface{}{"type": "string"},
					"severity":       map[string]interface{}{"type": "string", "enum": []string{"low", "moderate", "high"}},
					"is_positive":    map[string]interface{}{"type": "boolean"},
					"needs_followup": map[string]interface{}{"type": "boolean"},
					"tags":           map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				},
				"required": []string{"category", "description", "severity", "is_positive", "needs_followup", "tags"},
			},
			"context": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"class_name": map[string]interface{}{"type": "string"},
					"teacher":    map[string]interface{}{"type": "string"},
					"activity":   map[string]interface{}{"type": "string"},
					"group_ids":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"location":   map[string]interface{}{"type": "string"},
				},
			},
			"intervention": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"status": map[string]interface{}{"type": "string", "enum": []string{"none", "recommended", "in_progress", "completed"}},
					"type":   map[string]interface{}{"type": "string"},
					"notes":  map[string]interface{}{"type": "string"},
					"tier":   map[string]interface{}{"type": "string", "enum": []string{"universal", "tier_1", "tier_2", "tier_3"}},
				},
			},
		},
		"required": []string{"student_name", "recording_timestamp", "behavior"},
	}

	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"records": map[string]interface{}{
				"type":  "array",
				"items": recordSchema,
			},
		},
		"required": []string{"records"},
	}
}
