package history

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	want := Reply{Response: "hi", Status: "ok", ResearchNotes: []string{"n1"}}
	body := `{"response":"hi","status":"ok","research_notes":["n1",3]}`

	cases := map[string]any{
		"object":      map[string]any{"response": "hi", "status": "ok", "research_notes": []any{"n1", 3.0}},
		"json string": body,
		"text list":   []any{map[string]any{"type": "text", "text": body}},
		"raw message": json.RawMessage(body),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ParseReply(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseReply_Rejects(t *testing.T) {
	cases := map[string]any{
		"plain text":       "not json",
		"json null":        "null",
		"empty list":       []any{},
		"non-text item":    []any{map[string]any{"type": "image"}},
		"number":           42,
		"response not str": map[string]any{"response": 1},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseReply(in)
			assert.Error(t, err)
		})
	}
}
