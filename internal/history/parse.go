package history

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reply is the structured output of a delegate agent.
type Reply struct {
	Response      string
	Status        string
	ResearchNotes []string
}

var errNoObject = errors.New("delegate result is not an object")

// ParseReply accepts a decoded object, a JSON string holding one, or a list
// whose first item is {"type":"text","text":<json>}.
func ParseReply(result any) (Reply, error) {
	obj, err := asObject(result)
	if err != nil {
		return Reply{}, err
	}

	var r Reply
	if v, ok := obj["response"]; ok {
		s, ok := v.(string)
		if !ok {
			return Reply{}, fmt.Errorf("response field is %T, not a string", v)
		}
		r.Response = s
	}
	if s, ok := obj["status"].(string); ok {
		r.Status = s
	}
	if notes, ok := obj["research_notes"].([]any); ok {
		for _, n := range notes {
			if s, ok := n.(string); ok {
				r.ResearchNotes = append(r.ResearchNotes, s)
			}
		}
	}
	return r, nil
}

func asObject(result any) (map[string]any, error) {
	switch v := result.(type) {
	case map[string]any:
		return v, nil
	case string:
		var obj map[string]any
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return nil, fmt.Errorf("decode delegate result: %w", err)
		}
		if obj == nil {
			return nil, errNoObject
		}
		return obj, nil
	case []any:
		if len(v) == 0 {
			return nil, errNoObject
		}
		first, ok := v[0].(map[string]any)
		if !ok || first["type"] != "text" {
			return nil, errNoObject
		}
		text, _ := first["text"].(string)
		return asObject(text)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return nil, fmt.Errorf("decode delegate result: %w", err)
		}
		return asObject(decoded)
	default:
		return nil, errNoObject
	}
}
