package websocket

import (
	"encoding/json"
	"testing"
)

func TestWSMessage_ApprovedIsTriState(t *testing.T) {
	var missing, denied WSMessage
	if err := json.Unmarshal([]byte(`{"type":"confirmation_response","tool_call_id":"a"}`), &missing); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"type":"confirmation_response","tool_call_id":"a","approved":false}`), &denied); err != nil {
		t.Fatal(err)
	}
	if missing.Approved != nil {
		t.Error("absent approved should decode as nil")
	}
	if denied.Approved == nil || *denied.Approved {
		t.Error("explicit false should decode as false")
	}
}

func TestWSMessage_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(WSMessage{Type: TypePong})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"pong"}` {
		t.Errorf("marshal = %s", data)
	}
}
