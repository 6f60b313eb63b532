package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeRejectsMissingType(t *testing.T) {
	if _, err := Decode([]byte(`{"channel_id":"ch-1"}`)); err == nil {
		t.Error("expected decode to reject an envelope without a type")
	}
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Error("expected decode to reject malformed JSON")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env := NewDocumentOp("doc-1", "u-1", OpInsert, 4, "abc", 0, 2)

	frame, err := env.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Type != KindDocumentOp {
		t.Errorf("expected type %s, got %s", KindDocumentOp, decoded.Type)
	}
	if decoded.DocumentID != "doc-1" || decoded.Operation != OpInsert {
		t.Errorf("unexpected decoded envelope: %+v", decoded)
	}
	if decoded.Position != 4 || decoded.Content != "abc" || decoded.Version != 2 {
		t.Errorf("operation fields lost in round trip: %+v", decoded)
	}
}

func TestChatMessageConstructor(t *testing.T) {
	env := NewChatMessage("ch-1", "u-1", "hello", "", "")

	if env.ID == "" {
		t.Error("expected a generated message id")
	}
	if env.MessageType != MessageText {
		t.Errorf("empty message type should default to text, got %s", env.MessageType)
	}
	if env.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestTypingEnvelopeCarriesExplicitFalse(t *testing.T) {
	frame, err := NewTyping("ch-1", "u-1", false).Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(frame, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	v, ok := raw["is_typing"]
	if !ok {
		t.Fatal("is_typing must be present even when false")
	}
	if v != false {
		t.Errorf("expected is_typing false, got %v", v)
	}
}

func TestReactionEnvelopeCarriesExplicitRemove(t *testing.T) {
	env := NewReaction("m-1", "ch-1", "u-1", "👍", false)
	if env.Add == nil || *env.Add {
		t.Error("expected an explicit add=false")
	}

	frame, err := env.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(frame, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if v, ok := raw["add"]; !ok || v != false {
		t.Errorf("expected add false on the wire, got %v (present=%v)", v, ok)
	}
}

func TestWebRTCSignalPayloadIsOpaque(t *testing.T) {
	payload := json.RawMessage(`{"sdp":"v=0...","custom":[1,2,3]}`)
	env := NewWebRTCSignal("u-2", "u-1", "offer", payload, "call-1")

	frame, err := env.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(decoded.SignalData) != string(payload) {
		t.Errorf("signal payload altered in transit: %s", decoded.SignalData)
	}
	if decoded.TargetUserID != "u-2" || decoded.CallID != "call-1" {
		t.Errorf("unexpected routing fields: %+v", decoded)
	}
}
