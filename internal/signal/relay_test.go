package signal

import (
	"encoding/json"
	"testing"

	"github.com/teamspace-collab/sync-client/internal/protocol"
)

type recordingSignalSender struct {
	targets []string
	types   []string
}

func (s *recordingSignalSender) SendSignal(targetUserID, signalType string, signalData json.RawMessage, callID string) error {
	s.targets = append(s.targets, targetUserID)
	s.types = append(s.types, signalType)
	return nil
}

func TestSendForwardsToSender(t *testing.T) {
	sender := &recordingSignalSender{}
	r := NewRelay("u-1", sender, nil)

	if err := r.Send("u-2", "offer", json.RawMessage(`{"sdp":"v=0"}`), "call-1"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(sender.targets) != 1 || sender.targets[0] != "u-2" || sender.types[0] != "offer" {
		t.Errorf("unexpected forwarded signal: %v %v", sender.targets, sender.types)
	}
}

func TestInboundSignalForLocalUser(t *testing.T) {
	var received *protocol.Envelope
	r := NewRelay("u-1", &recordingSignalSender{}, func(env *protocol.Envelope) {
		received = env
	})

	r.HandleEnvelope(protocol.NewWebRTCSignal("u-1", "u-2", "answer", json.RawMessage(`{}`), "call-1"))
	if received == nil {
		t.Fatal("expected the callback to fire for a signal addressed to us")
	}
	if received.UserID != "u-2" || received.SignalType != "answer" {
		t.Errorf("unexpected envelope: %+v", received)
	}
}

func TestInboundSignalForOtherUserIgnored(t *testing.T) {
	fired := false
	r := NewRelay("u-1", &recordingSignalSender{}, func(*protocol.Envelope) { fired = true })

	r.HandleEnvelope(protocol.NewWebRTCSignal("u-3", "u-2", "answer", json.RawMessage(`{}`), "call-1"))
	if fired {
		t.Error("signal addressed to another user must not reach the callback")
	}
}

func TestNonSignalEnvelopeIgnored(t *testing.T) {
	fired := false
	r := NewRelay("u-1", &recordingSignalSender{}, func(*protocol.Envelope) { fired = true })

	r.HandleEnvelope(protocol.NewChatMessage("ch-1", "u-2", "hi", "", protocol.MessageText))
	if fired {
		t.Error("chat envelopes must not reach the signal callback")
	}
}

func TestNilCallbackIsSafe(t *testing.T) {
	r := NewRelay("u-1", &recordingSignalSender{}, nil)
	r.HandleEnvelope(protocol.NewWebRTCSignal("u-1", "u-2", "offer", json.RawMessage(`{}`), "call-1"))
}
