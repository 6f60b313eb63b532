// Package signal is the thin pass-through for call-setup payloads. Signaling
// messages ride the same workspace connection; the media pipeline itself is
// someone else's problem.
package signal

import (
	"encoding/json"

	"github.com/teamspace-collab/sync-client/internal/protocol"
)

// Sender transmits signaling envelopes. Implemented by the router.
type Sender interface {
	SendSignal(targetUserID, signalType string, signalData json.RawMessage, callID string) error
}

// Relay forwards call-setup payloads between participants.
type Relay struct {
	userID   string
	sender   Sender
	onSignal func(env *protocol.Envelope)
}

// NewRelay creates a Relay. onSignal is invoked for each inbound signal
// addressed to the local user; nil means inbound signals are ignored.
func NewRelay(userID string, sender Sender, onSignal func(env *protocol.Envelope)) *Relay {
	return &Relay{userID: userID, sender: sender, onSignal: onSignal}
}

// Send forwards a signaling payload to one target participant.
func (r *Relay) Send(targetUserID, signalType string, signalData json.RawMessage, callID string) error {
	return r.sender.SendSignal(targetUserID, signalType, signalData, callID)
}

// HandleEnvelope passes an inbound webrtc_signal envelope to the callback if
// it is addressed to the local user.
func (r *Relay) HandleEnvelope(env *protocol.Envelope) {
	if env.Type != protocol.KindWebRTCSignal || r.onSignal == nil {
		return
	}
	if env.TargetUserID != "" && env.TargetUserID != r.userID {
		return
	}
	r.onSignal(env)
}
