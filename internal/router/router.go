// Package router deserializes inbound frames and dispatches them to typed
// subscribers, and wraps outbound envelope construction around the connection's
// send primitive.
package router

import (
	"encoding/json"
	"log"

	"github.com/teamspace-collab/sync-client/internal/protocol"
)

// Sender transmits an envelope over the live connection. Implemented by the
// connection manager.
type Sender interface {
	Send(env *protocol.Envelope) error
}

// Handler is invoked synchronously for each matching inbound envelope.
type Handler func(env *protocol.Envelope)

// Router dispatches inbound envelopes to subscribers in registration order and
// builds outbound envelopes for each message kind.
type Router struct {
	userID string
	sender Sender

	reg *registry
}

// New creates a Router sending on behalf of userID through sender.
func New(userID string, sender Sender) *Router {
	return &Router{
		userID: userID,
		sender: sender,
		reg:    newRegistry(),
	}
}

// Subscribe registers a handler for the given kinds. With no kinds the handler
// receives every inbound envelope. The returned Subscription must be cancelled
// to stop delivery; cancellation revokes the registration rather than
// filtering it.
func (r *Router) Subscribe(handler Handler, kinds ...protocol.Kind) *Subscription {
	return r.reg.add(handler, kinds)
}

// Dispatch parses a raw inbound frame and delivers it to subscribers in
// registration order. A malformed frame is dropped and logged; it never
// affects connection state or later frames. A panicking subscriber does not
// prevent the remaining subscribers from running.
func (r *Router) Dispatch(frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		log.Printf("Dropping malformed frame: %v", err)
		return
	}
	r.reg.dispatch(env)
}

// SendChatMessage sends a chat message. Exactly one of content or
// encryptedContent should be set.
func (r *Router) SendChatMessage(channelID, content, encryptedContent string, msgType protocol.MessageType) (*protocol.Envelope, error) {
	env := protocol.NewChatMessage(channelID, r.userID, content, encryptedContent, msgType)
	return env, r.sender.Send(env)
}

// SendTyping signals the local user's typing state on a channel.
func (r *Router) SendTyping(channelID string, isTyping bool) error {
	return r.sender.Send(protocol.NewTyping(channelID, r.userID, isTyping))
}

// SendDocumentOp transmits a document operation.
func (r *Router) SendDocumentOp(documentID string, op protocol.OpType, position int, content string, length, baseVersion int) error {
	return r.sender.Send(protocol.NewDocumentOp(documentID, r.userID, op, position, content, length, baseVersion))
}

// SendCursorPosition broadcasts the local caret position in a document.
func (r *Router) SendCursorPosition(documentID string, position int, selection *int) error {
	return r.sender.Send(protocol.NewCursorPosition(documentID, r.userID, position, selection))
}

// SendSignal forwards a call-setup payload to a single target user.
func (r *Router) SendSignal(targetUserID, signalType string, signalData json.RawMessage, callID string) error {
	return r.sender.Send(protocol.NewWebRTCSignal(targetUserID, r.userID, signalType, signalData, callID))
}

// SendReaction adds or removes an emoji reaction on a message.
func (r *Router) SendReaction(messageID, channelID, emoji string, add bool) error {
	return r.sender.Send(protocol.NewReaction(messageID, channelID, r.userID, emoji, add))
}

// SendMessageEdit sends an edit of an existing message.
func (r *Router) SendMessageEdit(messageID, channelID, content, encryptedContent string) error {
	return r.sender.Send(protocol.NewMessageEdited(messageID, channelID, content, encryptedContent))
}

// SendMessageDelete deletes an existing message.
func (r *Router) SendMessageDelete(messageID, channelID string) error {
	return r.sender.Send(protocol.NewMessageDeleted(messageID, channelID))
}

// UserID returns the local user id the router sends as.
func (r *Router) UserID() string {
	return r.userID
}
