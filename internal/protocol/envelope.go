// Package protocol defines the wire envelope exchanged over the workspace
// connection and helpers to construct each message kind.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the payload carried by an Envelope.
type Kind string

const (
	KindChatMessage    Kind = "chat_message"
	KindMessageEdited  Kind = "message_edited"
	KindMessageDeleted Kind = "message_deleted"
	KindReaction       Kind = "reaction"
	KindTyping         Kind = "typing"
	KindUserPresence   Kind = "user_presence"
	KindDocumentOp     Kind = "document_operation"
	KindCursorPosition Kind = "cursor_position"
	KindWebRTCSignal   Kind = "webrtc_signal"
)

// OpType is the kind of document operation carried in a document_operation envelope.
type OpType string

const (
	OpInsert OpType = "insert"
	OpDelete OpType = "delete"
)

// MessageType classifies a chat message body.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Envelope is the single wire unit. Every frame, inbound and outbound, is one
// Envelope serialized as a flat JSON object; Type selects which of the
// kind-specific fields are meaningful.
type Envelope struct {
	Type Kind `json:"type"`

	// Common
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	// chat_message / message_edited / message_deleted / reaction
	ID               string      `json:"id,omitempty"`
	ChannelID        string      `json:"channel_id,omitempty"`
	MessageID        string      `json:"message_id,omitempty"`
	Content          string      `json:"content,omitempty"`
	EncryptedContent string      `json:"encrypted_content,omitempty"`
	MessageType      MessageType `json:"message_type,omitempty"`
	ParentID         string      `json:"parent_id,omitempty"`
	Emoji            string      `json:"emoji,omitempty"`
	Add              *bool       `json:"add,omitempty"`

	// typing
	IsTyping *bool `json:"is_typing,omitempty"`

	// user_presence
	Status string `json:"status,omitempty"`

	// document_operation / cursor_position
	DocumentID string `json:"document_id,omitempty"`
	Operation  OpType `json:"operation,omitempty"`
	Position   int    `json:"position,omitempty"`
	Length     int    `json:"length,omitempty"`
	Version    int    `json:"version,omitempty"`
	Selection  *int   `json:"selection,omitempty"`

	// webrtc_signal
	TargetUserID string          `json:"target_user_id,omitempty"`
	SignalType   string          `json:"signal_type,omitempty"`
	SignalData   json.RawMessage `json:"signal_data,omitempty"`
	CallID       string          `json:"call_id,omitempty"`
}

// Decode parses a raw frame into an Envelope. Frames without a type
// discriminator are rejected so the router can drop them early.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope missing type discriminator")
	}
	return &env, nil
}

// Encode serializes an Envelope to a wire frame.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", e.Type, err)
	}
	return data, nil
}

// NewChatMessage builds a chat_message envelope. Exactly one of content or
// encryptedContent should be non-empty; the caller decides which based on
// whether an encryption key is in play.
func NewChatMessage(channelID, userID, content, encryptedContent string, msgType MessageType) *Envelope {
	if msgType == "" {
		msgType = MessageText
	}
	return &Envelope{
		Type:             KindChatMessage,
		ID:               uuid.New().String(),
		ChannelID:        channelID,
		UserID:           userID,
		Content:          content,
		EncryptedContent: encryptedContent,
		MessageType:      msgType,
		Timestamp:        time.Now().UTC(),
	}
}

// NewTyping builds a typing envelope.
func NewTyping(channelID, userID string, isTyping bool) *Envelope {
	return &Envelope{
		Type:      KindTyping,
		ChannelID: channelID,
		UserID:    userID,
		IsTyping:  &isTyping,
		Timestamp: time.Now().UTC(),
	}
}

// NewPresence builds a user_presence envelope.
func NewPresence(userID, status string) *Envelope {
	return &Envelope{
		Type:      KindUserPresence,
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// NewDocumentOp builds a document_operation envelope. For inserts content
// carries the spliced text; for deletes length carries the rune count removed.
func NewDocumentOp(documentID, userID string, op OpType, position int, content string, length, baseVersion int) *Envelope {
	return &Envelope{
		Type:       KindDocumentOp,
		DocumentID: documentID,
		UserID:     userID,
		Operation:  op,
		Position:   position,
		Content:    content,
		Length:     length,
		Version:    baseVersion,
		Timestamp:  time.Now().UTC(),
	}
}

// NewCursorPosition builds a cursor_position envelope. Advisory only; never
// affects document content or version.
func NewCursorPosition(documentID, userID string, position int, selection *int) *Envelope {
	return &Envelope{
		Type:       KindCursorPosition,
		DocumentID: documentID,
		UserID:     userID,
		Position:   position,
		Selection:  selection,
		Timestamp:  time.Now().UTC(),
	}
}

// NewWebRTCSignal builds a webrtc_signal envelope addressed to a single user.
func NewWebRTCSignal(targetUserID, fromUserID, signalType string, signalData json.RawMessage, callID string) *Envelope {
	return &Envelope{
		Type:         KindWebRTCSignal,
		TargetUserID: targetUserID,
		UserID:       fromUserID,
		SignalType:   signalType,
		SignalData:   signalData,
		CallID:       callID,
		Timestamp:    time.Now().UTC(),
	}
}

// NewReaction builds a reaction envelope. add toggles between adding and
// removing the emoji for the sending user.
func NewReaction(messageID, channelID, userID, emoji string, add bool) *Envelope {
	return &Envelope{
		Type:      KindReaction,
		MessageID: messageID,
		ChannelID: channelID,
		UserID:    userID,
		Emoji:     emoji,
		Add:       &add,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessageEdited builds a message_edited envelope.
func NewMessageEdited(messageID, channelID, content, encryptedContent string) *Envelope {
	return &Envelope{
		Type:             KindMessageEdited,
		MessageID:        messageID,
		ChannelID:        channelID,
		Content:          content,
		EncryptedContent: encryptedContent,
		Timestamp:        time.Now().UTC(),
	}
}

// NewMessageDeleted builds a message_deleted envelope.
func NewMessageDeleted(messageID, channelID string) *Envelope {
	return &Envelope{
		Type:      KindMessageDeleted,
		MessageID: messageID,
		ChannelID: channelID,
		Timestamp: time.Now().UTC(),
	}
}
