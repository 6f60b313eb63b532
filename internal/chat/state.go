// Package chat holds per-channel message state derived from the inbound
// envelope stream: creates, edits, deletes, and reactions.
package chat

import (
	"errors"
	"log"
	"sync"

	"github.com/teamspace-collab/sync-client/internal/model"
	"github.com/teamspace-collab/sync-client/internal/protocol"
)

// UndecryptablePlaceholder is rendered in place of a body the held key could
// not decrypt. The message itself still appears in the list.
const UndecryptablePlaceholder = "[undecryptable message]"

// Sender transmits chat envelopes. Implemented by the router.
type Sender interface {
	SendChatMessage(channelID, content, encryptedContent string, msgType protocol.MessageType) (*protocol.Envelope, error)
	SendReaction(messageID, channelID, emoji string, add bool) error
	SendMessageEdit(messageID, channelID, content, encryptedContent string) error
	SendMessageDelete(messageID, channelID string) error
}

// Cipher is the optional end-to-end encryption service. When a key is held,
// outbound bodies are encrypted; when not, they go out as plaintext.
type Cipher interface {
	HasKey() bool
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// State is the in-memory message list per channel.
type State struct {
	userID string
	sender Sender
	cipher Cipher

	mu       sync.RWMutex
	channels map[string][]*model.ChannelMessage
	byID     map[string]*model.ChannelMessage
}

// NewState creates chat state for the local user. cipher may be nil when the
// workspace does not use end-to-end encryption.
func NewState(userID string, sender Sender, cipher Cipher) *State {
	return &State{
		userID:   userID,
		sender:   sender,
		cipher:   cipher,
		channels: make(map[string][]*model.ChannelMessage),
		byID:     make(map[string]*model.ChannelMessage),
	}
}

// SendMessage sends a chat message on a channel, encrypting the body when a
// key is held.
func (s *State) SendMessage(channelID, body string, kind model.MessageKind) error {
	content, encrypted := body, ""
	if s.cipher != nil && s.cipher.HasKey() {
		ct, err := s.cipher.Encrypt(body)
		if err != nil {
			return err
		}
		content, encrypted = "", ct
	}
	_, err := s.sender.SendChatMessage(channelID, content, encrypted, protocol.MessageType(kind))
	return err
}

// React toggles an emoji reaction on a message.
func (s *State) React(messageID, channelID, emoji string, add bool) error {
	return s.sender.SendReaction(messageID, channelID, emoji, add)
}

// Edit replaces a message body, encrypting when a key is held.
func (s *State) Edit(messageID, channelID, body string) error {
	content, encrypted := body, ""
	if s.cipher != nil && s.cipher.HasKey() {
		ct, err := s.cipher.Encrypt(body)
		if err != nil {
			return err
		}
		content, encrypted = "", ct
	}
	return s.sender.SendMessageEdit(messageID, channelID, content, encrypted)
}

// Delete removes a message.
func (s *State) Delete(messageID, channelID string) error {
	return s.sender.SendMessageDelete(messageID, channelID)
}

// HandleEnvelope applies an inbound chat envelope to local state. Messages are
// appended only from the stream, so every participant, sender included, sees
// the same arrival order.
func (s *State) HandleEnvelope(env *protocol.Envelope) {
	switch env.Type {
	case protocol.KindChatMessage:
		s.applyCreate(env)
	case protocol.KindMessageEdited:
		s.applyEdit(env)
	case protocol.KindMessageDeleted:
		s.applyDelete(env)
	case protocol.KindReaction:
		s.applyReaction(env)
	}
}

func (s *State) applyCreate(env *protocol.Envelope) {
	body, undecryptable := s.resolveBody(env.Content, env.EncryptedContent)

	msg := &model.ChannelMessage{
		ID:            env.ID,
		ChannelID:     env.ChannelID,
		AuthorID:      env.UserID,
		Body:          body,
		Kind:          model.MessageKind(env.MessageType),
		ParentID:      env.ParentID,
		Undecryptable: undecryptable,
		CreatedAt:     env.Timestamp,
		UpdatedAt:     env.Timestamp,
	}
	if msg.Kind == "" {
		msg.Kind = model.MessageKindText
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[msg.ID]; exists {
		return
	}
	s.channels[msg.ChannelID] = append(s.channels[msg.ChannelID], msg)
	s.byID[msg.ID] = msg
}

func (s *State) applyEdit(env *protocol.Envelope) {
	body, undecryptable := s.resolveBody(env.Content, env.EncryptedContent)

	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.byID[env.MessageID]
	if !ok {
		return
	}
	msg.Body = body
	msg.Undecryptable = undecryptable
	msg.Edited = true
	msg.UpdatedAt = env.Timestamp
}

func (s *State) applyDelete(env *protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.byID[env.MessageID]
	if !ok {
		return
	}
	delete(s.byID, env.MessageID)
	list := s.channels[msg.ChannelID]
	for i, m := range list {
		if m.ID == env.MessageID {
			s.channels[msg.ChannelID] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

func (s *State) applyReaction(env *protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.byID[env.MessageID]
	if !ok {
		return
	}
	add := env.Add == nil || *env.Add
	if add {
		msg.AddReaction(env.Emoji, env.UserID)
	} else {
		msg.RemoveReaction(env.Emoji, env.UserID)
	}
}

// resolveBody picks the plaintext body, decrypting when only an encrypted one
// is present. A failed decrypt yields the placeholder and never an error: one
// undecryptable message must not disturb the rest of the list.
func (s *State) resolveBody(content, encrypted string) (body string, undecryptable bool) {
	if encrypted == "" {
		return content, false
	}
	if s.cipher == nil {
		return UndecryptablePlaceholder, true
	}
	plaintext, err := s.cipher.Decrypt(encrypted)
	if err != nil {
		if !errors.Is(err, model.ErrNoKey) {
			log.Printf("Failed to decrypt message: %v", err)
		}
		return UndecryptablePlaceholder, true
	}
	return plaintext, false
}

// Messages returns a snapshot of a channel's messages in arrival order.
func (s *State) Messages(channelID string) []model.ChannelMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.channels[channelID]
	result := make([]model.ChannelMessage, len(list))
	for i, m := range list {
		result[i] = *m
	}
	return result
}

// Reset drops all channel state. Called when leaving a workspace.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = make(map[string][]*model.ChannelMessage)
	s.byID = make(map[string]*model.ChannelMessage)
}
