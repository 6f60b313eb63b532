// Package model defines the client-side domain entities kept in memory by the
// synchronization core.
package model

import "time"

// ChannelMessage is one chat message as held in local channel state. Immutable
// once created except for Body (edits), Reactions, and the Edited flag; removed
// only by an explicit delete event.
type ChannelMessage struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channelId"`
	AuthorID  string      `json:"authorId"`
	Body      string      `json:"body"`
	Kind      MessageKind `json:"kind"`
	ParentID  string      `json:"parentId,omitempty"`
	// Reactions maps emoji to the set of user ids that reacted with it.
	Reactions map[string]map[string]bool `json:"reactions,omitempty"`
	Edited    bool                       `json:"edited"`
	// Undecryptable is set when the message arrived encrypted and the held key
	// could not decrypt it; Body then holds a placeholder.
	Undecryptable bool      `json:"undecryptable,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MessageKind classifies a channel message body.
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindImage  MessageKind = "image"
	MessageKindFile   MessageKind = "file"
	MessageKindSystem MessageKind = "system"
)

// AddReaction records a reaction from a user. Creating the nested maps lazily
// keeps zero-reaction messages cheap.
func (m *ChannelMessage) AddReaction(emoji, userID string) {
	if m.Reactions == nil {
		m.Reactions = make(map[string]map[string]bool)
	}
	if m.Reactions[emoji] == nil {
		m.Reactions[emoji] = make(map[string]bool)
	}
	m.Reactions[emoji][userID] = true
}

// RemoveReaction removes a user's reaction, dropping the emoji entry when the
// last reactor leaves.
func (m *ChannelMessage) RemoveReaction(emoji, userID string) {
	users, ok := m.Reactions[emoji]
	if !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(m.Reactions, emoji)
	}
}
