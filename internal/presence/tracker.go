// Package presence derives per-channel "who is active / who is typing" state
// from inbound events and debounces the local user's outbound typing signal.
package presence

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/teamspace-collab/sync-client/internal/protocol"
)

const (
	defaultIdleTimeout  = 1 * time.Second
	defaultTypingExpiry = 5 * time.Second
)

// TypingSender emits the local user's typing state. Implemented by the router.
type TypingSender interface {
	SendTyping(channelID string, isTyping bool) error
}

// Config holds tuning for a Tracker. Zero values get defaults.
type Config struct {
	// IdleTimeout is how long after the last keystroke typing(false) is sent.
	IdleTimeout time.Duration
	// TypingExpiry bounds how long a remote user stays in the typing set
	// without a fresh typing event, in case their stop signal was lost.
	TypingExpiry time.Duration
}

func (c *Config) applyDefaults() {
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.TypingExpiry == 0 {
		c.TypingExpiry = defaultTypingExpiry
	}
}

// outboundState is the local debounce state for one channel.
type outboundState struct {
	active bool
	timer  *time.Timer
}

// Tracker maintains typing sets and the workspace online set.
type Tracker struct {
	cfg    Config
	userID string
	sender TypingSender

	mu sync.Mutex
	// typing maps channel id -> user id -> entry expiry deadline.
	typing   map[string]map[string]time.Time
	online   map[string]bool
	outbound map[string]*outboundState
}

// NewTracker creates a Tracker for the local user.
func NewTracker(userID string, sender TypingSender, cfg Config) *Tracker {
	cfg.applyDefaults()
	return &Tracker{
		cfg:      cfg,
		userID:   userID,
		sender:   sender,
		typing:   make(map[string]map[string]time.Time),
		online:   make(map[string]bool),
		outbound: make(map[string]*outboundState),
	}
}

// InputActivity records a local keystroke on a channel. The first keystroke
// emits typing(true); further keystrokes only push the idle timer out. After
// IdleTimeout of inactivity a single typing(false) is emitted.
func (t *Tracker) InputActivity(channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.outbound[channelID]
	if !ok {
		state = &outboundState{}
		t.outbound[channelID] = state
	}

	if !state.active {
		state.active = true
		if err := t.sender.SendTyping(channelID, true); err != nil {
			log.Printf("Failed to send typing start for channel %s: %v", channelID, err)
		}
	}

	if state.timer != nil {
		state.timer.Stop()
	}
	state.timer = time.AfterFunc(t.cfg.IdleTimeout, func() {
		t.idleExpired(channelID)
	})
}

func (t *Tracker) idleExpired(channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.outbound[channelID]
	if !ok || !state.active {
		return
	}
	state.active = false
	state.timer = nil
	if err := t.sender.SendTyping(channelID, false); err != nil {
		log.Printf("Failed to send typing stop for channel %s: %v", channelID, err)
	}
}

// HandleEnvelope applies an inbound typing or user_presence envelope.
// Self-originated typing events are ignored to avoid echo.
func (t *Tracker) HandleEnvelope(env *protocol.Envelope) {
	switch env.Type {
	case protocol.KindTyping:
		if env.UserID == t.userID || env.IsTyping == nil {
			return
		}
		t.applyTyping(env.ChannelID, env.UserID, *env.IsTyping)
	case protocol.KindUserPresence:
		t.applyPresence(env.UserID, env.Status)
	}
}

func (t *Tracker) applyTyping(channelID, userID string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !isTyping {
		if users, ok := t.typing[channelID]; ok {
			delete(users, userID)
			if len(users) == 0 {
				delete(t.typing, channelID)
			}
		}
		return
	}

	if t.typing[channelID] == nil {
		t.typing[channelID] = make(map[string]time.Time)
	}
	t.typing[channelID][userID] = time.Now().Add(t.cfg.TypingExpiry)
}

func (t *Tracker) applyPresence(userID, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if status == "online" {
		t.online[userID] = true
	} else {
		delete(t.online, userID)
	}
}

// TypingUsers returns who is typing on a channel, expired entries excluded,
// sorted for stable rendering.
func (t *Tracker) TypingUsers(channelID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.typing[channelID]
	if !ok {
		return nil
	}

	now := time.Now()
	var result []string
	for userID, deadline := range users {
		if now.After(deadline) {
			delete(users, userID)
			continue
		}
		result = append(result, userID)
	}
	if len(users) == 0 {
		delete(t.typing, channelID)
	}
	sort.Strings(result)
	return result
}

// OnlineUsers returns the workspace online set, sorted.
func (t *Tracker) OnlineUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]string, 0, len(t.online))
	for userID := range t.online {
		result = append(result, userID)
	}
	sort.Strings(result)
	return result
}

// IsOnline reports whether a user is currently present in the workspace.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online[userID]
}

// Reset clears all typing and presence state and cancels pending idle timers.
// Called when leaving a workspace.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, state := range t.outbound {
		if state.timer != nil {
			state.timer.Stop()
		}
	}
	t.typing = make(map[string]map[string]time.Time)
	t.online = make(map[string]bool)
	t.outbound = make(map[string]*outboundState)
}
