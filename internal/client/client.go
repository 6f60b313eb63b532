// Package client is the top-level application context for the synchronization
// core. It wires the connection manager, router, trackers, and engines
// together as explicitly constructed, dependency-injected objects; there is no
// ambient global state, so tests can run isolated instances side by side.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/teamspace-collab/sync-client/internal/chat"
	"github.com/teamspace-collab/sync-client/internal/conn"
	"github.com/teamspace-collab/sync-client/internal/crypto"
	"github.com/teamspace-collab/sync-client/internal/docsync"
	"github.com/teamspace-collab/sync-client/internal/model"
	"github.com/teamspace-collab/sync-client/internal/presence"
	"github.com/teamspace-collab/sync-client/internal/protocol"
	"github.com/teamspace-collab/sync-client/internal/router"
	"github.com/teamspace-collab/sync-client/internal/signal"
)

// Config holds everything a Client needs.
type Config struct {
	// BaseURL is the workspace websocket endpoint, e.g. "ws://localhost:8080".
	BaseURL string
	// UserID identifies the local user on the wire.
	UserID string

	// Store, when non-nil, receives debounced full-content document saves.
	Store docsync.Store

	// OnSignal, when non-nil, receives inbound call-setup payloads addressed
	// to the local user.
	OnSignal func(env *protocol.Envelope)

	Conn     conn.Config
	Presence presence.Config
	Docsync  docsync.Config
}

// Client is one user's live view of a workspace.
type Client struct {
	cfg Config

	conn     *conn.Manager
	router   *router.Router
	crypto   *crypto.Service
	presence *presence.Tracker
	chat     *chat.State
	relay    *signal.Relay

	mu   sync.Mutex
	docs map[string]*docsync.Engine
	subs []*router.Subscription
}

// New builds a fully wired Client. Nothing connects until Connect is called.
func New(cfg Config) *Client {
	if cfg.Conn.BaseURL == "" {
		cfg.Conn.BaseURL = cfg.BaseURL
	}

	c := &Client{
		cfg:    cfg,
		conn:   conn.NewManager(cfg.Conn),
		crypto: crypto.NewService(),
		docs:   make(map[string]*docsync.Engine),
	}
	c.router = router.New(cfg.UserID, c.conn)
	c.presence = presence.NewTracker(cfg.UserID, c.router, cfg.Presence)
	c.chat = chat.NewState(cfg.UserID, c.router, c.crypto)
	c.relay = signal.NewRelay(cfg.UserID, c.router, cfg.OnSignal)

	c.conn.SetOnFrame(c.router.Dispatch)
	c.subscribe()
	return c
}

func (c *Client) subscribe() {
	c.subs = append(c.subs,
		c.router.Subscribe(c.presence.HandleEnvelope,
			protocol.KindTyping, protocol.KindUserPresence),
		c.router.Subscribe(c.chat.HandleEnvelope,
			protocol.KindChatMessage, protocol.KindMessageEdited,
			protocol.KindMessageDeleted, protocol.KindReaction),
		c.router.Subscribe(c.relay.HandleEnvelope, protocol.KindWebRTCSignal),
		c.router.Subscribe(c.dispatchDocument,
			protocol.KindDocumentOp, protocol.KindCursorPosition),
	)
}

// dispatchDocument routes document envelopes to the engine that has the
// document open; envelopes for closed documents are dropped.
func (c *Client) dispatchDocument(env *protocol.Envelope) {
	c.mu.Lock()
	engine := c.docs[env.DocumentID]
	c.mu.Unlock()
	if engine != nil {
		engine.HandleEnvelope(env)
	}
}

// Connect joins a workspace session.
func (c *Client) Connect(ctx context.Context, workspaceID, token string) error {
	return c.conn.Connect(ctx, workspaceID, token)
}

// Disconnect leaves the current workspace: tears down the connection and
// clears presence, typing, and channel state for it. Open documents stay open;
// they belong to their views, not the workspace connection.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
	c.presence.Reset()
	c.chat.Reset()
}

// Login derives the end-to-end encryption key for this session.
func (c *Client) Login(password string, salt []byte) {
	c.crypto.SetKey(password, salt)
}

// Logout discards the encryption key so no key material outlives the session.
func (c *Client) Logout() {
	c.crypto.Clear()
}

// OpenDocument opens a document for collaborative editing, seeding it from the
// store when a saved snapshot exists.
func (c *Client) OpenDocument(ctx context.Context, documentID string) (*docsync.Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if engine, ok := c.docs[documentID]; ok {
		return engine, nil
	}

	content, version := "", 0
	if loader, ok := c.cfg.Store.(documentLoader); ok {
		var err error
		content, version, err = loader.LoadDocument(ctx, documentID)
		if err != nil && !errors.Is(err, model.ErrDocumentNotFound) {
			return nil, fmt.Errorf("failed to open document %s: %w", documentID, err)
		}
	}

	engine := docsync.NewEngine(documentID, c.cfg.UserID, content, version, c.router, c.cfg.Store, c.cfg.Docsync)
	c.docs[documentID] = engine
	return engine, nil
}

// documentLoader is the optional read side of a docsync.Store.
type documentLoader interface {
	LoadDocument(ctx context.Context, documentID string) (content string, version int, err error)
}

// CloseDocument closes an open document view: flushes unsaved content, cancels
// its timers, and stops routing its envelopes.
func (c *Client) CloseDocument(ctx context.Context, documentID string) error {
	c.mu.Lock()
	engine, ok := c.docs[documentID]
	delete(c.docs, documentID)
	c.mu.Unlock()

	if !ok {
		return model.ErrDocumentNotOpen
	}
	return engine.Close(ctx)
}

// Close shuts the client down: disconnects, closes every open document, and
// wipes key material.
func (c *Client) Close(ctx context.Context) error {
	c.Disconnect()

	c.mu.Lock()
	engines := make([]*docsync.Engine, 0, len(c.docs))
	for _, e := range c.docs {
		engines = append(engines, e)
	}
	c.docs = make(map[string]*docsync.Engine)
	for _, sub := range c.subs {
		sub.Cancel()
	}
	c.subs = nil
	c.mu.Unlock()

	var firstErr error
	for _, engine := range engines {
		if err := engine.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.crypto.Clear()
	return firstErr
}

// Connection returns the connection manager.
func (c *Client) Connection() *conn.Manager { return c.conn }

// Router returns the message router.
func (c *Client) Router() *router.Router { return c.router }

// Chat returns the channel message state.
func (c *Client) Chat() *chat.State { return c.chat }

// Presence returns the presence and typing tracker.
func (c *Client) Presence() *presence.Tracker { return c.presence }

// Signals returns the call signaling relay.
func (c *Client) Signals() *signal.Relay { return c.relay }

// Encryption returns the payload encryption service.
func (c *Client) Encryption() *crypto.Service { return c.crypto }
