package devserver

import (
	"sync"

	"github.com/teamspace-collab/sync-client/internal/buffer"
)

// historySize is how many recent frames a workspace replays to a joining peer.
const historySize = 200

// Peer is one connected client within a workspace. The send channel is never
// closed; done is the shutdown signal, so concurrent broadcasts to a dropped
// peer cannot panic.
type Peer struct {
	userID    string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(userID string) *Peer {
	return &Peer{
		userID: userID,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// Send queues a frame for the peer, dropping the peer if its buffer is full.
func (p *Peer) Send(frame []byte) bool {
	select {
	case <-p.done:
		return false
	case p.send <- frame:
		return true
	default:
		p.close()
		return false
	}
}

func (p *Peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

// Hub fans frames out to every peer of one workspace and keeps a bounded
// history for replay on join.
type Hub struct {
	workspaceID string

	mu      sync.RWMutex
	peers   map[*Peer]bool
	history *buffer.History
}

// NewHub creates a Hub for the given workspace.
func NewHub(workspaceID string) *Hub {
	return &Hub{
		workspaceID: workspaceID,
		peers:       make(map[*Peer]bool),
		history:     buffer.NewHistory(historySize),
	}
}

// Register adds a peer and replays recent workspace traffic to it.
func (h *Hub) Register(peer *Peer) {
	h.mu.Lock()
	h.peers[peer] = true
	h.mu.Unlock()

	for _, frame := range h.history.Frames() {
		if !peer.Send(frame) {
			break
		}
	}
}

// Unregister removes a peer. Safe to call twice.
func (h *Hub) Unregister(peer *Peer) {
	h.mu.Lock()
	_, ok := h.peers[peer]
	delete(h.peers, peer)
	h.mu.Unlock()

	if ok {
		peer.close()
	}
}

// Broadcast sends a frame to every connected peer and records it in history.
func (h *Hub) Broadcast(frame []byte) {
	h.history.Append(frame)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for peer := range h.peers {
		peer.Send(frame)
	}
}

// SendToUser delivers a frame only to peers of the given user. Returns true if
// at least one peer received it.
func (h *Hub) SendToUser(userID string, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := false
	for peer := range h.peers {
		if peer.userID == userID && peer.Send(frame) {
			delivered = true
		}
	}
	return delivered
}

// PeerCount returns the number of connected peers.
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := make([]*Peer, 0, len(h.peers))
	for peer := range h.peers {
		peers = append(peers, peer)
	}
	h.peers = make(map[*Peer]bool)
	h.mu.Unlock()

	for _, peer := range peers {
		peer.close()
	}
}
