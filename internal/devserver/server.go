// Package devserver is a loopback workspace server: enough of the real
// backend's websocket surface to run the client end-to-end in development and
// integration tests. It fans every envelope out to the workspace's peers,
// routes call signaling to its target user only, and announces presence on
// join and leave. It is not, and does not try to be, the production server.
package devserver

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/teamspace-collab/sync-client/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server hosts one hub per workspace.
type Server struct {
	mu   sync.Mutex
	hubs map[string]*Hub
}

// New creates an empty Server.
func New() *Server {
	return &Server{hubs: make(map[string]*Hub)}
}

// Router returns the gin engine serving the websocket endpoint and a health
// check.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws/:workspace", s.handleWS)
	return r
}

// hub returns the workspace's hub, creating it on first use.
func (s *Server) hub(workspaceID string) *Hub {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hub, ok := s.hubs[workspaceID]; ok {
		return hub
	}
	hub := NewHub(workspaceID)
	s.hubs[workspaceID] = hub
	return hub
}

// handleWS upgrades the connection and joins the peer to its workspace hub.
// Dev-grade auth: the bearer token must be present, its value is not verified.
func (s *Server) handleWS(c *gin.Context) {
	workspaceID := c.Param("workspace")
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if workspaceID == "" || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing workspace or token"})
		return
	}
	userID := c.Query("user_id")
	if userID == "" {
		userID = token
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Upgrade failed: %v", err)
		return
	}

	hub := s.hub(workspaceID)
	peer := newPeer(userID)
	hub.Register(peer)
	s.announcePresence(hub, userID, "online")

	go s.writePump(peer, wsConn)
	go s.readPump(peer, wsConn, hub)
}

func (s *Server) announcePresence(hub *Hub, userID, status string) {
	frame, err := protocol.NewPresence(userID, status).Encode()
	if err != nil {
		return
	}
	hub.Broadcast(frame)
}

// readPump reads frames from the peer and routes them: signaling to its
// target, everything else to the whole workspace. Malformed frames are
// dropped per-frame.
func (s *Server) readPump(peer *Peer, wsConn *websocket.Conn, hub *Hub) {
	defer func() {
		hub.Unregister(peer)
		wsConn.Close()
		s.announcePresence(hub, peer.userID, "offline")
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Peer %s read error: %v", peer.userID, err)
			}
			return
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			log.Printf("Dropping malformed frame from %s: %v", peer.userID, err)
			continue
		}

		if env.Type == protocol.KindWebRTCSignal && env.TargetUserID != "" {
			hub.SendToUser(env.TargetUserID, frame)
			continue
		}
		hub.Broadcast(frame)
	}
}

func (s *Server) writePump(peer *Peer, wsConn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case <-peer.done:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			wsConn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-peer.send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close shuts down every workspace hub.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, hub := range s.hubs {
		hub.Close()
	}
	s.hubs = make(map[string]*Hub)
}
