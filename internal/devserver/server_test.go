package devserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teamspace-collab/sync-client/internal/protocol"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New()
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, ts
}

func wsURL(ts *httptest.Server, workspaceID, userID string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + workspaceID + "?user_id=" + userID
}

func dialPeer(t *testing.T, ts *httptest.Server, workspaceID, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{"Authorization": []string{"Bearer test-token"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, workspaceID, userID), header)
	if err != nil {
		t.Fatalf("failed to dial as %s: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of the wanted kind arrives, skipping
// everything else (presence chatter, history replay).
func readUntil(t *testing.T, conn *websocket.Conn, kind protocol.Kind) *protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("reading while waiting for %s: %v", kind, err)
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			continue
		}
		if env.Type == kind {
			return env
		}
	}
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, env *protocol.Envelope) {
	t.Helper()
	frame, err := env.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestRejectsMissingToken(t *testing.T) {
	_, ts := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "ws-1", "u-1"), nil)
	if err == nil {
		t.Fatal("expected dial without a bearer token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %+v", resp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestBroadcastReachesAllPeers(t *testing.T) {
	_, ts := newTestServer(t)

	alice := dialPeer(t, ts, "ws-1", "alice")
	bob := dialPeer(t, ts, "ws-1", "bob")

	sendEnvelope(t, alice, protocol.NewChatMessage("ch-1", "alice", "hello room", "", protocol.MessageText))

	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		env := readUntil(t, conn, protocol.KindChatMessage)
		if env.Content != "hello room" || env.UserID != "alice" {
			t.Errorf("%s received wrong message: %+v", name, env)
		}
	}
}

func TestPresenceAnnouncedOnJoinAndLeave(t *testing.T) {
	_, ts := newTestServer(t)

	alice := dialPeer(t, ts, "ws-1", "alice")
	bob := dialPeer(t, ts, "ws-1", "bob")

	env := readUntil(t, alice, protocol.KindUserPresence)
	for env.UserID != "bob" {
		env = readUntil(t, alice, protocol.KindUserPresence)
	}
	if env.Status != "online" {
		t.Errorf("expected bob online, got %q", env.Status)
	}

	bob.Close()

	env = readUntil(t, alice, protocol.KindUserPresence)
	for env.UserID != "bob" || env.Status != "offline" {
		env = readUntil(t, alice, protocol.KindUserPresence)
	}
}

func TestSignalRoutedToTargetOnly(t *testing.T) {
	_, ts := newTestServer(t)

	alice := dialPeer(t, ts, "ws-1", "alice")
	bob := dialPeer(t, ts, "ws-1", "bob")
	carol := dialPeer(t, ts, "ws-1", "carol")

	// Drain join chatter before the signal goes out.
	readUntil(t, alice, protocol.KindUserPresence)
	time.Sleep(50 * time.Millisecond)

	sendEnvelope(t, alice, protocol.NewWebRTCSignal("bob", "alice", "offer", []byte(`{"sdp":"v=0"}`), "call-1"))

	env := readUntil(t, bob, protocol.KindWebRTCSignal)
	if env.UserID != "alice" || env.SignalType != "offer" || env.CallID != "call-1" {
		t.Errorf("bob received wrong signal: %+v", env)
	}

	// Carol must never see it. A sentinel broadcast after the signal proves
	// ordering: once it arrives, the signal would already have arrived too.
	sendEnvelope(t, alice, protocol.NewChatMessage("ch-1", "alice", "sentinel", "", protocol.MessageText))
	carol.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, frame, err := carol.ReadMessage()
		if err != nil {
			t.Fatalf("carol read failed: %v", err)
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			continue
		}
		if env.Type == protocol.KindWebRTCSignal {
			t.Fatal("signal leaked to a non-target peer")
		}
		if env.Type == protocol.KindChatMessage && env.Content == "sentinel" {
			break
		}
	}
}

func TestHistoryReplayedToLateJoiner(t *testing.T) {
	_, ts := newTestServer(t)

	alice := dialPeer(t, ts, "ws-1", "alice")
	sendEnvelope(t, alice, protocol.NewChatMessage("ch-1", "alice", "before you arrived", "", protocol.MessageText))

	// Make sure the broadcast landed in history before bob joins.
	readUntil(t, alice, protocol.KindChatMessage)

	bob := dialPeer(t, ts, "ws-1", "bob")
	env := readUntil(t, bob, protocol.KindChatMessage)
	if env.Content != "before you arrived" {
		t.Errorf("expected replayed message, got %+v", env)
	}
}

func TestWorkspacesAreIsolated(t *testing.T) {
	_, ts := newTestServer(t)

	alice := dialPeer(t, ts, "ws-1", "alice")
	bob := dialPeer(t, ts, "ws-2", "bob")

	sendEnvelope(t, alice, protocol.NewChatMessage("ch-1", "alice", "only ws-1", "", protocol.MessageText))
	sendEnvelope(t, bob, protocol.NewChatMessage("ch-1", "bob", "only ws-2", "", protocol.MessageText))

	env := readUntil(t, bob, protocol.KindChatMessage)
	if env.Content != "only ws-2" {
		t.Errorf("bob saw traffic from another workspace: %+v", env)
	}
}

func TestMalformedFrameDoesNotKillConnection(t *testing.T) {
	_, ts := newTestServer(t)

	alice := dialPeer(t, ts, "ws-1", "alice")

	alice.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := alice.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	sendEnvelope(t, alice, protocol.NewChatMessage("ch-1", "alice", "still alive", "", protocol.MessageText))
	env := readUntil(t, alice, protocol.KindChatMessage)
	if env.Content != "still alive" {
		t.Errorf("expected the connection to survive a malformed frame, got %+v", env)
	}
}
