package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/teamspace-collab/sync-client/internal/devserver"
	"github.com/teamspace-collab/sync-client/internal/model"
	"github.com/teamspace-collab/sync-client/internal/protocol"
)

// The tests in this file run two fully wired clients against an in-process
// workspace server and watch real frames flow end to end.

func startWorkspace(t *testing.T) string {
	t.Helper()
	srv := devserver.New()
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// newConnectedClient joins the workspace as userID. The dev server derives the
// peer identity from the bearer token, so the token doubles as the user id.
func newConnectedClient(t *testing.T, baseURL, workspaceID, userID string, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = baseURL
	cfg.UserID = userID
	c := New(cfg)
	t.Cleanup(func() { c.Close(context.Background()) })

	if err := c.Connect(context.Background(), workspaceID, userID); err != nil {
		t.Fatalf("%s failed to connect: %v", userID, err)
	}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestChatFlowsBetweenClients(t *testing.T) {
	base := startWorkspace(t)
	alice := newConnectedClient(t, base, "ws-1", "alice", Config{})
	bob := newConnectedClient(t, base, "ws-1", "bob", Config{})

	if err := alice.Chat().SendMessage("ch-1", "hello bob", model.MessageKindText); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	waitFor(t, "bob to receive the message", func() bool {
		msgs := bob.Chat().Messages("ch-1")
		return len(msgs) == 1 && msgs[0].Body == "hello bob" && msgs[0].AuthorID == "alice"
	})
	waitFor(t, "alice to receive her own echo", func() bool {
		return len(alice.Chat().Messages("ch-1")) == 1
	})
}

func TestPresenceVisibleAcrossClients(t *testing.T) {
	base := startWorkspace(t)
	alice := newConnectedClient(t, base, "ws-1", "alice", Config{})
	bob := newConnectedClient(t, base, "ws-1", "bob", Config{})

	waitFor(t, "alice to see bob online", func() bool {
		return alice.Presence().IsOnline("bob")
	})
	waitFor(t, "bob to see alice online", func() bool {
		return bob.Presence().IsOnline("alice")
	})

	bob.Disconnect()
	waitFor(t, "alice to see bob offline", func() bool {
		return !alice.Presence().IsOnline("bob")
	})
}

func TestTypingIndicatorPropagates(t *testing.T) {
	base := startWorkspace(t)
	cfg := Config{}
	cfg.Presence.IdleTimeout = 100 * time.Millisecond
	alice := newConnectedClient(t, base, "ws-1", "alice", cfg)
	bob := newConnectedClient(t, base, "ws-1", "bob", Config{})

	alice.Presence().InputActivity("ch-1")

	waitFor(t, "bob to see alice typing", func() bool {
		users := bob.Presence().TypingUsers("ch-1")
		return len(users) == 1 && users[0] == "alice"
	})
	waitFor(t, "typing to clear after idle", func() bool {
		return len(bob.Presence().TypingUsers("ch-1")) == 0
	})
}

func TestDocumentEditsConverge(t *testing.T) {
	base := startWorkspace(t)
	alice := newConnectedClient(t, base, "ws-1", "alice", Config{})
	bob := newConnectedClient(t, base, "ws-1", "bob", Config{})

	ctx := context.Background()
	aliceDoc, err := alice.OpenDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("alice failed to open document: %v", err)
	}
	bobDoc, err := bob.OpenDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("bob failed to open document: %v", err)
	}

	aliceDoc.LocalChange("hello")

	waitFor(t, "bob's document to converge", func() bool {
		return bobDoc.Content() == "hello" && bobDoc.Version() == 1
	})
	waitFor(t, "alice's pending buffer to drain", func() bool {
		return aliceDoc.PendingCount() == 0
	})

	bobDoc.LocalChange("hello world")

	waitFor(t, "alice's document to converge", func() bool {
		return aliceDoc.Content() == "hello world" && aliceDoc.Version() == 2
	})
}

func TestSignalReachesTargetClientOnly(t *testing.T) {
	base := startWorkspace(t)

	bobSignals := make(chan *protocol.Envelope, 1)
	carolSignals := make(chan *protocol.Envelope, 1)
	alice := newConnectedClient(t, base, "ws-1", "alice", Config{})
	newConnectedClient(t, base, "ws-1", "bob", Config{
		OnSignal: func(env *protocol.Envelope) { bobSignals <- env },
	})
	newConnectedClient(t, base, "ws-1", "carol", Config{
		OnSignal: func(env *protocol.Envelope) { carolSignals <- env },
	})

	waitFor(t, "alice to see bob online", func() bool {
		return alice.Presence().IsOnline("bob")
	})

	if err := alice.Signals().Send("bob", "offer", []byte(`{"sdp":"v=0"}`), "call-1"); err != nil {
		t.Fatalf("signal send failed: %v", err)
	}

	select {
	case env := <-bobSignals:
		if env.UserID != "alice" || env.SignalType != "offer" {
			t.Errorf("unexpected signal at bob: %+v", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bob never received the offer")
	}

	select {
	case env := <-carolSignals:
		t.Errorf("signal leaked to carol: %+v", env)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEncryptedChatBetweenClients(t *testing.T) {
	base := startWorkspace(t)
	salt := []byte("workspace-salt")

	alice := newConnectedClient(t, base, "ws-1", "alice", Config{})
	bob := newConnectedClient(t, base, "ws-1", "bob", Config{})
	mallory := newConnectedClient(t, base, "ws-1", "mallory", Config{})

	alice.Login("shared-password", salt)
	bob.Login("shared-password", salt)
	mallory.Login("wrong-password", salt)

	if err := alice.Chat().SendMessage("ch-1", "the secret", model.MessageKindText); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	waitFor(t, "bob to decrypt the message", func() bool {
		msgs := bob.Chat().Messages("ch-1")
		return len(msgs) == 1 && msgs[0].Body == "the secret"
	})
	waitFor(t, "mallory to see the placeholder", func() bool {
		msgs := mallory.Chat().Messages("ch-1")
		return len(msgs) == 1 && msgs[0].Undecryptable
	})
}

func TestCloseDocumentThatIsNotOpen(t *testing.T) {
	c := New(Config{BaseURL: "ws://localhost:0", UserID: "alice"})
	defer c.Close(context.Background())

	if err := c.CloseDocument(context.Background(), "nope"); err != model.ErrDocumentNotOpen {
		t.Errorf("expected ErrDocumentNotOpen, got %v", err)
	}
}
