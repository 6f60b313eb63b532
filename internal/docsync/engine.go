// Package docsync keeps one client's view of a shared document converging with
// every other connected client's view, expressed as positional insert/delete
// operations keyed by a monotonically increasing version.
//
// Conflict policy is last-writer-wins-by-position: remote operations are
// applied in arrival order without transformation against in-flight local
// edits, with stale base versions rejected. Overlapping truly-concurrent edits
// can diverge; the debounced full-content save path is the recovery mechanism.
package docsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/teamspace-collab/sync-client/internal/model"
	"github.com/teamspace-collab/sync-client/internal/protocol"
)

const defaultSaveDebounce = 2500 * time.Millisecond

// OpSender transmits document operations and cursor positions. Implemented by
// the router.
type OpSender interface {
	SendDocumentOp(documentID string, op protocol.OpType, position int, content string, length, baseVersion int) error
	SendCursorPosition(documentID string, position int, selection *int) error
}

// Store persists the full document content out-of-band. The live operation
// stream never flows through it, so a save can never corrupt state even if
// operations were dropped.
type Store interface {
	SaveDocument(ctx context.Context, documentID, content string, version int) error
}

// Config holds tuning for an Engine. Zero values get defaults.
type Config struct {
	// SaveDebounce is the inactivity window before content is flushed to the
	// store. Explicit Save calls flush immediately.
	SaveDebounce time.Duration
}

func (c *Config) applyDefaults() {
	if c.SaveDebounce == 0 {
		c.SaveDebounce = defaultSaveDebounce
	}
}

// Engine owns a DocumentState while the document is open. All mutation happens
// under its lock; local edits are applied optimistically before any remote
// confirmation.
type Engine struct {
	documentID string
	userID     string
	sender     OpSender
	store      Store
	cfg        Config

	mu            sync.Mutex
	content       string
	version       int
	collaborators map[string]bool
	// pending holds locally applied operations awaiting their echo from the
	// stream. Matching echoes retire entries; the buffer surfaces how far
	// local state runs ahead of the acknowledged stream.
	pending         []*model.Operation
	staleCount      int
	saveTimer       *time.Timer
	dirty           bool
	closed          bool
	onContentChange func(content string, version int)
}

// NewEngine opens a document at the given content and version.
func NewEngine(documentID, userID, content string, version int, sender OpSender, store Store, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		documentID:    documentID,
		userID:        userID,
		sender:        sender,
		store:         store,
		cfg:           cfg,
		content:       content,
		version:       version,
		collaborators: make(map[string]bool),
	}
}

// LocalChange converts a local content change into operations, applies them
// optimistically, and transmits them. Transmission failures are logged, not
// returned: live events are fire-and-forget and the save path provides
// durability.
func (e *Engine) LocalChange(newContent string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	ops := Diff(e.content, newContent)
	for _, op := range ops {
		op.BaseVersion = e.version
		op.OriginID = e.userID

		e.content = Apply(e.content, op)
		e.version = op.BaseVersion + 1
		e.pending = append(e.pending, op)

		var err error
		switch op.Type {
		case model.OperationInsert:
			err = e.sender.SendDocumentOp(e.documentID, protocol.OpInsert, op.Position, op.Text, 0, op.BaseVersion)
		case model.OperationDelete:
			err = e.sender.SendDocumentOp(e.documentID, protocol.OpDelete, op.Position, "", op.Length, op.BaseVersion)
		}
		if err != nil && !errors.Is(err, model.ErrNotConnected) {
			log.Printf("Failed to send %s op for document %s: %v", op.Type, e.documentID, err)
		}
	}

	if len(ops) > 0 {
		e.markDirtyLocked()
	}
}

// HandleEnvelope applies an inbound document_operation or cursor_position
// envelope addressed to this document.
func (e *Engine) HandleEnvelope(env *protocol.Envelope) {
	if env.DocumentID != e.documentID {
		return
	}

	switch env.Type {
	case protocol.KindDocumentOp:
		if err := e.applyRemote(env); err != nil && !errors.Is(err, model.ErrStaleOperation) {
			log.Printf("Failed to apply remote op on document %s: %v", e.documentID, err)
		}
	case protocol.KindCursorPosition:
		e.mu.Lock()
		if env.UserID != "" && env.UserID != e.userID {
			e.collaborators[env.UserID] = true
		}
		e.mu.Unlock()
	}
}

func (e *Engine) applyRemote(env *protocol.Envelope) error {
	op := &model.Operation{
		Position:    env.Position,
		Text:        env.Content,
		Length:      env.Length,
		BaseVersion: env.Version,
		OriginID:    env.UserID,
	}
	switch env.Operation {
	case protocol.OpInsert:
		op.Type = model.OperationInsert
	case protocol.OpDelete:
		op.Type = model.OperationDelete
	default:
		return fmt.Errorf("unknown operation type %q", env.Operation)
	}

	notify, content, version, err := e.applyOp(op)
	if notify != nil {
		notify(content, version)
	}
	return err
}

func (e *Engine) applyOp(op *model.Operation) (notify func(string, int), content string, version int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, "", 0, nil
	}

	if op.OriginID == e.userID {
		// Echo of our own optimistically applied edit: retire it from the
		// pending buffer instead of applying it twice.
		e.retirePendingLocked(op)
		return nil, "", 0, nil
	}

	if op.BaseVersion < e.version {
		// Produced against state we have already moved past (typically
		// delivered out of order across a reconnect). Never applied silently.
		e.staleCount++
		return nil, "", 0, fmt.Errorf("%w: base %d, local %d", model.ErrStaleOperation, op.BaseVersion, e.version)
	}

	e.collaborators[op.OriginID] = true
	e.content = Apply(e.content, op)
	e.version = op.BaseVersion + 1
	e.markDirtyLocked()

	return e.onContentChange, e.content, e.version, nil
}

// SetOnContentChange registers a callback invoked (outside the lock) after a
// remote operation changes the content.
func (e *Engine) SetOnContentChange(fn func(content string, version int)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onContentChange = fn
}

// retirePendingLocked drops the oldest pending operation matching the echo.
func (e *Engine) retirePendingLocked(echo *model.Operation) {
	for i, op := range e.pending {
		if op.Type == echo.Type && op.Position == echo.Position && op.BaseVersion == echo.BaseVersion {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// Cursor broadcasts the local caret position. Advisory only.
func (e *Engine) Cursor(position int, selection *int) {
	if err := e.sender.SendCursorPosition(e.documentID, position, selection); err != nil && !errors.Is(err, model.ErrNotConnected) {
		log.Printf("Failed to send cursor position for document %s: %v", e.documentID, err)
	}
}

// Save flushes the current full content to the store immediately.
func (e *Engine) Save(ctx context.Context) error {
	e.mu.Lock()
	if e.saveTimer != nil {
		e.saveTimer.Stop()
		e.saveTimer = nil
	}
	e.dirty = false
	content, version := e.content, e.version
	store := e.store
	e.mu.Unlock()

	if store == nil {
		return nil
	}
	if err := store.SaveDocument(ctx, e.documentID, content, version); err != nil {
		return fmt.Errorf("failed to save document %s: %w", e.documentID, err)
	}
	return nil
}

// markDirtyLocked arms (or re-arms) the debounced save.
func (e *Engine) markDirtyLocked() {
	e.dirty = true
	if e.store == nil {
		return
	}
	if e.saveTimer != nil {
		e.saveTimer.Stop()
	}
	e.saveTimer = time.AfterFunc(e.cfg.SaveDebounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Save(ctx); err != nil {
			log.Printf("Debounced save failed: %v", err)
		}
	})
}

// Close cancels pending timers and flushes unsaved content. The engine accepts
// no further operations afterwards.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	dirty := e.dirty
	if e.saveTimer != nil {
		e.saveTimer.Stop()
		e.saveTimer = nil
	}
	e.mu.Unlock()

	if dirty {
		return e.Save(ctx)
	}
	return nil
}

// DocumentID returns the id of the open document.
func (e *Engine) DocumentID() string {
	return e.documentID
}

// Content returns the current document text.
func (e *Engine) Content() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.content
}

// Version returns the current document version.
func (e *Engine) Version() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// PendingCount returns how many local operations await their stream echo.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// StaleCount returns how many remote operations were rejected as stale.
func (e *Engine) StaleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.staleCount
}

// Collaborators returns the ids of users seen editing this document.
func (e *Engine) Collaborators() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]string, 0, len(e.collaborators))
	for id := range e.collaborators {
		result = append(result, id)
	}
	return result
}

// State snapshots the document state.
func (e *Engine) State() model.DocumentState {
	e.mu.Lock()
	defer e.mu.Unlock()
	collabs := make(map[string]bool, len(e.collaborators))
	for id := range e.collaborators {
		collabs[id] = true
	}
	return model.DocumentState{
		DocumentID:    e.documentID,
		Content:       e.content,
		Version:       e.version,
		Collaborators: collabs,
	}
}
