package model

// DocumentState is one client's view of a shared document while it is open.
// Version increases by exactly one per accepted operation, local or remote.
type DocumentState struct {
	DocumentID    string          `json:"documentId"`
	Content       string          `json:"content"`
	Version       int             `json:"version"`
	Collaborators map[string]bool `json:"collaborators,omitempty"`
}

// Operation is a single insert or delete edit anchored to the document version
// it was produced against. Position is a zero-based rune offset into the text
// as it existed at BaseVersion.
type Operation struct {
	Type        OperationType `json:"type"`
	Position    int           `json:"position"`
	Text        string        `json:"text,omitempty"`
	Length      int           `json:"length,omitempty"`
	BaseVersion int           `json:"baseVersion"`
	OriginID    string        `json:"originId"`
}

// OperationType is insert or delete.
type OperationType string

const (
	OperationInsert OperationType = "insert"
	OperationDelete OperationType = "delete"
)
