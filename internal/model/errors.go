package model

import "errors"

var (
	// ErrTokenRequired is returned when a connection is attempted without a bearer token.
	ErrTokenRequired = errors.New("auth token is required")

	// ErrNotConnected is returned when a send is attempted while the connection is not open.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionLost is returned after reconnection attempts are exhausted.
	ErrConnectionLost = errors.New("connection lost: reconnection attempts exhausted")

	// ErrNoKey is returned when encryption is requested before a key has been derived.
	ErrNoKey = errors.New("no encryption key set")

	// ErrDecryptFailed is returned when a payload cannot be decrypted with the held key.
	ErrDecryptFailed = errors.New("decryption failed")

	// ErrStaleOperation is returned when a remote operation's base version is older
	// than the local document version.
	ErrStaleOperation = errors.New("stale operation version")

	// ErrDocumentNotOpen is returned when an operation targets a document that is not open.
	ErrDocumentNotOpen = errors.New("document not open")

	// ErrDocumentNotFound is returned when a document is not in the local store.
	ErrDocumentNotFound = errors.New("document not found")
)
