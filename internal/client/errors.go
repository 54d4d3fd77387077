package client

import "errors"

var (
	// ErrNotReady is returned by commands issued before Initialize has
	// completed (or after Destroy).
	ErrNotReady = errors.New("client is not initialized")

	// ErrNoChatAvailable is the structural send failure: the destination
	// chat does not exist, and either it cannot be resolved to a canonical
	// identity or there is no existing chat to borrow an identity from.
	// Distinct from evaluation/transport failures on purpose.
	ErrNoChatAvailable = errors.New("send: no chat available to borrow an identity from")

	// ErrAmbiguousContent is returned when a send supplies more than one
	// content mode (text, media, location) at once.
	ErrAmbiguousContent = errors.New("send: exactly one of text, media or location must be set")
)
