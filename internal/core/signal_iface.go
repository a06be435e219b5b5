package core

import "errors"

var (
	ErrClosed       = errors.New("connection closed")
	ErrBackpressure = errors.New("backpressure")
)

// Frame is one encoded outbound event.
type Frame []byte

// SignalConnection is a member's outbound queue.
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: it fails with ErrClosed or ErrBackpressure.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
