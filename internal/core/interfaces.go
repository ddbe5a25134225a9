package core

import "errors"

// Frame is a raw encoded outbound message.
type Frame []byte

// ConnID identifies one realtime connection for its whole lifetime.
type ConnID string

var ErrBackpressure = errors.New("backpressure")

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
