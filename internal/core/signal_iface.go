package core

// Frame is a raw encoded signaling message.
type Frame []byte

// SignalConnection abstracts the signaling transport of one participant.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
