// Package localbus is a named same-host broadcast channel. Every process
// that opens the same channel sees every message broadcast on it, its own
// included. Gate consoles use it to detect other consoles racing to hold
// the session on the same workstation.
package localbus

const (
	// TypeNewInstanceOpened announces a newly started instance.
	TypeNewInstanceOpened = "NEW_INSTANCE_OPENED"
	// TypeInstanceAlreadyExists instructs the targeted instance to yield.
	TypeInstanceAlreadyExists = "INSTANCE_ALREADY_EXISTS"
)

// Message is the wire format shared by all bus implementations.
type Message struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	TargetID string `json:"targetId,omitempty"`
	// OpenedAt is a nanosecond open stamp carried on NEW_INSTANCE_OPENED
	// so ordering does not depend on delivery order.
	OpenedAt int64 `json:"openedAt,omitempty"`
}

// Bus delivers broadcast messages to every subscription on the channel.
type Bus interface {
	Broadcast(msg Message) error
	Subscribe() *Subscription
	Close() error
}

// Subscription is a cancellable receiver on a bus. Close releases it;
// after Close the channel is drained and closed.
type Subscription struct {
	C      <-chan Message
	cancel func()
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
