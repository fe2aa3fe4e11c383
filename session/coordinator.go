package session

import (
	"log"
	"time"

	"parkgate/localbus"
)

// Coordinator detects other console instances on the same workstation over
// the local bus, independent of network state. Policy: the most recently
// opened instance wins; every earlier instance is told to yield.
//
// Each announcement carries a nanosecond open stamp so ordering never
// depends on message arrival order; stamp ties break on the token. An
// instance that hears a newer announcement re-announces itself, and an
// instance that hears an older announcement replies with a targeted
// INSTANCE_ALREADY_EXISTS, which is the only thing that sets the duplicate
// flag on the target.
type Coordinator struct {
	bus         localbus.Bus
	token       string
	openedAt    int64
	onDuplicate func()
	sub         *localbus.Subscription
}

// NewCoordinator prepares a coordinator for this process. onDuplicate fires
// (possibly more than once) when another instance supersedes this one.
func NewCoordinator(bus localbus.Bus, token string, onDuplicate func()) *Coordinator {
	return &Coordinator{
		bus:         bus,
		token:       token,
		openedAt:    time.Now().UnixNano(),
		onDuplicate: onDuplicate,
	}
}

// Start subscribes to the bus and announces this instance.
func (c *Coordinator) Start() error {
	c.sub = c.bus.Subscribe()
	go c.loop()
	return c.announce()
}

func (c *Coordinator) announce() error {
	return c.bus.Broadcast(localbus.Message{
		Type:     localbus.TypeNewInstanceOpened,
		ID:       c.token,
		OpenedAt: c.openedAt,
	})
}

func (c *Coordinator) loop() {
	for msg := range c.sub.C {
		c.handle(msg)
	}
}

func (c *Coordinator) handle(msg localbus.Message) {
	switch msg.Type {
	case localbus.TypeNewInstanceOpened:
		if msg.ID == c.token {
			return
		}
		if opensAfter(msg.OpenedAt, msg.ID, c.openedAt, c.token) {
			// A newer instance announced itself. Re-announce so it learns
			// this one exists and can instruct it to yield.
			if err := c.announce(); err != nil {
				log.Printf("Error re-announcing on local bus: %v", err)
			}
		} else {
			// An older instance announced. Last opener wins: tell it to
			// stop acting as the session holder.
			err := c.bus.Broadcast(localbus.Message{
				Type:     localbus.TypeInstanceAlreadyExists,
				TargetID: msg.ID,
			})
			if err != nil {
				log.Printf("Error contesting instance %s: %v", msg.ID, err)
			}
		}
	case localbus.TypeInstanceAlreadyExists:
		if msg.TargetID == c.token {
			c.onDuplicate()
		}
	}
}

// opensAfter reports whether instance (at1, id1) opened after (at2, id2).
// The token tiebreak makes the order total: two instances opening in the
// same nanosecond still resolve to exactly one winner.
func opensAfter(at1 int64, id1 string, at2 int64, id2 string) bool {
	if at1 != at2 {
		return at1 > at2
	}
	return id1 > id2
}

// Close releases the bus subscription. The bus itself stays open; it is
// owned by the caller.
func (c *Coordinator) Close() {
	if c.sub != nil {
		c.sub.Close()
	}
}
