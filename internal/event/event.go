// Package event delivers typed events to registered handlers in priority
// order.
//
// Handlers for one event instance run one after the other: every HIGH
// handler before any INTERNAL handler, every INTERNAL handler before any LOW
// handler, registration order within a tier. A handler may consume the event;
// later handlers that ignore consumed events are then skipped.
package event

import (
	"sync/atomic"

	"github.com/dalnet/ircore/internal/packet"
)

// Priority selects the tier a handler or callback runs in.
type Priority int

const (
	// PriorityHigh runs first. Request/response callbacks such as the
	// liveness probe live here.
	PriorityHigh Priority = iota
	// PriorityInternal is reserved for the library's stock handlers.
	PriorityInternal
	// PriorityLow is the default for application handlers.
	PriorityLow
)

// Priorities lists every tier in dispatch order.
var Priorities = []Priority{PriorityHigh, PriorityInternal, PriorityLow}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityInternal:
		return "internal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the known tiers.
func (p Priority) Valid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

// Event is anything that can be dispatched. Concrete events embed Base.
type Event interface {
	Consumed() bool
	Consume()
}

// Base carries the consumed flag. Once set it is never cleared.
type Base struct {
	consumed atomic.Bool
}

func (b *Base) Consumed() bool { return b.consumed.Load() }

func (b *Base) Consume() { b.consumed.Store(true) }

// PacketCarrier is implemented by events that wrap a received packet. Such
// events are offered to the PacketInterceptor before each tier's handlers.
type PacketCarrier interface {
	Packet() packet.Packet
	// Scope names the connection the packet arrived on.
	Scope() string
}

// PacketInterceptor gets first refusal on packets, tier by tier. Dispatch
// returns true when the packet was claimed.
type PacketInterceptor interface {
	Dispatch(p Priority, scope string, pk packet.Packet) bool
}
