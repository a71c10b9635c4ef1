// Package transport defines the publish/subscribe medium the relay runs on.
//
// A Bus scopes channels the way a browser origin scopes BroadcastChannels:
// every Channel joined under the same name on the same Bus sees what the
// others publish, including channels joined on the same host. Delivery is
// at-most-once with no ordering guarantee. A channel never receives its own
// publishes.
package transport

import "errors"

// ErrClosed is returned when publishing on a closed Channel or joining a closed Bus.
var ErrClosed = errors.New("transport: closed")

// Handler receives raw payloads. It must not block for long; implementations
// call it from their delivery goroutine.
type Handler func(payload []byte)

// Bus creates channel subscriptions.
type Bus interface {
	// Join subscribes handler to the named channel.
	Join(name string, handler Handler) (Channel, error)
	// Close releases the bus and every channel joined through it.
	Close() error
}

// Channel is one subscription on a Bus.
type Channel interface {
	// Publish sends payload to the other subscribers of the channel.
	Publish(payload []byte) error
	// Close unsubscribes. Safe to call more than once.
	Close() error
}
