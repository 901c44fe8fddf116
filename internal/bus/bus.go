// Package bus carries the request and response channels between the api and
// connector processes over a broadcast publish/subscribe transport.
package bus

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing on or subscribing to a closed bus
var ErrClosed = errors.New("bus closed")

// Bus publishes payloads to every current subscriber of a channel
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns once the subscription is active, so messages
	// published after it returns are delivered.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers the messages of one channel until closed
type Subscription interface {
	Messages() <-chan []byte
	// Done is closed once Close has been called
	Done() <-chan struct{}
	Close() error
}

// Handler processes one message payload
type Handler func(ctx context.Context, payload []byte)

// Consume calls handle for every message until ctx is done or the
// subscription's channel closes.
func Consume(ctx context.Context, sub Subscription, handle Handler) {
	messages := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case payload, ok := <-messages:
			if !ok {
				return
			}
			handle(ctx, payload)
		}
	}
}
