package outbox

import "context"

// HandlerFunc runs a record in process.
type HandlerFunc func(ctx context.Context, channel string, payload []byte) error

// InlinePublisher skips the broker and runs the side effect directly. Used
// when outbox.transport is "inline" (single-node and local setups).
type InlinePublisher struct {
	handle HandlerFunc
}

func NewInlinePublisher(h HandlerFunc) *InlinePublisher {
	return &InlinePublisher{handle: h}
}

func (p *InlinePublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.handle(ctx, channel, payload)
}
