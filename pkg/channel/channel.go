package channel

import (
	"context"

	"gembot/pkg/bus"
)

// Handler consumes one inbound event. Implementations resolve every failure
// inside the relay boundary, so intake loops never observe handler errors.
type Handler func(context.Context, bus.InboundEvent)

// Adapter bridges one external transport (for example Telegram) into the
// relay pipeline.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
