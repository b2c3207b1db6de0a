package publishers

import "context"

// Publisher delivers run events to one downstream sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// Builder creates the Publisher for a sink entry.
type Builder func(ctx context.Context, cfg SinkConfig, log Logger) (Publisher, error)
