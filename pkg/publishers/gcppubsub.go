package publishers

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

type pubsubPublisher struct {
	id    string
	topic *pubsub.Topic
	log   Logger
}

func newPubSubPublisher(ctx context.Context, cfg SinkConfig, log Logger) (Publisher, error) {
	if cfg.PubSub == nil {
		return nil, fmt.Errorf("missing pubsub configuration")
	}
	var opts []option.ClientOption
	if cfg.PubSub.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.PubSub.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &pubsubPublisher{
		id:    cfg.ID,
		topic: client.Topic(cfg.PubSub.Topic),
		log:   ensureLogger(log),
	}, nil
}

func (p *pubsubPublisher) ID() string   { return p.id }
func (p *pubsubPublisher) Type() string { return TypePubSub }

// Publish waits for the server ack.
func (p *pubsubPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.body()
	if err != nil {
		return err
	}
	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: []byte(body), Attributes: evt.attributes()}).Get(ctx)
	if err != nil {
		return fmt.Errorf("pubsub publish: %w", err)
	}
	p.log.DebugObj("run event published", "publisher_pubsub", map[string]any{
		"sink":       p.id,
		"topic":      p.topic.ID(),
		"run_id":     evt.RunID,
		"message_id": id,
	})
	return nil
}
