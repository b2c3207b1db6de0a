package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sink types.
const (
	TypeWebhook = "webhook"
	TypeSQS     = "sqs"
	TypeSNS     = "sns"
	TypePubSub  = "pubsub"
)

// sinksFile is the document shape of the publishers file.
type sinksFile struct {
	Sinks []SinkConfig `json:"sinks" yaml:"sinks"`
}

// SinkConfig declares one run-event destination.
type SinkConfig struct {
	ID       string `json:"id" yaml:"id"`
	Type     string `json:"type" yaml:"type"`
	Disabled bool   `json:"disabled" yaml:"disabled"`
	// On restricts delivery to runs finishing with one of these statuses. Empty means every run.
	On []string `json:"on" yaml:"on"`

	Webhook *WebhookConfig `json:"webhook" yaml:"webhook"`
	SQS     *SQSConfig     `json:"sqs" yaml:"sqs"`
	SNS     *SNSConfig     `json:"sns" yaml:"sns"`
	PubSub  *PubSubConfig  `json:"pubsub" yaml:"pubsub"`
}

// WebhookConfig posts events to an HTTP endpoint.
type WebhookConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
	Retries        int               `json:"retries" yaml:"retries"`
}

// AWSAuth selects region and optional static keys. Empty keys use the default credential chain.
type AWSAuth struct {
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// SQSConfig targets an SQS queue.
type SQSConfig struct {
	AWSAuth  `yaml:",inline"`
	QueueURL string `json:"queue_url" yaml:"queue_url"`
}

// SNSConfig targets an SNS topic.
type SNSConfig struct {
	AWSAuth  `yaml:",inline"`
	TopicARN string `json:"topic_arn" yaml:"topic_arn"`
}

// PubSubConfig targets a Google Cloud Pub/Sub topic.
type PubSubConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

var builders = map[string]Builder{
	TypeWebhook: newWebhookPublisher,
	TypeSQS:     newSQSPublisher,
	TypeSNS:     newSNSPublisher,
	TypePubSub:  newPubSubPublisher,
}

// LoadSinks reads the publishers file. JSON is used for .json files, YAML otherwise.
// Every entry is validated; all problems are reported together.
func LoadSinks(path string) ([]SinkConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}

	var doc sinksFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, &doc)
	} else {
		err = yaml.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode publishers file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(doc.Sinks))
	var errs []error
	for i := range doc.Sinks {
		doc.Sinks[i].normalize()
		cfg := doc.Sinks[i]
		if _, dup := seen[cfg.ID]; dup && cfg.ID != "" {
			errs = append(errs, fmt.Errorf("sinks[%d]: duplicate id %q", i, cfg.ID))
		}
		seen[cfg.ID] = struct{}{}
		if err := cfg.validate(); err != nil {
			errs = append(errs, fmt.Errorf("sinks[%d]: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return doc.Sinks, nil
}

func (c *SinkConfig) normalize() {
	c.ID = strings.TrimSpace(c.ID)
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	on := c.On[:0]
	for _, s := range c.On {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			on = append(on, s)
		}
	}
	c.On = on

	if w := c.Webhook; w != nil {
		w.URL = strings.TrimSpace(w.URL)
		w.Method = strings.ToUpper(strings.TrimSpace(w.Method))
		if w.Method == "" {
			w.Method = "POST"
		}
		if w.TimeoutSeconds <= 0 {
			w.TimeoutSeconds = 5
		}
		if w.Retries < 0 {
			w.Retries = 0
		}
		for k, v := range w.Headers {
			if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
				delete(w.Headers, k)
			}
		}
	}
	if q := c.SQS; q != nil {
		q.QueueURL = strings.TrimSpace(q.QueueURL)
		q.AWSAuth = q.AWSAuth.trimmed()
	}
	if t := c.SNS; t != nil {
		t.TopicARN = strings.TrimSpace(t.TopicARN)
		t.AWSAuth = t.AWSAuth.trimmed()
	}
	if p := c.PubSub; p != nil {
		p.ProjectID = strings.TrimSpace(p.ProjectID)
		p.Topic = strings.TrimSpace(p.Topic)
		p.CredentialsFile = strings.TrimSpace(p.CredentialsFile)
	}
}

func (a AWSAuth) trimmed() AWSAuth {
	return AWSAuth{
		Region:          strings.TrimSpace(a.Region),
		AccessKeyID:     strings.TrimSpace(a.AccessKeyID),
		SecretAccessKey: strings.TrimSpace(a.SecretAccessKey),
	}
}

func (c SinkConfig) validate() error {
	if c.ID == "" {
		return errors.New("id is required")
	}
	var missing string
	switch c.Type {
	case TypeWebhook:
		if c.Webhook == nil || c.Webhook.URL == "" {
			missing = "webhook.url"
		}
	case TypeSQS:
		switch {
		case c.SQS == nil || c.SQS.QueueURL == "":
			missing = "sqs.queue_url"
		case c.SQS.Region == "":
			missing = "sqs.region"
		}
	case TypeSNS:
		switch {
		case c.SNS == nil || c.SNS.TopicARN == "":
			missing = "sns.topic_arn"
		case c.SNS.Region == "":
			missing = "sns.region"
		}
	case TypePubSub:
		if c.PubSub == nil || c.PubSub.ProjectID == "" || c.PubSub.Topic == "" {
			missing = "pubsub.project_id and pubsub.topic"
		}
	case "":
		return fmt.Errorf("sink %q has no type", c.ID)
	default:
		return fmt.Errorf("sink %q has unsupported type %q", c.ID, c.Type)
	}
	if missing != "" {
		return fmt.Errorf("%s required for sink %q", missing, c.ID)
	}
	return nil
}

// Build creates publishers for every enabled sink, each limited to its On statuses.
func Build(ctx context.Context, cfgs []SinkConfig, log Logger) ([]Publisher, error) {
	var pubs []Publisher
	for _, cfg := range cfgs {
		if cfg.Disabled {
			continue
		}
		build, ok := builders[cfg.Type]
		if !ok {
			return nil, fmt.Errorf("no publisher for sink type %q", cfg.Type)
		}
		pub, err := build(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("sink %q: %w", cfg.ID, err)
		}
		pubs = append(pubs, OnlyFor(pub, cfg.On...))
	}
	return pubs, nil
}
