package publishers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const deliveryTimeout = 10 * time.Second

// statusFilter limits a publisher to events with given statuses.
type statusFilter struct {
	Publisher
	statuses map[string]struct{}
}

// OnlyFor restricts pub to events whose status is listed. No statuses leaves pub unrestricted.
func OnlyFor(pub Publisher, statuses ...string) Publisher {
	if len(statuses) == 0 {
		return pub
	}
	set := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		set[strings.ToLower(s)] = struct{}{}
	}
	return &statusFilter{Publisher: pub, statuses: set}
}

func accepts(pub Publisher, status string) bool {
	f, ok := pub.(*statusFilter)
	if !ok {
		return true
	}
	_, ok = f.statuses[strings.ToLower(status)]
	return ok
}

// Fanout delivers each run event to every interested publisher concurrently.
type Fanout struct {
	publishers []Publisher
	log        Logger
}

// NewFanout drops nil publishers.
func NewFanout(pubs []Publisher, log Logger) *Fanout {
	cp := make([]Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			cp = append(cp, p)
		}
	}
	return &Fanout{publishers: cp, log: ensureLogger(log)}
}

// FromFile builds a Fanout from the publishers file. An empty path yields an empty Fanout.
func FromFile(ctx context.Context, path string, log Logger) (*Fanout, error) {
	if strings.TrimSpace(path) == "" {
		return NewFanout(nil, log), nil
	}
	cfgs, err := LoadSinks(path)
	if err != nil {
		return nil, err
	}
	pubs, err := Build(ctx, cfgs, log)
	if err != nil {
		return nil, err
	}
	return NewFanout(pubs, log), nil
}

// Publish returns how many publishers accepted the event. Failures are joined in publisher order.
func (f *Fanout) Publish(ctx context.Context, evt Event) (int, error) {
	if f == nil || len(f.publishers) == 0 {
		return 0, nil
	}

	errs := make([]error, len(f.publishers))
	var (
		mu        sync.Mutex
		delivered int
		g         errgroup.Group
	)
	for i, p := range f.publishers {
		if !accepts(p, evt.Status) {
			continue
		}
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
			defer cancel()
			if err := p.Publish(dctx, evt); err != nil {
				errs[i] = fmt.Errorf("%s sink %s: %w", p.Type(), p.ID(), err)
				f.log.WarnObj("run event delivery failed", "publisher_error", map[string]any{
					"sink":   p.ID(),
					"type":   p.Type(),
					"run_id": evt.RunID,
					"error":  err.Error(),
				})
				return nil
			}
			mu.Lock()
			delivered++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return delivered, errors.Join(errs...)
}

// Size returns the number of configured publishers.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.publishers)
}
