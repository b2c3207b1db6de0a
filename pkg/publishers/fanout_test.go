package publishers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type stubPublisher struct {
	id  string
	err error

	mu    sync.Mutex
	calls int
	last  Event
}

func (s *stubPublisher) ID() string   { return s.id }
func (s *stubPublisher) Type() string { return "stub" }
func (s *stubPublisher) Publish(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = evt
	return s.err
}

func TestFanoutJoinsFailures(t *testing.T) {
	ok := &stubPublisher{id: "ok"}
	bad := &stubPublisher{id: "bad", err: errors.New("refused")}
	f := NewFanout([]Publisher{ok, nil, bad}, nil)

	if f.Size() != 2 {
		t.Fatalf("nil publishers should be dropped, size=%d", f.Size())
	}
	n, err := f.Publish(context.Background(), NewEvent("run-1", "success", "done", "", nil))
	if n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	if err == nil || !strings.Contains(err.Error(), "stub sink bad") {
		t.Fatalf("expected joined error naming the sink, got %v", err)
	}
	if ok.calls != 1 || bad.calls != 1 || ok.last.RunID != "run-1" {
		t.Fatalf("every publisher should see the event once")
	}
}

func TestFanoutHonoursStatusFilter(t *testing.T) {
	failures := &stubPublisher{id: "alerts"}
	all := &stubPublisher{id: "archive"}
	f := NewFanout([]Publisher{OnlyFor(failures, "FAILED"), all}, nil)

	n, err := f.Publish(context.Background(), Event{RunID: "r", Status: "success"})
	if err != nil || n != 1 {
		t.Fatalf("success event: n=%d err=%v", n, err)
	}
	n, _ = f.Publish(context.Background(), Event{RunID: "r", Status: "failed"})
	if n != 2 {
		t.Fatalf("failed event delivered to %d sinks, want 2", n)
	}
	if failures.calls != 1 || all.calls != 2 {
		t.Fatalf("calls: alerts=%d archive=%d", failures.calls, all.calls)
	}
}

func TestNilFanoutIsNoop(t *testing.T) {
	var f *Fanout
	if n, err := f.Publish(context.Background(), Event{}); n != 0 || err != nil {
		t.Fatalf("expected no-op, got %d %v", n, err)
	}
}

func TestFromFileEmptyPath(t *testing.T) {
	f, err := FromFile(context.Background(), "", nil)
	if err != nil || f.Size() != 0 {
		t.Fatalf("expected empty fanout, got %v %v", f.Size(), err)
	}
}

func writeSinks(t *testing.T, name, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestFromFileSkipsDisabledSinks(t *testing.T) {
	path := writeSinks(t, "publishers.yaml", `
sinks:
  - id: hook
    type: webhook
    on: [failed]
    webhook:
      url: https://example.com/hook
  - id: off
    type: webhook
    disabled: true
    webhook:
      url: https://example.com/off
`)
	f, err := FromFile(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if f.Size() != 1 {
		t.Fatalf("expected one enabled sink, got %d", f.Size())
	}
	if accepts(f.publishers[0], "success") || !accepts(f.publishers[0], "failed") {
		t.Fatalf("status filter not applied")
	}
}

func TestLoadSinksJSONAndDefaults(t *testing.T) {
	path := writeSinks(t, "publishers.json", `{"sinks":[
		{"id":"q","type":"SQS","sqs":{"queue_url":" https://sqs.local/q ","region":"eu-west-1"}},
		{"id":"w","type":"webhook","webhook":{"url":"https://example.com"}}
	]}`)
	cfgs, err := LoadSinks(path)
	if err != nil {
		t.Fatalf("LoadSinks: %v", err)
	}
	if cfgs[0].Type != TypeSQS || cfgs[0].SQS.QueueURL != "https://sqs.local/q" || cfgs[0].SQS.Region != "eu-west-1" {
		t.Fatalf("sqs sink not normalized: %#v", cfgs[0].SQS)
	}
	if cfgs[1].Webhook.Method != "POST" || cfgs[1].Webhook.TimeoutSeconds != 5 {
		t.Fatalf("webhook defaults not applied: %#v", cfgs[1].Webhook)
	}
}

func TestLoadSinksReportsEveryProblem(t *testing.T) {
	path := writeSinks(t, "publishers.yaml", `
sinks:
  - id: a
    type: sns
    sns:
      topic_arn: arn:aws:sns:::t
  - id: a
    type: webhook
    webhook:
      url: https://example.com
  - id: k
    type: kafka
  - type: pubsub
`)
	_, err := LoadSinks(path)
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"sns.region", `duplicate id "a"`, `unsupported type "kafka"`, "id is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}
