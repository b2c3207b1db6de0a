package publishers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/samvad-hq/daily-digest/internal/domain"
)

// Event is the run-completion payload published downstream.
type Event struct {
	RunID       string          `json:"run_id"`
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	ItemCount   int             `json:"item_count"`
	NotebookURL string          `json:"notebook_url,omitempty"`
	Items       []domain.Detail `json:"items,omitempty"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// NewEvent builds the Event for a finished run.
func NewEvent(runID, status, message, notebookURL string, items []domain.Detail) Event {
	return Event{
		RunID:       runID,
		Status:      status,
		Message:     message,
		ItemCount:   len(items),
		NotebookURL: notebookURL,
		Items:       items,
		FinishedAt:  time.Now().UTC(),
	}
}

func (e Event) body() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal run event: %w", err)
	}
	return string(data), nil
}

// attributes let queue consumers filter without decoding the body. Empty values are omitted.
func (e Event) attributes() map[string]string {
	out := map[string]string{}
	if e.RunID != "" {
		out["run_id"] = e.RunID
	}
	if e.Status != "" {
		out["status"] = e.Status
	}
	return out
}

// subject is a one-line summary for notification sinks.
func (e Event) subject() string {
	return fmt.Sprintf("daily digest run %s: %s (%d items)", e.RunID, e.Status, e.ItemCount)
}
