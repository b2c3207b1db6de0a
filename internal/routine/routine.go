// Package routine composes scraping, enrichment, logging and notebook sync into one guarded run.
package routine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samvad-hq/daily-digest/internal/crawler"
	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/logger"
	"github.com/samvad-hq/daily-digest/internal/storage"
	"github.com/samvad-hq/daily-digest/pkg/publishers"
)

// Status is the outcome reported to callers.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusNoContent Status = "no_content"
	StatusSkipped   Status = "skipped"
)

var (
	// ErrAlreadyRunning is returned when a run or resync is requested while another is in flight.
	ErrAlreadyRunning = errors.New("routine is already running")
	// ErrNothingToSync is returned when a resync targets a log entry without items.
	ErrNothingToSync = errors.New("run log entry has no items to sync")
)

// Result is the structured outcome of one run.
type Result struct {
	RunID        string          `json:"runId,omitempty"`
	Status       Status          `json:"status"`
	Message      string          `json:"message"`
	ScrapedItems []domain.Detail `json:"scrapedItems"`
	NotebookURL  string          `json:"notebookUrl,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Scraper produces the new items of a run.
type Scraper interface {
	ScrapeAll(ctx context.Context, progress crawler.ProgressFunc) ([]domain.ScrapedItem, error)
}

// Enricher attaches mandatory content to items.
type Enricher interface {
	Run(ctx context.Context, items []domain.ScrapedItem, progress crawler.ProgressFunc) []domain.ScrapedItem
}

// Syncer pushes items into one notebook.
type Syncer interface {
	Sync(ctx context.Context, name string, items []domain.ScrapedItem, progress func(string)) (string, error)
	Close() error
}

// SyncerFactory returns a fresh Syncer for each run.
type SyncerFactory func() Syncer

// EventPublisher receives a completion event after every run that was not skipped.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Options wires optional collaborators.
type Options struct {
	Events EventPublisher
	Logger logger.Logger
	Now    func() time.Time
	NewID  func() string
}

// RunOptions controls a single invocation.
type RunOptions struct {
	// CloseOnFinish releases the browser after the sync. Interactive callers may keep it open.
	CloseOnFinish bool
	Progress      func(string)
}

// Orchestrator is the daily routine. At most one run or resync executes at a time.
type Orchestrator struct {
	scraper   Scraper
	enricher  Enricher
	history   storage.HistoryStore
	runs      storage.RunLogStore
	newSyncer SyncerFactory
	events    EventPublisher
	log       logger.Logger
	now       func() time.Time
	newID     func() string

	running atomic.Bool
}

// New builds an Orchestrator.
func New(scraper Scraper, enricher Enricher, history storage.HistoryStore, runs storage.RunLogStore, newSyncer SyncerFactory, opts Options) *Orchestrator {
	o := &Orchestrator{
		scraper:   scraper,
		enricher:  enricher,
		history:   history,
		runs:      runs,
		newSyncer: newSyncer,
		events:    opts.Events,
		log:       logger.Ensure(opts.Logger),
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o
}

// Running reports whether a run is in flight.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// NotebookName is the notebook a run on day t syncs into.
func NotebookName(t time.Time) string {
	return "daily_" + t.UTC().Format("2006_01_02")
}

// Run executes one pipeline run. A concurrent call returns StatusSkipped without side effects.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) Result {
	if !o.running.CompareAndSwap(false, true) {
		o.log.WarnObj("routine already running, trigger skipped", "routine", nil)
		return Result{Status: StatusSkipped, Message: "Routine is already running", ScrapedItems: []domain.Detail{}}
	}
	defer o.running.Store(false)

	runID := o.newID()
	res := o.execute(ctx, runID, opts)
	res.RunID = runID
	if res.ScrapedItems == nil {
		res.ScrapedItems = []domain.Detail{}
	}
	o.publish(ctx, res)
	return res
}

func (o *Orchestrator) execute(ctx context.Context, runID string, opts RunOptions) (res Result) {
	progress := crawler.ProgressFunc(opts.Progress)
	say := func(msg string) { notify(opts.Progress, msg) }

	// set while a run log entry is waiting for its sync outcome
	syncPending := false
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			o.log.ErrorObj("routine panicked", "routine", map[string]any{"run_id": runID, "panic": msg})
			if syncPending {
				o.updateRun(runID, domain.RunPatch{
					SyncStatus: domain.Ptr(domain.SyncFailed),
					SyncError:  domain.Ptr("routine panicked: " + msg),
				})
			}
			res = Result{Status: StatusFailed, Message: "Routine failed unexpectedly", Error: msg}
		}
	}()

	o.log.InfoObj("routine started", "routine", map[string]any{"run_id": runID})
	say("Initializing scrapers...")

	items, err := o.scraper.ScrapeAll(ctx, progress)
	if err != nil {
		o.log.ErrorObj("scrape phase failed", "routine", map[string]any{"run_id": runID, "error": err.Error()})
		say("Scrape failed: " + err.Error())
		return Result{Status: StatusFailed, Message: "Scrape failed: " + err.Error(), Error: err.Error()}
	}

	if len(items) == 0 {
		say("No new content. Finishing.")
		o.appendRun(domain.RunLogEntry{
			ID:         runID,
			Timestamp:  o.now().UTC(),
			Status:     domain.RunNone,
			Message:    "No new content found.",
			SyncStatus: domain.SyncPending,
		})
		return Result{Status: StatusNoContent, Message: "No new content found."}
	}

	enriched := items
	if o.enricher != nil {
		enriched = o.enricher.Run(ctx, items, progress)
	}
	eligible := crawler.Eligible(enriched)

	if len(eligible) == 0 {
		msg := "No transcript-available content found to sync."
		say("No valid content after extraction. Finishing.")
		o.appendRun(domain.RunLogEntry{
			ID:         runID,
			Timestamp:  o.now().UTC(),
			Status:     domain.RunNone,
			Message:    msg,
			ItemCount:  len(items),
			SyncStatus: domain.SyncPending,
			Details:    domain.Details(items),
		})
		return Result{Status: StatusNoContent, Message: msg, ScrapedItems: domain.Details(items)}
	}

	details := domain.Details(eligible)
	o.appendRun(domain.RunLogEntry{
		ID:         runID,
		Timestamp:  o.now().UTC(),
		Status:     domain.RunSuccess,
		Message:    fmt.Sprintf("Scraped %d items (%d valid). Syncing...", len(items), len(eligible)),
		ItemCount:  len(items),
		SyncStatus: domain.SyncPending,
		Details:    details,
	})
	syncPending = true
	// History is committed before the sync so a failed sync never re-delivers these items.
	if err := crawler.RecordSynced(o.history, domain.URLs(eligible)); err != nil {
		o.log.ErrorObj("history not updated", "routine", map[string]any{"run_id": runID, "error": err.Error()})
	}

	url, err := o.sync(ctx, runID, eligible, opts)
	syncPending = false
	if err != nil {
		say("Sync failed: " + err.Error())
		return Result{
			Status:       StatusFailed,
			Message:      fmt.Sprintf("Scraped %d items but sync failed", len(eligible)),
			ScrapedItems: details,
			Error:        err.Error(),
		}
	}
	say("Routine completed!")
	return Result{
		Status:       StatusSuccess,
		Message:      fmt.Sprintf("Successfully synced %d items.", len(eligible)),
		ScrapedItems: details,
		NotebookURL:  url,
	}
}

// sync drives the notebook and records the outcome on the run log entry.
func (o *Orchestrator) sync(ctx context.Context, runID string, items []domain.ScrapedItem, opts RunOptions) (string, error) {
	if o.newSyncer == nil {
		err := errors.New("notebook sync is not configured")
		o.updateRun(runID, domain.RunPatch{SyncStatus: domain.Ptr(domain.SyncFailed), SyncError: domain.Ptr(err.Error())})
		return "", err
	}
	syncer := o.newSyncer()
	if opts.CloseOnFinish {
		defer func() {
			if err := syncer.Close(); err != nil {
				o.log.WarnObj("browser close failed", "routine", map[string]any{"run_id": runID, "error": err.Error()})
			}
		}()
	}

	notify(opts.Progress, "Launching NotebookLM...")
	url, err := syncer.Sync(ctx, NotebookName(o.now()), items, opts.Progress)
	if err != nil {
		o.log.ErrorObj("notebook sync failed", "routine", map[string]any{"run_id": runID, "error": err.Error()})
		o.updateRun(runID, domain.RunPatch{
			SyncStatus: domain.Ptr(domain.SyncFailed),
			SyncError:  domain.Ptr(err.Error()),
		})
		return "", err
	}
	o.updateRun(runID, domain.RunPatch{
		Message:     domain.Ptr(fmt.Sprintf("Successfully synced %d items.", len(items))),
		NotebookURL: domain.Ptr(url),
		SyncStatus:  domain.Ptr(domain.SyncSuccess),
		SyncError:   domain.Ptr(""),
	})
	o.log.InfoObj("notebook sync completed", "routine", map[string]any{"run_id": runID, "items": len(items), "notebook_url": url})
	return url, nil
}

// Resync pushes the items of an existing run log entry into today's notebook again.
// Items needing enrichment are enriched again first.
func (o *Orchestrator) Resync(ctx context.Context, runID string, opts RunOptions) (Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Result{Status: StatusSkipped, Message: "Routine is already running"}, ErrAlreadyRunning
	}
	defer o.running.Store(false)

	entry, ok, err := o.runs.GetRun(runID)
	if err != nil {
		return Result{}, fmt.Errorf("read run %s: %w", runID, err)
	}
	if !ok {
		return Result{}, fmt.Errorf("%s: %w", runID, storage.ErrRunNotFound)
	}
	if len(entry.Details) == 0 {
		return Result{}, fmt.Errorf("%s: %w", runID, ErrNothingToSync)
	}

	items := make([]domain.ScrapedItem, 0, len(entry.Details))
	for _, d := range entry.Details {
		items = append(items, d.Item())
	}
	if o.enricher != nil {
		items = o.enricher.Run(ctx, items, crawler.ProgressFunc(opts.Progress))
	}
	eligible := crawler.Eligible(items)
	if len(eligible) == 0 {
		return Result{}, fmt.Errorf("%s: no transcript available for any of %d items: %w", runID, len(items), ErrNothingToSync)
	}

	res := Result{RunID: runID, ScrapedItems: domain.Details(eligible)}
	url, err := o.sync(ctx, runID, eligible, opts)
	if err != nil {
		res.Status = StatusFailed
		res.Message = "Sync failed"
		res.Error = err.Error()
	} else {
		res.Status = StatusSuccess
		res.Message = fmt.Sprintf("Synced %d of %d items.", len(eligible), len(items))
		res.NotebookURL = url
	}
	o.publish(ctx, res)
	return res, nil
}

func (o *Orchestrator) appendRun(entry domain.RunLogEntry) {
	if err := o.runs.AppendRun(entry); err != nil {
		o.log.ErrorObj("run log append failed", "routine", map[string]any{"run_id": entry.ID, "error": err.Error()})
	}
}

func (o *Orchestrator) updateRun(id string, patch domain.RunPatch) {
	if err := o.runs.UpdateRun(id, patch); err != nil {
		o.log.ErrorObj("run log update failed", "routine", map[string]any{"run_id": id, "error": err.Error()})
	}
}

func (o *Orchestrator) publish(ctx context.Context, res Result) {
	if o.events == nil {
		return
	}
	evt := publishers.NewEvent(res.RunID, string(res.Status), res.Message, res.NotebookURL, res.ScrapedItems)
	if _, err := o.events.Publish(ctx, evt); err != nil {
		o.log.WarnObj("run event not delivered", "routine", map[string]any{"run_id": res.RunID, "error": err.Error()})
	}
}

func notify(progress func(string), msg string) {
	if progress == nil {
		return
	}
	defer func() { _ = recover() }()
	progress(msg)
}
