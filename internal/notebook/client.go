package notebook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/logger"
)

var (
	// ErrSessionRequired means the persistent profile is signed out; a human must log in again.
	ErrSessionRequired = errors.New("notebooklm session required, please log in first")
	// ErrInputNotReady means the chat input stayed disabled for the whole readiness budget.
	ErrInputNotReady = errors.New("notebooklm input remained disabled")
	// ErrInvalidState is returned when a step is called out of order.
	ErrInvalidState = errors.New("notebook client in invalid state")
)

// DefaultSummaryPrompt is submitted once all sources are inserted.
const DefaultSummaryPrompt = "Summarize the key points of every source."

const authorLabelRunes = 5

// State is a step of the sync protocol.
type State int

const (
	StateUninitialized State = iota
	StateSessionReady
	StateContainerResolved
	StateSourcesInserted
	StateSummaryRequested
	StateDone
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSessionReady:
		return "session_ready"
	case StateContainerResolved:
		return "container_resolved"
	case StateSourcesInserted:
		return "sources_inserted"
	case StateSummaryRequested:
		return "summary_requested"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sessions provides the persistent browser profile directory.
type Sessions interface {
	Dir(p domain.Platform) (string, error)
	ClearStaleLock(p domain.Platform) error
}

// Options tunes a Client.
type Options struct {
	BrowserPath   string
	ReadyTimeout  time.Duration
	ReadyPoll     time.Duration
	// Settle is waited after insertion before polling the input.
	Settle        time.Duration
	SummaryPrompt string
	Logger        logger.Logger
}

// Client runs the sync protocol against one notebook. Steps are sequential and must be
// called in order; any step failure moves the client to StateFailed.
type Client struct {
	driver   Driver
	sessions Sessions
	opts     Options
	log      logger.Logger

	mu    sync.Mutex
	state State
}

// NewClient builds a Client.
func NewClient(driver Driver, sessions Sessions, opts Options) *Client {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 60 * time.Second
	}
	if opts.ReadyPoll <= 0 {
		opts.ReadyPoll = 2 * time.Second
	}
	if strings.TrimSpace(opts.SummaryPrompt) == "" {
		opts.SummaryPrompt = DefaultSummaryPrompt
	}
	return &Client{
		driver:   driver,
		sessions: sessions,
		opts:     opts,
		log:      logger.Ensure(opts.Logger),
	}
}

// State returns the current protocol state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) expect(step string, want State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != want {
		return fmt.Errorf("%s from %s: %w", step, c.state, ErrInvalidState)
	}
	return nil
}

func (c *Client) moveTo(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) fail(step string, err error) error {
	c.moveTo(StateFailed)
	c.log.ErrorObj("notebook sync step failed", "notebook_error", map[string]any{
		"step":  step,
		"error": err.Error(),
	})
	return fmt.Errorf("%s: %w", step, err)
}

// Init clears a stale profile lock, launches the browser and checks the login.
func (c *Client) Init(ctx context.Context) error {
	if err := c.expect("init", StateUninitialized); err != nil {
		return err
	}
	if err := c.sessions.ClearStaleLock(domain.PlatformNotebook); err != nil {
		c.log.WarnObj("stale profile lock not cleared", "notebook_session", map[string]any{"error": err.Error()})
	}
	profile, err := c.sessions.Dir(domain.PlatformNotebook)
	if err != nil {
		return c.fail("init", err)
	}
	if err := c.driver.Launch(ctx, profile, c.opts.BrowserPath); err != nil {
		return c.fail("init", fmt.Errorf("launch browser: %w", err))
	}
	signedIn, err := c.driver.OpenHome(ctx)
	if err != nil {
		return c.fail("init", fmt.Errorf("open home: %w", err))
	}
	if !signedIn {
		return c.fail("init", ErrSessionRequired)
	}
	c.log.InfoObj("notebook session ready", "notebook_session", map[string]any{"profile": profile})
	c.moveTo(StateSessionReady)
	return nil
}

// ResolveContainer opens the notebook called name, creating it only when none matches.
func (c *Client) ResolveContainer(ctx context.Context, name string) error {
	if err := c.expect("resolve container", StateSessionReady); err != nil {
		return err
	}
	found, err := c.driver.FindContainer(ctx, name)
	if err != nil {
		return c.fail("resolve container", err)
	}
	if found {
		err = c.driver.OpenContainer(ctx, name)
	} else {
		err = c.driver.CreateContainer(ctx, name)
	}
	if err != nil {
		return c.fail("resolve container", err)
	}
	c.log.InfoObj("notebook resolved", "notebook_container", map[string]any{"name": name, "created": !found})
	c.moveTo(StateContainerResolved)
	return nil
}

// InsertReport counts per-item insertion outcomes.
type InsertReport struct {
	Inserted int
	Failed   int
	Skipped  int
}

// InsertSources adds every item as a source. Item failures are logged and counted, never returned.
// Video links and text documents are inserted one by one and renamed; web links go in one batch.
func (c *Client) InsertSources(ctx context.Context, items []domain.ScrapedItem, progress func(string)) (InsertReport, error) {
	var report InsertReport
	if err := c.expect("insert sources", StateContainerResolved); err != nil {
		return report, err
	}

	var web []domain.ScrapedItem
	for i, it := range items {
		kind := insertKind(it)
		if kind == insertBatched {
			web = append(web, it)
			continue
		}
		notify(progress, fmt.Sprintf("Adding source %d/%d: %s", i+1, len(items), it.Title))

		var err error
		switch kind {
		case insertLink:
			err = c.driver.InsertLink(ctx, it.URL)
		case insertText:
			err = c.driver.InsertText(ctx, it.Title, textContent(it))
		case insertNone:
			report.Skipped++
			c.log.WarnObj("item has no insertable content", "notebook_insert_skip", map[string]any{
				"platform": it.Platform,
				"title":    it.Title,
				"url":      it.URL,
			})
			continue
		}
		if err != nil {
			report.Failed++
			c.log.ErrorObj("source insertion failed", "notebook_insert_error", map[string]any{
				"platform": it.Platform,
				"title":    it.Title,
				"url":      it.URL,
				"error":    err.Error(),
			})
			continue
		}
		report.Inserted++

		if err := c.driver.RenameSource(ctx, it.Title, SourceLabel(it)); err != nil {
			c.log.WarnObj("source rename failed", "notebook_rename_error", map[string]any{
				"title": it.Title,
				"url":   it.URL,
				"error": err.Error(),
			})
		}
	}

	if len(web) > 0 {
		notify(progress, fmt.Sprintf("Adding %d web links", len(web)))
		if err := c.driver.InsertLinks(ctx, domain.URLs(web)); err != nil {
			report.Failed += len(web)
			c.log.ErrorObj("web link batch failed", "notebook_insert_error", map[string]any{
				"count": len(web),
				"urls":  domain.URLs(web),
				"error": err.Error(),
			})
		} else {
			report.Inserted += len(web)
		}
	}

	c.log.InfoObj("sources inserted", "notebook_insert", report)
	c.moveTo(StateSourcesInserted)
	return report, nil
}

// RequestSummary polls until the chat input is enabled, then submits the summary prompt.
func (c *Client) RequestSummary(ctx context.Context) error {
	if err := c.expect("request summary", StateSourcesInserted); err != nil {
		return err
	}
	if err := c.waitInputReady(ctx); err != nil {
		return c.fail("request summary", err)
	}
	c.moveTo(StateSummaryRequested)
	if err := c.driver.Submit(ctx, c.opts.SummaryPrompt); err != nil {
		return c.fail("request summary", err)
	}
	c.moveTo(StateDone)
	return nil
}

func (c *Client) waitInputReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.ReadyPoll)
	defer ticker.Stop()
	for {
		ok, err := c.driver.InputEnabled(ctx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			c.log.DebugObj("input readiness probe failed", "notebook_ready", map[string]any{"error": err.Error()})
		}
		select {
		case <-ctx.Done():
			return ErrInputNotReady
		case <-ticker.C:
		}
	}
}

// URL returns the address of the open notebook.
func (c *Client) URL(ctx context.Context) (string, error) {
	return c.driver.CurrentURL(ctx)
}

// Close releases the browser. It is safe in any state and more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	launched := c.state != StateUninitialized
	c.state = StateClosed
	c.mu.Unlock()

	if !launched {
		return nil
	}
	return c.driver.Close()
}

// Sync runs every step for items into the notebook called name and returns its URL.
// The browser is left open; callers decide when to Close.
func (c *Client) Sync(ctx context.Context, name string, items []domain.ScrapedItem, progress func(string)) (string, error) {
	notify(progress, "Opening NotebookLM...")
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	notify(progress, "Resolving notebook "+name+"...")
	if err := c.ResolveContainer(ctx, name); err != nil {
		return "", err
	}
	if _, err := c.InsertSources(ctx, items, progress); err != nil {
		return "", err
	}
	notify(progress, "Waiting for sources to be processed...")
	if c.opts.Settle > 0 {
		select {
		case <-time.After(c.opts.Settle):
		case <-ctx.Done():
			return "", c.fail("settle", ctx.Err())
		}
	}
	notify(progress, "Asking for summary...")
	if err := c.RequestSummary(ctx); err != nil {
		return "", err
	}
	url, err := c.URL(ctx)
	if err != nil {
		c.log.WarnObj("notebook url unavailable", "notebook_url", map[string]any{"error": err.Error()})
		return "", nil
	}
	return url, nil
}

type insertStrategy int

const (
	insertBatched insertStrategy = iota
	insertLink
	insertText
	insertNone
)

func insertKind(it domain.ScrapedItem) insertStrategy {
	switch {
	case it.Platform == domain.PlatformYouTube || strings.Contains(it.URL, "youtube.com"):
		return insertLink
	case textContent(it) != "":
		return insertText
	case it.Platform == domain.PlatformBilibili:
		return insertNone
	default:
		return insertBatched
	}
}

func textContent(it domain.ScrapedItem) string {
	if strings.TrimSpace(it.FormattedContent) != "" {
		return it.FormattedContent
	}
	if strings.TrimSpace(it.Transcript) == "" {
		return ""
	}
	return fmt.Sprintf("# %s\n\n## Description\n%s\n\n## Transcript\n%s\n", it.Title, it.Description, it.Transcript)
}

// SourceLabel is the display name given to an inserted source: the first runes of the author, a dash, the title.
func SourceLabel(it domain.ScrapedItem) string {
	return truncateRunes(strings.TrimSpace(it.Author), authorLabelRunes) + "-" + it.Title
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func notify(progress func(string), msg string) {
	if progress == nil {
		return
	}
	defer func() { _ = recover() }()
	progress(msg)
}
