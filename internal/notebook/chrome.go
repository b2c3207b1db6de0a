package notebook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/samvad-hq/daily-digest/internal/logger"
)

const (
	notebookHome     = "https://notebooklm.google.com/"
	signInHost       = "accounts.google.com"
	defaultStepLimit = 60 * time.Second
)

// Selectors locates NotebookLM controls. Labels match the English UI.
type Selectors struct {
	AddSource   string
	CreateNew   string
	YouTubeTab  string
	WebsiteTab  string
	TextTab     string
	LinkInput   string
	TextInput   string
	InsertBtn   string
	TitleInput  string
	QueryBox    string
	SubmitBtn   string
	RenameItem  string
	DialogInput string
}

// DefaultSelectors returns the selectors for the current English NotebookLM layout.
func DefaultSelectors() Selectors {
	return Selectors{
		AddSource:   `//button[contains(normalize-space(.), "Add source") or contains(@aria-label, "Add source")]`,
		CreateNew:   `//*[self::button or self::mat-card][contains(normalize-space(.), "Create new")]`,
		YouTubeTab:  `//*[normalize-space(text())="YouTube"]`,
		WebsiteTab:  `//*[normalize-space(text())="Website"]`,
		TextTab:     `//*[normalize-space(text())="Copied text"]`,
		LinkInput:   `//mat-dialog-container//*[self::textarea or self::input][not(@disabled)]`,
		TextInput:   `//mat-dialog-container//textarea`,
		InsertBtn:   `//mat-dialog-container//button[normalize-space(.)="Insert"]`,
		TitleInput:  `//input[contains(@class, "title-input")]`,
		QueryBox:    `textarea[aria-label="Query box"]`,
		SubmitBtn:   `button[aria-label="Submit"]`,
		RenameItem:  `//*[@role="menuitem"][contains(normalize-space(.), "Rename")]`,
		DialogInput: `//mat-dialog-container//input`,
	}
}

// ChromeDriver drives a visible Chrome with a persistent profile through the DevTools protocol.
type ChromeDriver struct {
	sel       Selectors
	homeURL   string
	stepLimit time.Duration
	headless  bool
	log       logger.Logger

	mu          sync.Mutex
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// ChromeOption customises a ChromeDriver.
type ChromeOption func(*ChromeDriver)

// WithHeadless runs Chrome without a window.
func WithHeadless(v bool) ChromeOption { return func(d *ChromeDriver) { d.headless = v } }

// WithSelectors overrides the UI selectors.
func WithSelectors(s Selectors) ChromeOption { return func(d *ChromeDriver) { d.sel = s } }

// WithStepLimit bounds each browser step.
func WithStepLimit(limit time.Duration) ChromeOption {
	return func(d *ChromeDriver) {
		if limit > 0 {
			d.stepLimit = limit
		}
	}
}

// NewChromeDriver builds a ChromeDriver. Nothing starts until Launch.
func NewChromeDriver(log logger.Logger, opts ...ChromeOption) *ChromeDriver {
	d := &ChromeDriver{
		sel:       DefaultSelectors(),
		homeURL:   notebookHome,
		stepLimit: defaultStepLimit,
		log:       logger.Ensure(log),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *ChromeDriver) Launch(ctx context.Context, profileDir, browserPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tab != nil {
		return nil
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("headless", d.headless),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("password-store", "basic"),
		chromedp.WindowSize(1280, 800),
	)
	if strings.TrimSpace(browserPath) != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(browserPath))
	}

	// The browser outlives the launching request.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tab, cancelTab := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tab); err != nil {
		cancelTab()
		cancelAlloc()
		return fmt.Errorf("start chrome: %w", err)
	}
	d.tab, d.cancelTab, d.cancelAlloc = tab, cancelTab, cancelAlloc
	d.log.InfoObj("chrome launched", "chrome", map[string]any{"profile": profileDir, "exec": browserPath})
	return nil
}

// run executes actions on the tab, bounded by the step limit and the caller's ctx.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	tab := d.tab
	d.mu.Unlock()
	if tab == nil {
		return fmt.Errorf("chrome not launched")
	}
	stepCtx, cancel := context.WithTimeout(tab, d.stepLimit)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(stepCtx, actions...)
}

func (d *ChromeDriver) OpenHome(ctx context.Context) (bool, error) {
	var loc string
	err := d.run(ctx,
		chromedp.Navigate(d.homeURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Location(&loc),
	)
	if err != nil {
		return false, err
	}
	return !strings.Contains(loc, signInHost), nil
}

func (d *ChromeDriver) FindContainer(ctx context.Context, name string) (bool, error) {
	quoted, err := json.Marshal(name)
	if err != nil {
		return false, err
	}
	script := fmt.Sprintf(`Array.from(document.querySelectorAll('[role="button"], mat-card, a'))
		.some(e => (e.innerText || '').trim().split('\n').some(l => l.trim().startsWith(%s)))`, quoted)
	var found bool
	if err := d.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return false, err
	}
	return found, nil
}

func (d *ChromeDriver) OpenContainer(ctx context.Context, name string) error {
	sel := fmt.Sprintf(`//*[self::mat-card or @role="button" or self::a][.//*[starts-with(normalize-space(text()), %s)]]`, xpathLiteral(name))
	return d.run(ctx,
		chromedp.Click(sel, chromedp.BySearch, chromedp.NodeVisible),
		chromedp.Sleep(2*time.Second),
	)
}

func (d *ChromeDriver) CreateContainer(ctx context.Context, name string) error {
	return d.run(ctx,
		chromedp.Click(d.sel.CreateNew, chromedp.BySearch, chromedp.NodeVisible),
		chromedp.Sleep(3*time.Second),
		// The add-source dialog opens with a new notebook.
		chromedp.KeyEvent(kb.Escape),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Click(d.sel.TitleInput, chromedp.BySearch, chromedp.NodeVisible),
		chromedp.SetValue(d.sel.TitleInput, "", chromedp.BySearch),
		chromedp.SendKeys(d.sel.TitleInput, name+kb.Enter, chromedp.BySearch),
		chromedp.Sleep(time.Second),
	)
}

func (d *ChromeDriver) openSourceDialog(tabSel string) chromedp.Tasks {
	return chromedp.Tasks{
		chromedp.Click(d.sel.AddSource, chromedp.BySearch, chromedp.NodeVisible),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Click(tabSel, chromedp.BySearch, chromedp.NodeVisible),
		chromedp.Sleep(500 * time.Millisecond),
	}
}

// paste focuses sel and inserts text as a single input event.
func paste(sel, text string) chromedp.Tasks {
	return chromedp.Tasks{
		chromedp.Focus(sel, chromedp.BySearch, chromedp.NodeVisible),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.InsertText(text).Do(ctx)
		}),
	}
}

func (d *ChromeDriver) InsertLink(ctx context.Context, url string) error {
	return d.run(ctx,
		d.openSourceDialog(d.sel.YouTubeTab),
		paste(d.sel.LinkInput, url),
		chromedp.Click(d.sel.InsertBtn, chromedp.BySearch, chromedp.NodeEnabled),
		chromedp.Sleep(2*time.Second),
	)
}

func (d *ChromeDriver) InsertText(ctx context.Context, title, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("empty text source %q", title)
	}
	return d.run(ctx,
		d.openSourceDialog(d.sel.TextTab),
		paste(d.sel.TextInput, content),
		chromedp.Click(d.sel.InsertBtn, chromedp.BySearch, chromedp.NodeEnabled),
		chromedp.Sleep(2*time.Second),
	)
}

func (d *ChromeDriver) InsertLinks(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	return d.run(ctx,
		d.openSourceDialog(d.sel.WebsiteTab),
		paste(d.sel.LinkInput, strings.Join(urls, "\n")),
		chromedp.Click(d.sel.InsertBtn, chromedp.BySearch, chromedp.NodeEnabled),
		chromedp.Sleep(3*time.Second),
	)
}

func (d *ChromeDriver) RenameSource(ctx context.Context, match, label string) error {
	match = strings.TrimSpace(match)
	if match == "" {
		return fmt.Errorf("rename: empty match")
	}
	entry := fmt.Sprintf(`//*[contains(@class, "source")][.//*[contains(normalize-space(text()), %s)]]`, xpathLiteral(match))
	more := entry + `//button[contains(@aria-label, "More")]`
	return d.run(ctx,
		chromedp.Click(more, chromedp.BySearch, chromedp.NodeVisible),
		chromedp.Click(d.sel.RenameItem, chromedp.BySearch, chromedp.NodeVisible),
		chromedp.SetValue(d.sel.DialogInput, "", chromedp.BySearch),
		chromedp.SendKeys(d.sel.DialogInput, label+kb.Enter, chromedp.BySearch),
		chromedp.Sleep(500*time.Millisecond),
	)
}

func (d *ChromeDriver) InputEnabled(ctx context.Context) (bool, error) {
	quoted, err := json.Marshal(d.sel.QueryBox)
	if err != nil {
		return false, err
	}
	script := fmt.Sprintf(`(() => { const el = document.querySelector(%s); return !!el && !el.disabled; })()`, quoted)
	var enabled bool
	if err := d.run(ctx, chromedp.Evaluate(script, &enabled)); err != nil {
		return false, err
	}
	return enabled, nil
}

func (d *ChromeDriver) Submit(ctx context.Context, prompt string) error {
	return d.run(ctx,
		chromedp.SendKeys(d.sel.QueryBox, prompt, chromedp.ByQuery, chromedp.NodeEnabled),
		chromedp.Click(d.sel.SubmitBtn, chromedp.ByQuery, chromedp.NodeEnabled),
	)
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := d.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Close shuts the tab and the browser process.
func (d *ChromeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancelTab != nil {
		d.cancelTab()
	}
	if d.cancelAlloc != nil {
		d.cancelAlloc()
	}
	d.tab, d.cancelTab, d.cancelAlloc = nil, nil, nil
	return nil
}

// xpathLiteral quotes s for use inside an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(quoted, `, '"', `) + ")"
}
