package routine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samvad-hq/daily-digest/internal/crawler"
	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/notebook"
	"github.com/samvad-hq/daily-digest/internal/storage"
	"github.com/samvad-hq/daily-digest/pkg/publishers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScraper struct {
	items   []domain.ScrapedItem
	err     error
	started chan struct{}
	release chan struct{}
	calls   int
}

func (s *stubScraper) ScrapeAll(ctx context.Context, progress crawler.ProgressFunc) ([]domain.ScrapedItem, error) {
	s.calls++
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	return s.items, s.err
}

type stubEnricher struct {
	transcripts map[string]string
}

func (s stubEnricher) Run(_ context.Context, items []domain.ScrapedItem, _ crawler.ProgressFunc) []domain.ScrapedItem {
	out := append([]domain.ScrapedItem(nil), items...)
	for i := range out {
		if t, ok := s.transcripts[out[i].URL]; ok {
			out[i].Transcript = t
		}
	}
	return out
}

type stubSyncer struct {
	mu     sync.Mutex
	url    string
	err    error
	names  []string
	synced [][]domain.ScrapedItem
	closed int
}

func (s *stubSyncer) Sync(_ context.Context, name string, items []domain.ScrapedItem, _ func(string)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	s.synced = append(s.synced, items)
	return s.url, s.err
}

func (s *stubSyncer) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

type recordingEvents struct {
	events []publishers.Event
}

func (r *recordingEvents) Publish(_ context.Context, evt publishers.Event) (int, error) {
	r.events = append(r.events, evt)
	return 1, nil
}

var fixedNow = time.Date(2026, 10, 15, 21, 0, 0, 0, time.UTC)

func newTestOrchestrator(sc Scraper, en Enricher, store *storage.MemoryStore, syncer Syncer, events EventPublisher) *Orchestrator {
	n := 0
	return New(sc, en, store, store, func() Syncer { return syncer }, Options{
		Events: events,
		Now:    func() time.Time { return fixedNow },
		NewID: func() string {
			n++
			return fmt.Sprintf("run-%d", n)
		},
	})
}

func items(urls ...string) []domain.ScrapedItem {
	out := make([]domain.ScrapedItem, 0, len(urls))
	for _, u := range urls {
		out = append(out, domain.ScrapedItem{Title: "t-" + u, URL: u, Platform: domain.PlatformRSS, Source: "RSS"})
	}
	return out
}

func TestRunSuccessRecordsHistoryAndLog(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	syncer := &stubSyncer{url: "https://notebooklm.google.com/notebook/1"}
	events := &recordingEvents{}
	o := newTestOrchestrator(&stubScraper{items: items("u1", "u2")}, nil, store, syncer, events)

	res := o.Run(context.Background(), RunOptions{CloseOnFinish: true})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "https://notebooklm.google.com/notebook/1", res.NotebookURL)
	assert.Len(t, res.ScrapedItems, 2)
	assert.Equal(t, []string{"daily_2026_10_15"}, syncer.names)
	assert.Equal(t, 1, syncer.closed)

	history, err := store.ReadHistory()
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, history)

	runs, err := store.ReadRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunSuccess, runs[0].Status)
	assert.Equal(t, domain.SyncSuccess, runs[0].SyncStatus)
	assert.Equal(t, res.NotebookURL, runs[0].NotebookURL)

	require.Len(t, events.events, 1)
	assert.Equal(t, "success", events.events[0].Status)
	assert.Equal(t, "run-1", events.events[0].RunID)
	assert.False(t, o.Running())
}

func TestRunIsSingleFlight(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	sc := &stubScraper{items: items("u1"), started: make(chan struct{}), release: make(chan struct{})}
	events := &recordingEvents{}
	o := newTestOrchestrator(sc, nil, store, &stubSyncer{}, events)

	done := make(chan Result)
	go func() { done <- o.Run(context.Background(), RunOptions{}) }()
	<-sc.started

	second := o.Run(context.Background(), RunOptions{})
	assert.Equal(t, StatusSkipped, second.Status)
	runs, _ := store.ReadRuns()
	assert.Empty(t, runs)
	history, _ := store.ReadHistory()
	assert.Empty(t, history)
	assert.Empty(t, events.events)

	_, err := o.Resync(context.Background(), "run-1", RunOptions{})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(sc.release)
	first := <-done
	assert.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, 1, sc.calls)
	assert.False(t, o.Running())
}

func TestRunSyncFailureKeepsHistory(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	syncer := &stubSyncer{err: fmt.Errorf("init: %w", notebook.ErrSessionRequired)}
	sc := &stubScraper{items: items("u1", "u2")}
	o := newTestOrchestrator(sc, nil, store, syncer, nil)

	res := o.Run(context.Background(), RunOptions{})
	require.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, "session required")

	runs, err := store.ReadRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.SyncFailed, runs[0].SyncStatus)
	assert.Contains(t, runs[0].SyncError, "session required")

	history, err := store.ReadHistory()
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, history)

	// The next scrape filters against the committed history.
	fresh := crawler.FilterNew(sc.items, history)
	assert.Empty(t, fresh)
	assert.Zero(t, syncer.closed)
}

func TestRunWithoutItemsIsNoContent(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	syncer := &stubSyncer{}
	o := newTestOrchestrator(&stubScraper{}, nil, store, syncer, nil)

	res := o.Run(context.Background(), RunOptions{})
	assert.Equal(t, StatusNoContent, res.Status)
	assert.NotNil(t, res.ScrapedItems)
	assert.Empty(t, syncer.names)

	runs, err := store.ReadRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunNone, runs[0].Status)
	assert.Equal(t, domain.SyncPending, runs[0].SyncStatus)
}

func TestRunWithoutTranscriptListsScrapedItems(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	video := domain.ScrapedItem{Title: "talk", URL: "https://www.bilibili.com/video/BV1/", Platform: domain.PlatformBilibili, Source: "Bilibili"}
	o := newTestOrchestrator(&stubScraper{items: []domain.ScrapedItem{video}}, stubEnricher{}, store, &stubSyncer{}, nil)

	res := o.Run(context.Background(), RunOptions{})
	assert.Equal(t, StatusNoContent, res.Status)

	runs, err := store.ReadRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunNone, runs[0].Status)
	assert.Equal(t, []domain.Detail{video.Detail()}, runs[0].Details)

	history, _ := store.ReadHistory()
	assert.Empty(t, history)
}

func TestRunSyncsOnlyEligibleItems(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	withText := domain.ScrapedItem{Title: "a", URL: "https://www.bilibili.com/video/BV1/", Platform: domain.PlatformBilibili}
	without := domain.ScrapedItem{Title: "b", URL: "https://www.bilibili.com/video/BV2/", Platform: domain.PlatformBilibili}
	syncer := &stubSyncer{url: "nb"}
	en := stubEnricher{transcripts: map[string]string{withText.URL: "hello"}}
	o := newTestOrchestrator(&stubScraper{items: []domain.ScrapedItem{withText, without}}, en, store, syncer, nil)

	res := o.Run(context.Background(), RunOptions{})
	require.Equal(t, StatusSuccess, res.Status)
	require.Len(t, syncer.synced, 1)
	assert.Equal(t, []string{withText.URL}, domain.URLs(syncer.synced[0]))

	history, _ := store.ReadHistory()
	assert.Equal(t, []string{withText.URL}, history)
}

func TestRunScrapeFailureReleasesGuard(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	o := newTestOrchestrator(&stubScraper{err: errors.New("config unreadable")}, nil, store, &stubSyncer{}, nil)

	res := o.Run(context.Background(), RunOptions{})
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Message, "config unreadable")
	assert.False(t, o.Running())

	runs, _ := store.ReadRuns()
	assert.Empty(t, runs)
}

func TestRunSurvivesPanickingProgress(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	o := newTestOrchestrator(&stubScraper{items: items("u1")}, nil, store, &stubSyncer{url: "nb"}, nil)

	res := o.Run(context.Background(), RunOptions{Progress: func(string) { panic("closed stream") }})
	assert.Equal(t, StatusSuccess, res.Status)
}

func TestResyncUpdatesFailedEntry(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	require.NoError(t, store.AppendRun(domain.RunLogEntry{
		ID:         "old",
		Status:     domain.RunSuccess,
		SyncStatus: domain.SyncFailed,
		SyncError:  "session required",
		Details:    []domain.Detail{{Title: "v", URL: "https://www.youtube.com/watch?v=1", Source: "YouTube"}},
	}))
	syncer := &stubSyncer{url: "https://notebooklm.google.com/notebook/2"}
	o := newTestOrchestrator(&stubScraper{}, nil, store, syncer, nil)

	res, err := o.Resync(context.Background(), "old", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, syncer.synced, 1)
	assert.Equal(t, domain.PlatformYouTube, syncer.synced[0][0].Platform)

	entry, ok, err := store.GetRun("old")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SyncSuccess, entry.SyncStatus)
	assert.Empty(t, entry.SyncError)
	assert.Equal(t, res.NotebookURL, entry.NotebookURL)
}

func TestResyncRejectsMissingOrEmptyEntries(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	require.NoError(t, store.AppendRun(domain.RunLogEntry{ID: "empty", Status: domain.RunNone}))
	o := newTestOrchestrator(&stubScraper{}, nil, store, &stubSyncer{}, nil)

	_, err := o.Resync(context.Background(), "missing", RunOptions{})
	assert.ErrorIs(t, err, storage.ErrRunNotFound)

	_, err = o.Resync(context.Background(), "empty", RunOptions{})
	assert.ErrorIs(t, err, ErrNothingToSync)
	assert.False(t, o.Running())
}

func TestNotebookName(t *testing.T) {
	assert.Equal(t, "daily_2026_01_06", NotebookName(time.Date(2026, 1, 5, 23, 0, 0, 0, time.FixedZone("x", -3600))))
}

type panickingSyncer struct{ closed int }

func (p *panickingSyncer) Sync(context.Context, string, []domain.ScrapedItem, func(string)) (string, error) {
	panic("driver crashed")
}

func (p *panickingSyncer) Close() error {
	p.closed++
	return nil
}

func TestRunPanicDuringSyncMarksEntryFailed(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	syncer := &panickingSyncer{}
	o := newTestOrchestrator(&stubScraper{items: items("u1")}, nil, store, syncer, nil)

	res := o.Run(context.Background(), RunOptions{CloseOnFinish: true})
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "driver crashed", res.Error)
	assert.Equal(t, 1, syncer.closed)
	assert.False(t, o.Running())

	entry, ok, err := store.GetRun(res.RunID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SyncFailed, entry.SyncStatus)
	assert.Contains(t, entry.SyncError, "driver crashed")

	history, err := store.ReadHistory()
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, history)
}

func TestResyncSkipsItemsStillWithoutTranscript(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	require.NoError(t, store.AppendRun(domain.RunLogEntry{
		ID:         "mixed",
		Status:     domain.RunSuccess,
		SyncStatus: domain.SyncFailed,
		Details: []domain.Detail{
			{Title: "v", URL: "https://www.youtube.com/watch?v=1", Source: "YouTube"},
			{Title: "b", URL: "https://www.bilibili.com/video/BV1", Source: "Bilibili"},
		},
	}))
	syncer := &stubSyncer{url: "https://notebooklm.google.com/notebook/3"}
	o := newTestOrchestrator(&stubScraper{}, stubEnricher{}, store, syncer, nil)

	res, err := o.Resync(context.Background(), "mixed", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "Synced 1 of 2 items.", res.Message)
	require.Len(t, syncer.synced, 1)
	require.Len(t, syncer.synced[0], 1)
	assert.Equal(t, domain.PlatformYouTube, syncer.synced[0][0].Platform)
	require.Len(t, res.ScrapedItems, 1)
}

func TestResyncWithNoEligibleItemsLeavesEntryAlone(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	require.NoError(t, store.AppendRun(domain.RunLogEntry{
		ID:         "bili",
		Status:     domain.RunSuccess,
		SyncStatus: domain.SyncFailed,
		SyncError:  "session required",
		Details:    []domain.Detail{{Title: "b", URL: "https://www.bilibili.com/video/BV1", Source: "Bilibili"}},
	}))
	syncer := &stubSyncer{}
	o := newTestOrchestrator(&stubScraper{}, stubEnricher{}, store, syncer, nil)

	_, err := o.Resync(context.Background(), "bili", RunOptions{})
	assert.ErrorIs(t, err, ErrNothingToSync)
	assert.Empty(t, syncer.synced)
	assert.False(t, o.Running())

	entry, _, err := store.GetRun("bili")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncFailed, entry.SyncStatus)
	assert.Equal(t, "session required", entry.SyncError)
}
