// Package app assembles the runtime and runs it as a scheduled daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samvad-hq/daily-digest/internal/routine"
)

const shutdownTimeout = 15 * time.Second

// Daemon runs the routine on a cron schedule and serves the HTTP API until its context ends.
type Daemon struct {
	rt       *Runtime
	schedule string
	addr     string
}

// NewDaemon builds a Daemon. An empty schedule disables scheduled runs.
func NewDaemon(rt *Runtime, schedule, addr string) *Daemon {
	return &Daemon{rt: rt, schedule: schedule, addr: addr}
}

// Run blocks until ctx is cancelled, then shuts the server and scheduler down.
func (d *Daemon) Run(ctx context.Context) error {
	if d == nil || d.rt == nil {
		return fmt.Errorf("daemon is not initialized")
	}
	log := d.rt.log

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if d.schedule != "" {
		if _, err := c.AddFunc(d.schedule, func() { d.scheduledRun(ctx) }); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", d.schedule, err)
		}
	}
	c.Start()

	srv := &http.Server{
		Addr:              d.addr,
		Handler:           d.rt.Server().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.InfoObj("daemon started", "daemon", map[string]any{
		"listen_addr": d.addr,
		"schedule":    d.schedule,
	})

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorObj("http shutdown failed", "daemon", map[string]any{"error": err.Error()})
	}
	// Waits for a scheduled run that is still in flight.
	<-c.Stop().Done()
	log.InfoObj("daemon stopped", "daemon", nil)
	return runErr
}

func (d *Daemon) scheduledRun(ctx context.Context) {
	start := time.Now()
	res := d.rt.Routine.Run(context.WithoutCancel(ctx), routine.RunOptions{CloseOnFinish: d.rt.cfg.CloseBrowserOnFinish})
	d.rt.log.InfoObj("scheduled run finished", "daemon_run", map[string]any{
		"run_id":     res.RunID,
		"status":     res.Status,
		"message":    res.Message,
		"items":      len(res.ScrapedItems),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
}
