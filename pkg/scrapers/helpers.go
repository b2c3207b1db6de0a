package scrapers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// fetchBody GETs url and returns the body of a 200 response.
func fetchBody(ctx context.Context, client HTTPClient, url, label string, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", label, err)
	}
	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d body: %s", label, resp.StatusCode(), responseSnippet(body))
	}
	return body, nil
}

// fetchJSON GETs url and decodes a 200 JSON body into dst.
func fetchJSON(ctx context.Context, client HTTPClient, url, label string, headers map[string]string, dst any) error {
	body, err := fetchBody(ctx, client, url, label, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", label, err)
	}
	return nil
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// sourceErrors collects per-source failures. It only becomes a platform error when no source succeeded.
type sourceErrors struct {
	attempted int
	errs      []error
}

func (s *sourceErrors) add(err error) {
	s.attempted++
	if err != nil {
		s.errs = append(s.errs, err)
	}
}

func (s *sourceErrors) platformErr() error {
	if s.attempted == 0 || len(s.errs) < s.attempted {
		return nil
	}
	return errors.Join(s.errs...)
}
