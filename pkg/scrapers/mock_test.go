package scrapers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/samvad-hq/daily-digest/pkg/httpclient"
)

type mockResponse struct {
	body       []byte
	statusCode int
}

func (r mockResponse) Body() []byte        { return r.body }
func (r mockResponse) StatusCode() int     { return r.statusCode }
func (r mockResponse) Header() http.Header { return http.Header{} }

type route struct {
	status int
	body   string
	err    error
}

// routeClient answers by the longest registered URL prefix and records every call.
type routeClient struct {
	t      *testing.T
	routes map[string]route

	mu      sync.Mutex
	calls   []string
	headers []map[string]string
}

func newRouteClient(t *testing.T, routes map[string]route) *routeClient {
	return &routeClient{t: t, routes: routes}
}

func (c *routeClient) Get(_ context.Context, url string, headers map[string]string) (httpclient.Response, error) {
	c.mu.Lock()
	c.calls = append(c.calls, url)
	c.headers = append(c.headers, headers)
	c.mu.Unlock()

	best := ""
	for prefix := range c.routes {
		if strings.HasPrefix(url, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return nil, errors.New("no route for " + url)
	}
	r := c.routes[best]
	if r.err != nil {
		return nil, r.err
	}
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return mockResponse{body: []byte(r.body), statusCode: status}, nil
}

func (c *routeClient) callsWithPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, u := range c.calls {
		if strings.HasPrefix(u, prefix) {
			n++
		}
	}
	return n
}
