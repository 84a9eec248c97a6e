package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/voxmcp/voxmcp/internal/registry"
)

// pingTimeout bounds a single liveness probe; the sweep's patience across
// retries is governed by backoff, not this per-request deadline.
const pingTimeout = 2 * time.Second

// Ping implements registry.PingFunc: a GET /status against entry's claimed
// loopback port, retried with backoff so one dropped packet doesn't reap a
// perfectly live sibling process.
func Ping(ctx context.Context, entry registry.Entry) bool {
	client := &http.Client{Timeout: pingTimeout}
	url := fmt.Sprintf("http://127.0.0.1:%d/status", entry.Port)

	op := func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return false, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false, fmt.Errorf("httpapi: ping %s: status %d", url, resp.StatusCode)
		}
		return true, nil
	}

	ok, err := backoff.Retry(ctx, op, backoff.WithMaxTries(3))
	return err == nil && ok
}

// Injector posts routed wake-word text to a sibling session's /inject
// route over loopback HTTP.
type Injector struct {
	client *http.Client
}

// NewInjector builds an Injector with a short per-call timeout; delivery
// failures are logged by the caller, never retried (a missed nudge isn't
// worth re-opening the capture stream for).
func NewInjector() *Injector {
	return &Injector{client: &http.Client{Timeout: 2 * time.Second}}
}

// Inject implements internal/wakeword.Injector.
func (i *Injector) Inject(ctx context.Context, target registry.Entry, text string) error {
	body, err := json.Marshal(injectRequest{Text: text})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://127.0.0.1:%d/inject", target.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpapi: inject to %s: status %d", url, resp.StatusCode)
	}
	return nil
}
