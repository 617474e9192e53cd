// Package janitor best-effort reports unhandled run failures to an
// optional external endpoint, without ever masking the original error.
package janitor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"feedbot/internal/infra/logger"
)

// Report is the failure summary posted to the janitor endpoint.
type Report struct {
	App       string `json:"app"`
	Error     string `json:"error"`
	Stack     string `json:"stack,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Notifier posts Reports to a configured endpoint. A zero-value Notifier
// (empty Endpoint) is a no-op, so callers can construct one unconditionally
// and let Notify decide whether there's anywhere to send to.
type Notifier struct {
	Endpoint string
	Client   *http.Client
}

// New creates a Notifier targeting endpoint. An empty endpoint disables
// reporting entirely.
func New(endpoint string) *Notifier {
	return &Notifier{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts r to the janitor endpoint. Failure to reach the endpoint is
// logged and swallowed: this must never propagate as an error from the
// orchestrator's own failure-handling path, or it would replace the
// original error it's trying to report.
func (n *Notifier) Notify(ctx context.Context, app string, cause error, stack string) {
	if n == nil || n.Endpoint == "" || cause == nil {
		return
	}

	body, err := json.Marshal(Report{
		App:       app,
		Error:     cause.Error(),
		Stack:     stack,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		logger.Warnf("janitor: failed to encode report: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, bytes.NewReader(body))
	if err != nil {
		logger.Warnf("janitor: failed to build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		logger.Warnf("janitor: failed to reach %s: %v", n.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.Warnf("janitor: endpoint %s returned status %d", n.Endpoint, resp.StatusCode)
	}
}
