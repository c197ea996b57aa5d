// Package audit implements the fire-and-forget Audit Client: every
// terminal Process call results in exactly one decision-log send
// attempt, and a failure there must never affect the serving path.
package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/acgs/agentbus/pkg/message"
)

// Response is the ledger's acknowledgement.
type Response struct {
	EntryHash string `json:"entry_hash"`
}

// Client posts decision logs to the audit ledger service.
type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewClient builds an audit client against the ledger's base URL.
// An empty url is valid: Report degrades to the simulated-hash
// fallback for every call, which is useful for local/dev runs with no
// ledger configured.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "audit_client"),
	}
}

// Report serialises entry to JSON and POSTs it to {url}/record. Errors
// are logged and swallowed: the caller always gets a correlation hash
// back, real or simulated, and never an error that could affect the
// serving path.
func (c *Client) Report(ctx context.Context, entry *message.DecisionLog) string {
	payload, err := json.Marshal(entry)
	if err != nil {
		c.logger.WarnContext(ctx, "audit: marshal failed, using simulated hash", "error", err)
		return simulatedHash(entry)
	}

	if c.url == "" {
		return simulatedHash(entry)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/record", bytes.NewReader(payload))
	if err != nil {
		c.logger.WarnContext(ctx, "audit: build request failed", "error", err)
		return simulatedHash(entry)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "audit: ledger unreachable, using simulated hash", "error", err)
		return simulatedHash(entry)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.WarnContext(ctx, "audit: ledger returned non-200", "status", resp.StatusCode)
		return simulatedHash(entry)
	}

	var decoded Response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil || decoded.EntryHash == "" {
		c.logger.WarnContext(ctx, "audit: decode response failed, using simulated hash", "error", err)
		return simulatedHash(entry)
	}
	return decoded.EntryHash
}

// simulatedHash deterministically derives a correlation hash from the
// entry's trace id, agent id and timestamp so callers keep a stable id even when
// the ledger service cannot be reached.
func simulatedHash(entry *message.DecisionLog) string {
	if entry == nil {
		return "sha256:simulated:empty"
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", entry.TraceID, entry.AgentID, entry.Timestamp)))
	return "sha256:simulated:" + hex.EncodeToString(sum[:])
}
