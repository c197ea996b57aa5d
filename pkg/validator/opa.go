package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/acgs/agentbus/pkg/message"
)

const defaultOPAPath = "/v1/data/acgs/constitutional/validate"

// OPA delegates constitutional validation to a remote policy-engine
// evaluation; the hash itself is judged by OPA, not checked locally.
// It never allows on failure: a transport error, timeout, non-200
// status or undecodable response comes back as a nil result and a
// plain error, not as a denial result. A deny verdict without a reason
// is returned with the reason "OPA service unavailable".
//
// The distinction between "OPA actively denied" and "OPA could not be
// reached" lets the composite strategy fall through on the latter -
// see Validate.
type OPA struct {
	URL        string
	PolicyPath string
	Timeout    time.Duration
	Client     *http.Client
}

// NewOPA builds an OPA validator pointed at the given base URL.
func NewOPA(url string, timeout time.Duration) *OPA {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OPA{
		URL:        url,
		PolicyPath: defaultOPAPath,
		Timeout:    timeout,
		Client:     &http.Client{Timeout: timeout},
	}
}

func (o *OPA) Name() string { return "opa" }

type opaInput struct {
	ConstitutionalHash string `json:"constitutional_hash"`
	MessageID          string `json:"message_id"`
	TenantID           string `json:"tenant_id,omitempty"`
}

type opaRequest struct {
	Input opaInput `json:"input"`
}

type opaResult struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

type opaResponse struct {
	Result *opaResult `json:"result"`
}

// Validate posts the message to the configured OPA decision path.
//
// A successful round trip (even a DENY verdict) is returned as a final
// ValidationResult with a nil error - that denial is deterministic and
// must not be shadowed by the next composite child. Only when OPA
// itself cannot be reached does Validate return a plain (non-
// deterministic) error, letting the composite strategy fall through to
// the next backend per the spec's "OPA transient failure" case.
func (o *OPA) Validate(ctx context.Context, msg *message.AgentMessage) (*message.ValidationResult, error) {
	if o.URL == "" {
		return nil, fmt.Errorf("validator: opa: no url configured")
	}

	payload, err := json.Marshal(opaRequest{Input: opaInput{
		ConstitutionalHash: msg.ConstitutionalHash,
		MessageID:          msg.MessageID,
		TenantID:           msg.TenantID,
	}})
	if err != nil {
		return nil, fmt.Errorf("validator: opa: marshal input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL+o.PolicyPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("validator: opa: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		// Unreachable/timeout: the composite treats this as transient.
		return nil, fmt.Errorf("validator: opa: unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validator: opa: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("validator: opa: read response: %w", err)
	}

	var decoded opaResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("validator: opa: decode response: %w", err)
	}
	if decoded.Result == nil {
		return nil, fmt.Errorf("validator: opa: empty result")
	}

	if !decoded.Result.Allow {
		reason := decoded.Result.Reason
		if reason == "" {
			reason = "OPA service unavailable"
		}
		return message.Invalid(msg.ConstitutionalHash, reason), nil
	}
	return message.Valid(msg.ConstitutionalHash), nil
}
