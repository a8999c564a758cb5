package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tunecast/internal/distribution"
)

// submitRequest is the wire shape shared by the REST-style platform APIs.
type submitRequest struct {
	ISRC            string            `json:"isrc"`
	ReleaseID       string            `json:"release_id"`
	Territories     []string          `json:"territories"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	IdempotencyKey  string            `json:"idempotency_key"`
	CallbackPath    string            `json:"callback_path"`
	ContentAdvisory string            `json:"content_advisory,omitempty"`
}

type submitResponse struct {
	SubmissionID string `json:"submission_id"`
	Accepted     bool   `json:"accepted"`
	Reason       string `json:"reason,omitempty"`
}

// HTTPAdapter is a REST adapter for platforms exposing a submit/remove API.
// Request shaping differences between platforms live in the config, not in
// separate types.
type HTTPAdapter struct {
	platform distribution.Platform
	baseURL  string
	apiKey   string
	client   *http.Client
}

func NewHTTP(platform distribution.Platform, baseURL, apiKey string, timeout time.Duration) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAdapter{
		platform: platform,
		baseURL:  baseURL,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAdapter) Platform() distribution.Platform { return a.platform }

// Submit delivers the distribution to the platform's intake endpoint. A
// non-2xx status or transport failure is an error; a 2xx with accepted=false
// is a rejection carried in the Result.
func (a *HTTPAdapter) Submit(ctx context.Context, d *distribution.Distribution) (Result, error) {
	payload := submitRequest{
		ISRC:            d.ISRC,
		ReleaseID:       d.ReleaseID.String(),
		Territories:     d.Territories,
		Metadata:        d.DistributionMetadata,
		IdempotencyKey:  d.ID.String(),
		CallbackPath:    "/api/v1/webhooks/" + string(a.platform),
		ContentAdvisory: d.DistributionMetadata["content_advisory"],
	}

	var resp submitResponse
	if err := a.do(ctx, http.MethodPost, "/v1/tracks", payload, &resp); err != nil {
		return Result{}, err
	}
	return Result{SubmissionID: resp.SubmissionID, Accepted: resp.Accepted, Reason: resp.Reason}, nil
}

// Remove asks the platform to take the track down.
func (a *HTTPAdapter) Remove(ctx context.Context, d *distribution.Distribution) error {
	if d.PlatformSubmissionID == "" {
		return fmt.Errorf("%s: distribution %s has no platform submission id", a.platform, d.ID)
	}
	return a.do(ctx, http.MethodDelete, "/v1/tracks/"+d.PlatformSubmissionID, nil, nil)
}

func (a *HTTPAdapter) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", a.platform, err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", a.platform, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", a.platform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: unexpected status %d", a.platform, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", a.platform, err)
	}
	return nil
}
