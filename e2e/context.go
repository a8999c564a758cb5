package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestContext holds shared state for a scenario: the HTTP client, the last
// response, and identifiers captured along the way.
type TestContext struct {
	BaseURL       string
	WebhookSecret string
	client        *http.Client

	accessToken    string
	userID         string
	releaseIDSeed  string
	releaseID      string
	distributionID string
	batchID        string
	submissionID   string

	lastStatus int
	lastBody   map[string]interface{}
	lastRaw    []byte
}

// NewTestContext reads the target server and credentials from the environment.
// TUNECAST_E2E_URL must point at a running server; TUNECAST_E2E_JWT_KEY and
// TUNECAST_E2E_WEBHOOK_SECRET must match that server's configuration.
func NewTestContext() (*TestContext, error) {
	baseURL := os.Getenv("TUNECAST_E2E_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("TUNECAST_E2E_URL is not set")
	}
	jwtKey := os.Getenv("TUNECAST_E2E_JWT_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("TUNECAST_E2E_JWT_KEY is not set")
	}

	// The server seeds a release owned by TUNECAST_E2E_USER_ID; acting as
	// that user lets scenarios submit TUNECAST_E2E_RELEASE_ID.
	userID := os.Getenv("TUNECAST_E2E_USER_ID")
	if userID == "" {
		userID = uuid.NewString()
	}
	tc := &TestContext{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		WebhookSecret: os.Getenv("TUNECAST_E2E_WEBHOOK_SECRET"),
		client:        &http.Client{Timeout: 10 * time.Second},
		userID:        userID,
		releaseIDSeed: os.Getenv("TUNECAST_E2E_RELEASE_ID"),
	}
	token, err := tc.mintToken(jwtKey)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	tc.accessToken = token
	return tc, nil
}

// Reset clears per-scenario state while keeping the session token.
func (tc *TestContext) Reset() {
	tc.releaseID = tc.releaseIDSeed
	tc.distributionID = ""
	tc.batchID = ""
	tc.submissionID = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastRaw = nil
}

func (tc *TestContext) mintToken(signingKey string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": tc.userID,
		"iss":     "tunecast",
		"iat":     jwt.NewNumericDate(time.Now()),
		"exp":     jwt.NewNumericDate(time.Now().Add(time.Hour)),
		"jti":     uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(signingKey))
}

// POST sends a JSON body with the session's bearer token.
func (tc *TestContext) POST(path string, body interface{}) error {
	return tc.do(http.MethodPost, path, body, map[string]string{
		"Authorization": "Bearer " + tc.accessToken,
	})
}

// POSTRaw sends pre-encoded bytes with explicit headers and no bearer token.
func (tc *TestContext) POSTRaw(path string, payload []byte, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodPost, tc.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.send(req)
}

// GET performs a GET with the session's bearer token plus any extra headers.
func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tc.accessToken)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.send(req)
}

func (tc *TestContext) do(method, path string, body interface{}, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.send(req)
}

func (tc *TestContext) send(req *http.Request) error {
	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastStatus = resp.StatusCode
	tc.lastRaw = raw
	tc.lastBody = nil
	if len(raw) > 0 {
		var parsed map[string]interface{}
		if err := json.Unmarshal(raw, &parsed); err == nil {
			tc.lastBody = parsed
		}
	}
	return nil
}

// LastStatus returns the status code of the most recent response.
func (tc *TestContext) LastStatus() int { return tc.lastStatus }

// GetResponseField resolves a dotted path into the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	if tc.lastBody == nil {
		return nil, fmt.Errorf("last response was not a JSON object: %s", string(tc.lastRaw))
	}
	var current interface{} = tc.lastBody
	for _, part := range strings.Split(field, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, part)
		}
		current, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q not present in response: %s", field, string(tc.lastRaw))
		}
	}
	return current, nil
}

func (tc *TestContext) GetReleaseID() string          { return tc.releaseID }
func (tc *TestContext) SetReleaseID(id string)        { tc.releaseID = id }
func (tc *TestContext) GetDistributionID() string     { return tc.distributionID }
func (tc *TestContext) SetDistributionID(id string)   { tc.distributionID = id }
func (tc *TestContext) GetBatchID() string            { return tc.batchID }
func (tc *TestContext) SetBatchID(id string)          { tc.batchID = id }
func (tc *TestContext) GetSubmissionID() string       { return tc.submissionID }
func (tc *TestContext) SetSubmissionID(id string)     { tc.submissionID = id }
func (tc *TestContext) GetWebhookSecret() string      { return tc.WebhookSecret }
