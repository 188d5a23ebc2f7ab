package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the external face-verification service. Capture itself
// (camera, QR decode) happens outside this process; the service gets an
// image and answers whether it matches the enrolled user. With skip set,
// every verification passes, for environments without the service.
type Client struct {
	baseURL string
	skip    bool
	http    *http.Client
}

// New creates a capture client.
func New(baseURL string, skip bool) *Client {
	return &Client{
		baseURL: baseURL,
		skip:    skip,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// VerifyResult is the verification outcome.
type VerifyResult struct {
	Matched    bool    `json:"matched"`
	Similarity float64 `json:"similarity"`
}

// Verify submits a base64 image for the given user and returns the
// match outcome.
func (c *Client) Verify(ctx context.Context, userID, imageData string) (*VerifyResult, error) {
	if c.skip {
		return &VerifyResult{Matched: true, Similarity: 1}, nil
	}

	body, err := json.Marshal(map[string]string{"user_id": userID, "image": imageData})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("face service returned %d: %s", resp.StatusCode, raw)
	}

	var out VerifyResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health pings the face service.
func (c *Client) Health(ctx context.Context) error {
	if c.skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
