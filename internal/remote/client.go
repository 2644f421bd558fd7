// Package remote implements the HTTP client for the push and fetch
// endpoints of the imotara record service.
//
// The client applies a request timeout to every call so no operation in the
// sync core can block its caller indefinitely. Transport failures are
// returned as errors for the engine to convert into result values; nothing
// here panics or retries.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/soumenroys/imotara-mobile-sub000/internal/record"
)

// ErrUnexpectedPayload is returned by FetchAll when the fetch endpoint
// responds with something that is not a record list in any known wrapping.
// It is recoverable: the accompanying slice is empty, not nil-crash fodder.
var ErrUnexpectedPayload = errors.New("remote returned an unexpected payload shape")

// DefaultTimeout bounds a single request when the caller configures none.
const DefaultTimeout = 15 * time.Second

// PushAck is the optional acceptance envelope of the push endpoint.
//
// Old deployments return an empty body on success; newer ones report which
// ids they actually stored. When AcceptedIDs is present the engine marks
// only that subset synced.
type PushAck struct {
	AcceptedCount int      `json:"accepted_count"`
	AcceptedIDs   []string `json:"accepted_ids"`
}

// Client talks to the remote record service.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *log.Logger
}

// NewClient creates a client for the service at baseURL.
//
// A non-positive timeout falls back to DefaultTimeout. If logger is nil, a
// default logger writing to stderr is used.
func NewClient(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// PushBatch sends the whole batch in one request to POST /v1/records/batch.
//
// Returns the acceptance envelope when the service provides one; an empty
// ack on a bare 2xx. A non-2xx status is an error.
func (c *Client) PushBatch(ctx context.Context, records []record.Record) (*PushAck, error) {
	body, err := json.Marshal(map[string]any{"records": records})
	if err != nil {
		return nil, fmt.Errorf("failed to encode push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/records/batch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("push rejected: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		// The remote stored the batch; losing the envelope only loses
		// the accepted-id refinement.
		c.logger.Printf("WARNING: failed to read push ack body: %v", err)
		return &PushAck{}, nil
	}

	ack := &PushAck{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, ack); err != nil {
			c.logger.Printf("WARNING: unparseable push ack, treating as bare success: %v", err)
			return &PushAck{}, nil
		}
	}
	return ack, nil
}

// FetchAll retrieves the raw remote record list from GET /v1/records.
//
// The endpoint has returned several shapes over time: a bare list, or a
// list wrapped under "records", "data", or "items". Anything else yields
// an empty slice and ErrUnexpectedPayload.
func (c *Client) FetchAll(ctx context.Context) ([]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/records", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch rejected: %s", resp.Status)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode fetch response: %w", err)
	}

	if list, ok := payload.([]any); ok {
		return list, nil
	}
	if obj, ok := payload.(map[string]any); ok {
		for _, key := range []string{"records", "data", "items"} {
			if list, ok := obj[key].([]any); ok {
				return list, nil
			}
		}
	}
	return []any{}, ErrUnexpectedPayload
}
