package nk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxAttempts = 3
	retryDelay  = 1 * time.Second

	userAgent = "OAK-Role-Bot/1.0"
)

// ErrBadResponse means the API answered but the payload was unusable
// (error envelope, non-JSON body, unknown shape). Not worth retrying.
var ErrBadResponse = errors.New("unusable API response")

// Client fetches player snapshots from the Ninja Kiwi open-data API
type Client struct {
	apiBase    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new API client
func NewClient(apiBase string) *Client {
	return &Client{
		apiBase: apiBase,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		// ~10 requests per second keeps the scheduler's sequential loop
		// well under the API's tolerance
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}
}

// The API wraps responses in an envelope and returns HTTP 200 even for
// errors; success must be read from the JSON itself.
type apiEnvelope struct {
	Success *bool           `json:"success"`
	Error   *string         `json:"error"`
	Body    json.RawMessage `json:"body"`
}

// FetchPlayer fetches a player snapshot by OAK. Transient failures are
// retried with linearly increasing backoff (1s, 2s); a definitive API
// error is returned immediately.
func (c *Client) FetchPlayer(ctx context.Context, oak string) (*Player, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * retryDelay
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		player, err := c.fetchOnce(ctx, oak)
		if err == nil {
			return player, nil
		}
		if errors.Is(err, ErrBadResponse) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, oak string) (*Player, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+oak, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return nil, fmt.Errorf("%w: content type %q", ErrBadResponse, mediaType)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return decodePlayer(raw)
}

// decodePlayer handles both the {success, error, body} envelope and a bare
// snapshot returned without the wrapper.
func decodePlayer(raw []byte) (*Player, error) {
	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	if envelope.Success != nil && !*envelope.Success {
		msg := "unknown error"
		if envelope.Error != nil {
			msg = *envelope.Error
		}
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, msg)
	}
	if envelope.Error != nil && *envelope.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, *envelope.Error)
	}

	payload := raw
	if len(envelope.Body) > 0 {
		payload = envelope.Body
	}

	player := &Player{}
	if err := json.Unmarshal(payload, player); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	// A success envelope vouches for its body; a fresh account can look
	// empty. Only bare payloads get the shape check.
	if envelope.Success == nil || !*envelope.Success {
		if player.DisplayName == "" && player.MedalsSinglePlayer == nil && player.Achievements == 0 {
			return nil, fmt.Errorf("%w: unexpected response format", ErrBadResponse)
		}
	}
	return player, nil
}
