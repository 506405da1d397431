package misskey

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const DefaultPageLimit = 20

// Client talks to one Misskey-compatible server on behalf of one account.
// The zero value is not valid for use.
type Client struct {
	origin    string
	token     string
	http      *http.Client
	limiter   *rate.Limiter
	pageLimit int
	userAgent string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(v *Client) { v.http = client }
}

// WithTimeout bounds every REST call, zero keeps the transport defaults.
func WithTimeout(timeout time.Duration) Option {
	return func(v *Client) {
		if timeout > 0 {
			v.http = &http.Client{Timeout: timeout, Transport: v.http.Transport}
		}
	}
}

func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(v *Client) { v.limiter = rate.NewLimiter(limit, burst) }
}

func WithPageLimit(limit int) Option {
	return func(v *Client) {
		if limit > 0 {
			v.pageLimit = limit
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(v *Client) { v.userAgent = ua }
}

func NewClient(origin, token string, opts ...Option) *Client {
	client := &Client{
		origin:    models.NormalizeOrigin(origin),
		token:     token,
		http:      &http.Client{},
		limiter:   rate.NewLimiter(rate.Inf, 1),
		pageLimit: DefaultPageLimit,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (v *Client) Origin() string {
	return v.origin
}

// Request posts params to {origin}/api/{endpoint} with the access token attached
// and decodes the response into out when out is not nil.
func (v *Client) Request(ctx context.Context, endpoint string, params map[string]any, out any) error {
	payload := make(map[string]any, len(params)+1)
	for k, val := range params {
		payload[k] = val
	}
	if len(v.token) > 0 {
		payload["i"] = v.token
	}
	body, err := jsoniter.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %v", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.apiURL(endpoint), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return v.do(req, endpoint, out)
}

func (v *Client) apiURL(endpoint string) string {
	return fmt.Sprintf("%s/api/%s", v.origin, endpoint)
}

func (v *Client) do(req *http.Request, endpoint string, out any) error {
	if err := v.limiter.Wait(req.Context()); err != nil {
		return err
	}
	if len(v.userAgent) > 0 {
		req.Header.Set("User-Agent", v.userAgent)
	}

	start := time.Now()
	resp, err := v.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: failed to request %s on %s: %v", ErrNetwork, endpoint, v.origin, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read %s response: %v", ErrNetwork, endpoint, err)
	}

	log.Debug().
		Str("origin", v.origin).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Requested misskey api...")

	if resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := jsoniter.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %v", endpoint, err)
	}
	return nil
}
