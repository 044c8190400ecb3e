// Package humanizer is the HumanizerPro HTTP client behind domain.Humanizer.
package humanizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/verihuman/verihuman-api/internal/adapter/observability"
	"github.com/verihuman/verihuman-api/internal/domain"
	obsctx "github.com/verihuman/verihuman-api/internal/observability"
)

const provider = "humanizerpro"

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 4 << 20

var errServerStatus = errors.New("humanizer server error")

// Client posts text to the HumanizerPro API.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	breaker    *observability.CircuitBreaker
}

// New builds a client. breaker may be nil.
func New(url, apiKey string, timeout time.Duration, breaker *observability.CircuitBreaker) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("Humanizer %s %s", r.Method, r.URL.Host)
		}),
	)
	return &Client{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		breaker:    breaker,
	}
}

// Humanize sends one request. Any completed exchange is returned with a nil
// error whatever its status; connection failures, timeouts, an open circuit
// and bodies that are not a JSON object come back as errors.
func (c *Client) Humanize(ctx context.Context, text string) (domain.HumanizerResponse, error) {
	var out domain.HumanizerResponse
	call := func() error {
		resp, err := c.do(ctx, text)
		out = resp
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return errServerStatus
		}
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Call(call)
	} else {
		err = call()
	}
	switch {
	case err == nil, errors.Is(err, errServerStatus):
		return out, nil
	case errors.Is(err, observability.ErrCircuitOpen):
		observability.ObserveUpstream(provider, "humanize", "circuit_open", 0)
		return domain.HumanizerResponse{}, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	default:
		return domain.HumanizerResponse{}, err
	}
}

func (c *Client) do(ctx context.Context, text string) (domain.HumanizerResponse, error) {
	lg := obsctx.LoggerFromContext(ctx)
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return domain.HumanizerResponse{}, fmt.Errorf("op=humanizer.marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.HumanizerResponse{}, fmt.Errorf("op=humanizer.request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			outcome = "timeout"
			err = fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
		} else {
			err = fmt.Errorf("%w: %v", domain.ErrUpstream, err)
		}
		observability.ObserveUpstream(provider, "humanize", outcome, time.Since(start))
		lg.Warn("humanizer request failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return domain.HumanizerResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	observability.ObserveUpstream(provider, "humanize", statusOutcome(resp.StatusCode), time.Since(start))
	if err != nil {
		return domain.HumanizerResponse{}, fmt.Errorf("%w: read body: %v", domain.ErrUpstream, err)
	}
	humanized, err := parseHumanizedText(raw)
	if err != nil {
		lg.Warn("humanizer response unparsable", "status", resp.StatusCode, "error", err)
		return domain.HumanizerResponse{}, err
	}
	lg.Debug("humanizer responded", "status", resp.StatusCode, "text_len", len(humanized))
	return domain.HumanizerResponse{StatusCode: resp.StatusCode, Text: humanized}, nil
}

// parseHumanizedText extracts humanized_text from a JSON object body. A missing
// or null field yields "", a body that is not an object or a field that is not
// a string is malformed.
func parseHumanizedText(raw []byte) (string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return "", fmt.Errorf("%w: body is not a JSON object", domain.ErrUpstreamMalformed)
	}
	field, ok := obj["humanized_text"]
	if !ok || string(field) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(field, &s); err != nil {
		return "", fmt.Errorf("%w: humanized_text is not a string", domain.ErrUpstreamMalformed)
	}
	return s, nil
}

func statusOutcome(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "ok"
	case code >= 500:
		return "5xx"
	default:
		return "4xx"
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
