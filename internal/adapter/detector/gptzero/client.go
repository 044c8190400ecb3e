// Package gptzero implements domain.Detector against the GPTZero predict API.
package gptzero

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/verihuman/verihuman-api/internal/adapter/observability"
	"github.com/verihuman/verihuman-api/internal/config"
	"github.com/verihuman/verihuman-api/internal/domain"
	obsctx "github.com/verihuman/verihuman-api/internal/observability"
)

const provider = "gptzero"

const maxResponseBytes = 8 << 20

// Client calls GPTZero and normalizes its response.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	breaker    *observability.CircuitBreaker

	maxElapsed      time.Duration
	initialInterval time.Duration
	maxInterval     time.Duration
}

// New builds a client from configuration. breaker may be nil.
func New(cfg config.Config, breaker *observability.CircuitBreaker) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("GPTZero %s %s", r.Method, r.URL.Host)
		}),
	)
	maxElapsed, initial, maxInterval := cfg.GetDetectBackoffConfig()
	return &Client{
		url:             cfg.GPTZeroURL,
		apiKey:          cfg.GPTZeroAPIKey,
		httpClient:      &http.Client{Timeout: cfg.GPTZeroTimeout, Transport: transport},
		breaker:         breaker,
		maxElapsed:      maxElapsed,
		initialInterval: initial,
		maxInterval:     maxInterval,
	}
}

func (c *Client) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = c.maxElapsed
	expo.InitialInterval = c.initialInterval
	expo.MaxInterval = c.maxInterval
	return expo
}

type predictRequest struct {
	Document string   `json:"document"`
	Detailed bool     `json:"detailed"`
	Include  []string `json:"include"`
}

type predictResponse struct {
	Documents []document `json:"documents"`
}

type document struct {
	DocumentClassification *string            `json:"document_classification"`
	ClassProbabilities     map[string]float64 `json:"class_probabilities"`
	ResultMessage          string             `json:"result_message"`
	ConfidenceScore        *float64           `json:"confidence_score"`
	Sentences              []sentence         `json:"sentences"`
	OverallBurstiness      *float64           `json:"overall_burstiness"`
	WritingStats           map[string]any     `json:"writing_stats"`
	Subclass               map[string]any     `json:"subclass"`
}

type sentence struct {
	Sentence               string             `json:"sentence"`
	GeneratedProb          float64            `json:"generated_prob"`
	ClassProbabilities     map[string]float64 `json:"class_probabilities"`
	HighlightSentenceForAI bool               `json:"highlight_sentence_for_ai"`
}

// Detect classifies document. Rate limits, 5xx responses and transport errors
// are retried with exponential backoff; other 4xx statuses fail immediately.
func (c *Client) Detect(ctx context.Context, doc string) (domain.DetectionResult, error) {
	lg := obsctx.LoggerFromContext(ctx)
	body, err := json.Marshal(predictRequest{
		Document: doc,
		Detailed: true,
		Include:  []string{"class_probabilities", "sentences", "writing_stats", "subclass"},
	})
	if err != nil {
		return domain.DetectionResult{}, fmt.Errorf("op=gptzero.marshal: %w", err)
	}

	var (
		out predictResponse
		// rejected holds a 4xx outcome. It ends the call without counting as an
		// upstream failure, so bad documents cannot open the breaker.
		rejected error
	)
	op := func() error {
		rejected = nil
		start := time.Now()
		// body is re-read on every attempt
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			observability.ObserveUpstream(provider, "detect", "error", time.Since(start))
			lg.Warn("gptzero request failed", "error", err)
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err))
			}
			if isTimeout(err) {
				return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
			}
			return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
		}
		defer func() { _ = resp.Body.Close() }()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		observability.ObserveUpstream(provider, "detect", strconv.Itoa(resp.StatusCode/100)+"xx", time.Since(start))
		if err != nil {
			return fmt.Errorf("%w: read body: %v", domain.ErrUpstream, err)
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lg.Warn("gptzero rate limited", "status", resp.StatusCode)
			return fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
		case resp.StatusCode >= 500:
			lg.Warn("gptzero server error", "status", resp.StatusCode, "body", snippet(raw))
			return fmt.Errorf("%w: status %d", domain.ErrUpstream, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			lg.Error("gptzero rejected request", "status", resp.StatusCode, "body", snippet(raw))
			rejected = fmt.Errorf("%w: status %d", domain.ErrUpstream, resp.StatusCode)
			return nil
		}
		out = predictResponse{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamMalformed, err))
		}
		return nil
	}

	retry := func() error {
		return backoff.Retry(op, backoff.WithContext(c.getBackoffConfig(), ctx))
	}
	if c.breaker != nil {
		err = c.breaker.Call(retry)
	} else {
		err = retry()
	}
	if err != nil {
		if errors.Is(err, observability.ErrCircuitOpen) {
			return domain.DetectionResult{}, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
		return domain.DetectionResult{}, fmt.Errorf("op=gptzero.detect: %w", err)
	}
	if rejected != nil {
		return domain.DetectionResult{}, fmt.Errorf("op=gptzero.detect: %w", rejected)
	}
	if len(out.Documents) == 0 {
		return domain.DetectionResult{}, fmt.Errorf("%w: no documents in GPTZero response", domain.ErrUpstreamMalformed)
	}
	return normalize(doc, out.Documents[0]), nil
}

func normalize(text string, d document) domain.DetectionResult {
	classification := "UNKNOWN"
	if d.DocumentClassification != nil {
		classification = *d.DocumentClassification
	}
	explanation := d.ResultMessage
	if explanation == "" {
		explanation = "No explanation provided."
	}
	if d.ConfidenceScore != nil {
		pct := math.Round(*d.ConfidenceScore*100*100) / 100
		explanation += "\nConfidence Score: " + formatPercent(pct) + "%"
	}

	stats := domain.TextStats{
		TotalSentences: len(d.Sentences),
		Burstiness:     d.OverallBurstiness,
		WritingStats:   d.WritingStats,
		Sentences:      make([]domain.SentenceStats, 0, len(d.Sentences)),
	}
	if stats.WritingStats == nil {
		stats.WritingStats = map[string]any{}
	}
	for _, s := range d.Sentences {
		if s.HighlightSentenceForAI {
			stats.HighlightedAsAI++
		}
		probs := s.ClassProbabilities
		if probs == nil {
			probs = map[string]float64{}
		}
		stats.Sentences = append(stats.Sentences, domain.SentenceStats{
			Sentence:           s.Sentence,
			GeneratedProb:      s.GeneratedProb,
			ClassProbabilities: probs,
			Highlighted:        s.HighlightSentenceForAI,
		})
	}

	probs := d.ClassProbabilities
	if probs == nil {
		probs = map[string]float64{}
	}
	return domain.DetectionResult{
		Document:               text,
		DocumentClassification: classification,
		ClassProbabilities:     probs,
		Explanation:            explanation,
		TextStats:              stats,
		Subclass:               d.Subclass,
	}
}

// formatPercent prints the shortest decimal form, keeping one fractional digit
// for whole numbers (90 -> "90.0").
func formatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func snippet(b []byte) string {
	if len(b) > 512 {
		b = b[:512]
	}
	return string(b)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
