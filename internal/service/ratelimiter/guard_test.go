package ratelimiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verihuman/verihuman-api/internal/domain"
)

type fixedLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (f *fixedLimiter) Allow(_ context.Context, key string, _ int64) (bool, time.Duration, error) {
	f.keys = append(f.keys, key)
	return f.allowed, time.Second, f.err
}

type okDetector struct{ calls int }

func (d *okDetector) Detect(_ context.Context, doc string) (domain.DetectionResult, error) {
	d.calls++
	return domain.DetectionResult{Document: doc}, nil
}

type okHumanizer struct{}

func (okHumanizer) Humanize(_ context.Context, text string) (domain.HumanizerResponse, error) {
	return domain.HumanizerResponse{StatusCode: 200, Text: text + "!"}, nil
}

type okChat struct{}

func (okChat) Complete(_ context.Context, _, prompt string, _ int) (domain.ChatPayload, error) {
	return domain.ChatPayload{Kind: domain.ReplySuccess, Text: prompt}, nil
}

func TestDetector_DeniedReturnsRateLimit(t *testing.T) {
	next := &okDetector{}
	lim := &fixedLimiter{allowed: false}
	_, err := Detector{Next: next, Limiter: lim}.Detect(context.Background(), "doc")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
	var qe *QuotaError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, KeyDetector, qe.Key)
	assert.Equal(t, 0, next.calls)
}

func TestDetector_AllowedPassesThrough(t *testing.T) {
	next := &okDetector{}
	res, err := Detector{Next: next, Limiter: &fixedLimiter{allowed: true}}.Detect(context.Background(), "doc")
	require.NoError(t, err)
	assert.Equal(t, "doc", res.Document)
	assert.Equal(t, 1, next.calls)
}

func TestGuards_LimiterErrorFailsOpen(t *testing.T) {
	lim := &fixedLimiter{allowed: false, err: errors.New("redis down")}
	resp, err := Humanizer{Next: okHumanizer{}, Limiter: lim}.Humanize(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi!", resp.Text)

	p, err := ChatClient{Next: okChat{}, Limiter: lim}.Complete(context.Background(), "m", "yo", 1)
	require.NoError(t, err)
	assert.Equal(t, "yo", p.Text)
	assert.Equal(t, []string{KeyHumanizer, KeyChat}, lim.keys)
}

func TestHumanizer_DeniedIsError(t *testing.T) {
	_, err := Humanizer{Next: okHumanizer{}, Limiter: &fixedLimiter{}}.Humanize(context.Background(), "hi")
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
}
