// Package domain holds the entities, error taxonomy and ports shared by the
// use cases and adapters.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrNotConfigured     = errors.New("not configured")
	ErrUpstream          = errors.New("upstream error")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrUpstreamMalformed = errors.New("upstream response malformed")
	ErrUnavailable       = errors.New("upstream unavailable")
	ErrInternal          = errors.New("internal error")
)

// Context is an alias so ports read the same across packages.
type Context = context.Context

// RewriteRequest is the input of a humanization call.
type RewriteRequest struct {
	Text string
}

// RewritePath records which branch of the humanization pipeline produced an outcome.
type RewritePath string

const (
	// PathAccept means the external rewrite was returned verbatim.
	PathAccept RewritePath = "accept"
	// PathEnhance means the external response was rejected and rewritten locally.
	PathEnhance RewritePath = "enhance"
	// PathFallback means the external call failed and the input was rewritten locally.
	PathFallback RewritePath = "fallback"
)

// RewriteOutcome is the result of a humanization call.
// HumanizedText is never empty.
type RewriteOutcome struct {
	HumanizedText string
	Path          RewritePath
}

// HumanizerResponse is a completed HTTP exchange with the external humanizer.
// Text is empty when the body carried no usable humanized_text field.
type HumanizerResponse struct {
	StatusCode int
	Text       string
}

// Succeeded reports whether the exchange returned HTTP 200 with a non-empty text.
func (r HumanizerResponse) Succeeded() bool {
	return r.StatusCode == 200 && r.Text != ""
}

// SentenceStats is the per-sentence detection breakdown.
type SentenceStats struct {
	Sentence           string             `json:"sentence"`
	GeneratedProb      float64            `json:"generated_prob"`
	ClassProbabilities map[string]float64 `json:"class_probabilities"`
	Highlighted        bool               `json:"highlighted"`
}

// TextStats aggregates sentence-level detection data.
type TextStats struct {
	TotalSentences  int             `json:"total_sentences"`
	HighlightedAsAI int             `json:"highlighted_as_ai"`
	Burstiness      *float64        `json:"burstiness"`
	WritingStats    map[string]any  `json:"writing_stats"`
	Sentences       []SentenceStats `json:"sentences"`
}

// DetectionResult is the normalized outcome of an AI-text classification.
type DetectionResult struct {
	Document               string             `json:"document"`
	DocumentClassification string             `json:"document_classification"`
	ClassProbabilities     map[string]float64 `json:"class_probabilities"`
	Explanation            string             `json:"explanation"`
	TextStats              TextStats          `json:"text_stats"`
	Subclass               map[string]any     `json:"subclass"`
}

// TokenUsage reports token counts for a chat completion.
type TokenUsage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// ReplyKind tags the shape of an upstream chat payload.
type ReplyKind int

const (
	// ReplyUnrecognized means no text or reason could be extracted.
	ReplyUnrecognized ReplyKind = iota
	// ReplySuccess carries assistant text.
	ReplySuccess
	// ReplyIncomplete carries the reason generation stopped without text.
	ReplyIncomplete
)

// ChatPayload is the tagged variant extracted from an upstream chat response.
type ChatPayload struct {
	Kind   ReplyKind
	Text   string
	Reason string
	Model  string
	Usage  *TokenUsage
}

// ChatReply is what the chat operation returns to callers.
type ChatReply struct {
	Reply string      `json:"reply"`
	Usage *TokenUsage `json:"usage"`
	Model string      `json:"model,omitempty"`
}

// HistoryKind enumerates recorded operations.
type HistoryKind string

const (
	HistoryChat     HistoryKind = "chat"
	HistoryDetect   HistoryKind = "detect"
	HistoryHumanize HistoryKind = "humanize"
)

// Valid reports whether k is a known history kind.
func (k HistoryKind) Valid() bool {
	switch k {
	case HistoryChat, HistoryDetect, HistoryHumanize:
		return true
	}
	return false
}

// HistoryEntry is a recorded operation.
type HistoryEntry struct {
	ID        string      `json:"id"`
	Kind      HistoryKind `json:"kind"`
	Input     string      `json:"input"`
	Output    string      `json:"output"`
	Path      string      `json:"path,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Ports

// Humanizer calls the external humanization service. A nil error means the
// HTTP exchange completed, whatever its status; any transport failure,
// including an unparsable body, is returned as an error.
type Humanizer interface {
	Humanize(ctx Context, text string) (HumanizerResponse, error)
}

// Detector classifies a document as human or AI written.
type Detector interface {
	Detect(ctx Context, document string) (DetectionResult, error)
}

// ChatClient sends a single-turn prompt to the chat provider.
type ChatClient interface {
	Complete(ctx Context, model, prompt string, maxTokens int) (ChatPayload, error)
}

// DetectionCache stores detection results by document.
// Get reports ok=false on a miss.
type DetectionCache interface {
	Get(ctx Context, document string) (DetectionResult, bool, error)
	Set(ctx Context, document string, res DetectionResult) error
}

// HistoryRepository persists recorded operations.
type HistoryRepository interface {
	Create(ctx Context, e HistoryEntry) (string, error)
	List(ctx Context, kind HistoryKind, limit int) ([]HistoryEntry, error)
}
