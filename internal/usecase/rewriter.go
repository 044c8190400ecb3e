package usecase

import (
	"math/rand/v2"
	"strings"

	"github.com/verihuman/verihuman-api/pkg/textx"
)

// Phrase banks used by the local rewriter. The wording is part of the public
// behaviour and must not change.
var (
	StarterPhrases = []string{
		"In simple terms,",
		"What this really means is that",
		"From a practical point of view,",
		"At its core,",
		"In everyday use,",
	}
	ConnectorPhrases = []string{
		"As a result,",
		"Because of this,",
		"Over time,",
		"This helps ensure that",
		"Which ultimately means",
	}
)

const singleSentenceTail = "it feels more natural, balanced, and easier to understand."

// Chooser picks one element of a non-empty slice.
type Chooser interface {
	Choose(options []string) string
}

// RandomChooser draws uniformly from the process-wide generator, which is safe
// for concurrent use.
type RandomChooser struct{}

// Choose returns a uniformly random element of options.
func (RandomChooser) Choose(options []string) string {
	return options[rand.IntN(len(options))]
}

// LocalRewriter expands and softens text without calling any external service.
type LocalRewriter struct {
	Chooser Chooser
}

// NewLocalRewriter returns a rewriter using c, or RandomChooser when c is nil.
func NewLocalRewriter(c Chooser) LocalRewriter {
	if c == nil {
		c = RandomChooser{}
	}
	return LocalRewriter{Chooser: c}
}

// Rewrite prefixes every sentence of text with a starter or connector phrase.
// Text without any period-delimited content is returned unchanged.
func (r LocalRewriter) Rewrite(text string) string {
	sentences := textx.SplitSentences(text)
	if len(sentences) == 0 {
		return text
	}
	if len(sentences) == 1 {
		return r.choose(StarterPhrases) + " " + strings.ToLower(sentences[0]) + ". " +
			r.choose(ConnectorPhrases) + " " + singleSentenceTail
	}
	out := make([]string, len(sentences))
	for i, s := range sentences {
		bank := ConnectorPhrases
		if i == 0 {
			bank = StarterPhrases
		}
		out[i] = r.choose(bank) + " " + strings.ToLower(s)
	}
	return textx.JoinSentences(out)
}

func (r LocalRewriter) choose(options []string) string {
	if r.Chooser == nil {
		return RandomChooser{}.Choose(options)
	}
	return r.Chooser.Choose(options)
}
