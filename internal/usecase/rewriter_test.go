package usecase

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// firstChooser always picks the first option.
type firstChooser struct{}

func (firstChooser) Choose(options []string) string { return options[0] }

// cyclingChooser walks the options in order, one step per call.
type cyclingChooser struct{ n int }

func (c *cyclingChooser) Choose(options []string) string {
	s := options[c.n%len(options)]
	c.n++
	return s
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p+" ") {
			return true
		}
	}
	return false
}

func TestLocalRewriter_NoSentences(t *testing.T) {
	r := NewLocalRewriter(nil)
	for _, in := range []string{"", "   ", "...", " . . "} {
		assert.Equal(t, in, r.Rewrite(in))
	}
}

func TestLocalRewriter_SingleSentence_Deterministic(t *testing.T) {
	r := NewLocalRewriter(firstChooser{})
	got := r.Rewrite("One Sentence Only")
	assert.Equal(t, "In simple terms, one sentence only. As a result, it feels more natural, balanced, and easier to understand.", got)
}

func TestLocalRewriter_SingleSentence_Random(t *testing.T) {
	r := NewLocalRewriter(nil)
	for i := 0; i < 20; i++ {
		got := r.Rewrite("One sentence only")
		assert.True(t, hasAnyPrefix(got, StarterPhrases), "unexpected prefix: %q", got)
		assert.Contains(t, got, "it feels more natural, balanced, and easier to understand.")
		assert.Contains(t, got, " one sentence only. ")
	}
}

func TestLocalRewriter_TextWithoutPeriodIsExpanded(t *testing.T) {
	got := NewLocalRewriter(firstChooser{}).Rewrite("no punctuation here")
	assert.Equal(t, "In simple terms, no punctuation here. As a result, it feels more natural, balanced, and easier to understand.", got)
}

func TestLocalRewriter_MultiSentence_Structure(t *testing.T) {
	r := NewLocalRewriter(nil)
	for i := 0; i < 20; i++ {
		got := r.Rewrite("First sentence. Second sentence. Third sentence.")
		require.True(t, strings.HasSuffix(got, "."))
		fragments := strings.Split(strings.TrimSuffix(got, "."), ". ")
		require.Len(t, fragments, 3, "got %q", got)
		assert.True(t, hasAnyPrefix(fragments[0], StarterPhrases), fragments[0])
		assert.True(t, strings.HasSuffix(fragments[0], " first sentence"))
		for _, f := range fragments[1:] {
			assert.True(t, hasAnyPrefix(f, ConnectorPhrases), f)
		}
		assert.True(t, strings.HasSuffix(fragments[2], " third sentence"))
	}
}

func TestLocalRewriter_MultiSentence_Exact(t *testing.T) {
	r := NewLocalRewriter(&cyclingChooser{})
	got := r.Rewrite("First Sentence. Second sentence.  Third sentence")
	assert.Equal(t, "In simple terms, first sentence. Because of this, second sentence. Over time, third sentence.", got)
}

func TestLocalRewriter_PhraseBanksAreStable(t *testing.T) {
	assert.Equal(t, []string{
		"In simple terms,",
		"What this really means is that",
		"From a practical point of view,",
		"At its core,",
		"In everyday use,",
	}, StarterPhrases)
	assert.Equal(t, []string{
		"As a result,",
		"Because of this,",
		"Over time,",
		"This helps ensure that",
		"Which ultimately means",
	}, ConnectorPhrases)
}

func TestLocalRewriter_ConcurrentUse(t *testing.T) {
	r := NewLocalRewriter(nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if r.Rewrite("Alpha. Beta.") == "" {
					t.Error("empty rewrite")
				}
			}
		}()
	}
	wg.Wait()
}

func TestLocalRewriter_ZeroValueUsesRandom(t *testing.T) {
	var r LocalRewriter
	got := r.Rewrite("Alpha. Beta.")
	assert.True(t, hasAnyPrefix(got, StarterPhrases), got)
}
