package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentenceTexts(text string) []string {
	src := []rune(text)
	var out []string
	for _, s := range splitSentences(src, span{0, len(src)}) {
		out = append(out, string(src[s.start:s.end]))
	}
	return out
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "One. Two! Three?", []string{"One. ", "Two! ", "Three?"}},
		{"abbreviation", "Dr. Smith went home. He slept.", []string{"Dr. Smith went home. ", "He slept."}},
		{"latin abbreviation", "Fruit, e.g. apples, is good. Yes.", []string{"Fruit, e.g. apples, is good. ", "Yes."}},
		{"initials", "J. Smith wrote it. Done.", []string{"J. Smith wrote it. ", "Done."}},
		{"single letters", "A. B. C.", []string{"A. ", "B. ", "C."}},
		{"decimal", "Pi is 3.14 today. Ok.", []string{"Pi is 3.14 today. ", "Ok."}},
		{"closing quote", `He said "Stop." Then left.`, []string{`He said "Stop." `, "Then left."}},
		{"ellipsis run", "Wait... What?! Fine.", []string{"Wait... ", "What?! ", "Fine."}},
		{"paragraph break", "No terminator here\n\nNext para", []string{"No terminator here\n\n", "Next para"}},
		{"cjk", "你好。再见。", []string{"你好。", "再见。"}},
		{"lowercase continuation", "See fig. three for details. Ok.", []string{"See fig. three for details. ", "Ok."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sentenceTexts(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, strings.Join(got, ""))
		})
	}
}

func TestSentence_MaxSentences(t *testing.T) {
	cfg := testConfig(StrategySentence, 100, 0)
	cfg.MaxSentences = 2

	chunks := runChunker(t, cfg, "A. B. C.")
	require.Len(t, chunks, 2)
	assert.Equal(t, "A. B.", strings.TrimSpace(chunks[0].Text))
	assert.Equal(t, "C.", chunks[1].Text)
	assert.NotContains(t, chunks[0].Text, "C.")
}

func TestSentence_NeverSplitsSentencesAndRespectsBound(t *testing.T) {
	text := "Short one. This sentence is a little bit longer. Tiny. " +
		"Another sentence that goes on for a while. End."
	chunks := runChunker(t, testConfig(StrategySentence, 50, 0), text)

	sentences := sentenceTexts(text)
	for _, c := range chunks {
		if len([]rune(c.Text)) > 50 {
			assert.Contains(t, sentences, c.Text, "only a single sentence may exceed the bound")
		}
		assert.True(t, strings.HasSuffix(strings.TrimSpace(c.Text), "."), c.Text)
	}
	assert.Equal(t, text, reconstruct(chunks))
}

func TestSentence_OversizedSentenceStandsAlone(t *testing.T) {
	long := "Word " + strings.Repeat("word ", 29) + "end."
	chunks := runChunker(t, testConfig(StrategySentence, 40, 0), "Hi. "+long+" Bye.")
	require.Len(t, chunks, 3)
	assert.Equal(t, long+" ", chunks[1].Text)
}

func TestSentence_OverlapIsWholeSentences(t *testing.T) {
	text := "One is here. Two is here. Three is here. Four is here."
	chunks := runChunker(t, testConfig(StrategySentence, 30, 15), text)

	require.Len(t, chunks, 3)
	assert.Equal(t, "One is here. Two is here. ", chunks[0].Text)
	assert.Equal(t, "Two is here. Three is here. ", chunks[1].Text)
	assert.Equal(t, 13, chunks[1].Overlap)
	assert.Equal(t, "Four is here.", chunks[2].Text)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 30)
	}
	requireOverlapsConsistent(t, chunks)
	assert.Equal(t, text, reconstruct(chunks))
}

func TestSentence_ShortTailKeptWithinChunkSize(t *testing.T) {
	first := "A" + strings.Repeat("a", 56) + ". "
	second := "B" + strings.Repeat("b", 56) + ". "
	text := first + second + "Fin ok."
	cfg := testConfig(StrategySentence, 60, 0)
	cfg.MinChunkSize = 20

	chunks := runChunker(t, cfg, text)
	assert.Equal(t, []string{first, second, "Fin ok."}, texts(chunks))
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 60, "chunk %d", c.Index)
	}
	assert.Equal(t, text, reconstruct(chunks))
}

func TestSentence_ShortSentenceFoldsWhenItFits(t *testing.T) {
	text := "This first sentence is long enough. Ok. The third sentence is also long enough."
	cfg := testConfig(StrategySentence, 45, 0)
	cfg.MinChunkSize = 10
	cfg.MaxSentences = 1

	chunks := runChunker(t, cfg, text)
	require.Len(t, chunks, 2)
	assert.Equal(t, "This first sentence is long enough. Ok. ", chunks[0].Text)
	assert.Equal(t, text, reconstruct(chunks))
}
