package inference

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVocab = []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "the", "pot", "##hole", "on", "main", "road", ".", "cafe"}

func writeVocab(t *testing.T, tokens []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), VocabFile)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(tokens, "\n")+"\n"), 0o644))
	return path
}

func testTokenizer(t *testing.T, tokens []string) *tokenizer {
	t.Helper()
	tok, err := newTokenizer(writeVocab(t, tokens))
	require.NoError(t, err)
	return tok
}

func TestLoadVocab(t *testing.T) {
	tok := testTokenizer(t, testVocab)
	v := tok.vocab
	assert.Equal(t, len(testVocab), v.size())
	assert.Equal(t, int64(0), v.padID)
	assert.Equal(t, int64(1), v.unkID)
	assert.Equal(t, int64(2), v.clsID)
	assert.Equal(t, int64(3), v.sepID)
	assert.False(t, v.cased)
	assert.Equal(t, v.unkID, v.lookup("missing"))
}

func TestLoadVocabMissingSpecial(t *testing.T) {
	_, err := loadVocab(writeVocab(t, []string{"[PAD]", "[UNK]", "hello"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[CLS]")
}

func TestEncode(t *testing.T) {
	tok := testTokenizer(t, testVocab)
	enc := tok.encode("The pothole on Main Road.")

	assert.Equal(t, []int64{2, 4, 5, 6, 7, 8, 9, 10, 3}, enc.ids)
	assert.Equal(t, []int{-1, 0, 1, 1, 2, 3, 4, 5, -1}, enc.wordIdx)
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 1, 1, 1, 1}, enc.mask)
	assert.Len(t, enc.typeIDs, len(enc.ids))

	require.Len(t, enc.words, 6)
	assert.Equal(t, word{text: "main", start: 15, end: 19}, enc.words[3])
	assert.Equal(t, word{text: ".", start: 24, end: 25}, enc.words[5])
}

func TestEncodeEmpty(t *testing.T) {
	tok := testTokenizer(t, testVocab)
	enc := tok.encode("")
	assert.Equal(t, []int64{2, 3}, enc.ids)
	assert.Empty(t, enc.words)
}

func TestEncodeStripsAccentsAndUnknowns(t *testing.T) {
	tok := testTokenizer(t, testVocab)
	enc := tok.encode("café xyz")
	assert.Equal(t, []int64{2, 11, 1, 3}, enc.ids)
}

func TestEncodeTruncates(t *testing.T) {
	tok := testTokenizer(t, testVocab)
	enc := tok.encode(strings.Repeat("road ", 1000))
	assert.Len(t, enc.ids, maxSeqLen)
	assert.Equal(t, int64(3), enc.ids[len(enc.ids)-1])
}

func TestCasedVocabKeepsCase(t *testing.T) {
	tok := testTokenizer(t, append(append([]string{}, testVocab...), "Main"))
	require.True(t, tok.vocab.cased)

	enc := tok.encode("Main")
	assert.Equal(t, []int64{2, 12, 3}, enc.ids)
}

func TestSoftmax(t *testing.T) {
	probs := softmax([]float32{1, 2, 3}, 1)
	var sum float64
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, 2, argmax(probs))
	assert.InDelta(t, 0.665, probs[2], 0.001)

	// A lower temperature sharpens the distribution.
	sharp := softmax([]float32{1, 2, 3}, 0.05)
	assert.Greater(t, sharp[2], probs[2])
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestMeanPool(t *testing.T) {
	hidden := []float32{
		1, 2,
		3, 4,
		100, 100,
	}
	out := meanPool(hidden, []int64{1, 1, 0}, 2)
	assert.Equal(t, []float32{2, 3}, out)
}

func TestRankCandidates(t *testing.T) {
	labels := []string{"pothole", "garbage"}
	vecs := [][]float32{{1, 0}, {0, 1}}

	got := rankCandidates([]float32{0.9, 0.1}, labels, vecs)
	assert.Equal(t, "pothole", got.Label)
	assert.Greater(t, got.Score, 0.99)
	assert.False(t, math.IsNaN(got.Score))
}

func onehot(n, i int, p float64) []float64 {
	out := make([]float64, n)
	rest := (1 - p) / float64(n-1)
	for j := range out {
		out[j] = rest
	}
	out[i] = p
	return out
}

func TestGroupEntities(t *testing.T) {
	tok := testTokenizer(t, testVocab)
	text := "The pothole on Main Road."
	enc := tok.encode(text)
	labels := []string{"O", "B-LOC", "I-LOC"}

	probs := [][]float64{
		onehot(3, 0, 0.9), // [CLS]
		onehot(3, 0, 0.9), // the
		onehot(3, 0, 0.9), // pot
		onehot(3, 1, 0.9), // ##hole is ignored, only first pieces count
		onehot(3, 0, 0.9), // on
		onehot(3, 1, 0.9), // main
		onehot(3, 2, 0.7), // road
		onehot(3, 0, 0.9), // .
		onehot(3, 0, 0.9), // [SEP]
	}

	spans := groupEntities(text, enc, probs, labels)
	require.Len(t, spans, 1)
	assert.Equal(t, "Main Road", spans[0].Text)
	assert.Equal(t, "LOC", spans[0].Tag)
	assert.Equal(t, 15, spans[0].Start)
	assert.Equal(t, 24, spans[0].End)
	assert.InDelta(t, 0.8, spans[0].Score, 1e-9)
}

func TestGroupEntitiesBeginSplitsRuns(t *testing.T) {
	tok := testTokenizer(t, testVocab)
	text := "main road"
	enc := tok.encode(text)
	labels := []string{"O", "B-LOC", "I-ORG"}

	probs := [][]float64{
		onehot(3, 0, 0.9),
		onehot(3, 1, 0.9), // main: B-LOC
		onehot(3, 2, 0.9), // road: I-ORG starts a new span of another type
		onehot(3, 0, 0.9),
	}

	spans := groupEntities(text, enc, probs, labels)
	require.Len(t, spans, 2)
	assert.Equal(t, Span{Text: "main", Tag: "LOC", Score: 0.9, Start: 0, End: 4}, spans[0])
	assert.Equal(t, "road", spans[1].Text)
	assert.Equal(t, "ORG", spans[1].Tag)
}

func TestSplitBIO(t *testing.T) {
	tests := []struct {
		label, prefix, tag string
	}{
		{"O", "", ""},
		{"B-PER", "B", "PER"},
		{"I-LOC", "I", "LOC"},
		{"MISC", "I", "MISC"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			prefix, tag := splitBIO(tt.label)
			assert.Equal(t, tt.prefix, prefix)
			assert.Equal(t, tt.tag, tag)
		})
	}
}

func TestReadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), LabelsFile)
	require.NoError(t, os.WriteFile(path, []byte("negative\n\nneutral\npositive\n"), 0o644))

	labels, err := readLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"negative", "neutral", "positive"}, labels)
}
