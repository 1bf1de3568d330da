package inference

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Model directories hold these files.
const (
	ModelFile  = "model.onnx"
	VocabFile  = "vocab.txt"
	LabelsFile = "labels.txt"
)

// Prediction is the top label of a classification with its probability.
type Prediction struct {
	Label string
	Score float64
}

// Span is a named entity found by a token classifier.
type Span struct {
	Text       string
	Tag        string
	Score      float64
	Start, End int
}

func loadModelDir(dir string) (*session, *tokenizer, error) {
	sess, err := newSession(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, nil, err
	}
	tok, err := newTokenizer(filepath.Join(dir, VocabFile))
	if err != nil {
		sess.close()
		return nil, nil, err
	}
	return sess, tok, nil
}

// readLabels reads one label per line, skipping blanks.
func readLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	defer f.Close()

	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			labels = append(labels, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels: %s is empty", path)
	}
	return labels, nil
}

// SequenceClassifier is a text classification head (one logit per label).
type SequenceClassifier struct {
	sess   *session
	tok    *tokenizer
	labels []string
}

// LoadSequenceClassifier loads model.onnx, vocab.txt and labels.txt from dir.
func LoadSequenceClassifier(dir string) (*SequenceClassifier, error) {
	labels, err := readLabels(filepath.Join(dir, LabelsFile))
	if err != nil {
		return nil, err
	}
	sess, tok, err := loadModelDir(dir)
	if err != nil {
		return nil, err
	}
	if sess.perToken() || sess.features() != int64(len(labels)) {
		sess.close()
		return nil, fmt.Errorf("sequence classifier: output %v does not match %d labels", sess.outDims, len(labels))
	}
	return &SequenceClassifier{sess: sess, tok: tok, labels: labels}, nil
}

// Classify returns the most probable label.
func (c *SequenceClassifier) Classify(text string) (Prediction, error) {
	logits, err := c.sess.infer(c.tok.encode(text))
	if err != nil {
		return Prediction{}, err
	}
	probs := softmax(logits, 1)
	best := argmax(probs)
	return Prediction{Label: c.labels[best], Score: probs[best]}, nil
}

// Close releases the ONNX session.
func (c *SequenceClassifier) Close() error { return c.sess.close() }

// ZeroShotTemperature sharpens the similarity distribution over candidates.
const ZeroShotTemperature = 0.05

const hypothesisTemplate = "This complaint is about %s."

// ZeroShotClassifier picks the candidate label whose embedding is closest to
// the text embedding.
type ZeroShotClassifier struct {
	sess      *session
	tok       *tokenizer
	labels    []string
	labelVecs [][]float32
}

// LoadZeroShot loads a sentence-embedding encoder from dir (model.onnx and
// vocab.txt) and embeds every candidate label once.
func LoadZeroShot(dir string, labels []string) (*ZeroShotClassifier, error) {
	if len(labels) == 0 {
		return nil, errors.New("zero-shot: no candidate labels")
	}
	sess, tok, err := loadModelDir(dir)
	if err != nil {
		return nil, err
	}
	if !sess.perToken() {
		sess.close()
		return nil, fmt.Errorf("zero-shot: expected per-token hidden states, got %v", sess.outDims)
	}

	z := &ZeroShotClassifier{sess: sess, tok: tok, labels: labels}
	for _, l := range labels {
		vec, err := z.embed(fmt.Sprintf(hypothesisTemplate, l))
		if err != nil {
			sess.close()
			return nil, fmt.Errorf("zero-shot: embed label %q: %w", l, err)
		}
		z.labelVecs = append(z.labelVecs, vec)
	}
	return z, nil
}

func (z *ZeroShotClassifier) embed(text string) ([]float32, error) {
	enc := z.tok.encode(text)
	hidden, err := z.sess.infer(enc)
	if err != nil {
		return nil, err
	}
	return meanPool(hidden, enc.mask, z.sess.features()), nil
}

// Classify returns the best candidate and its softmax probability.
func (z *ZeroShotClassifier) Classify(text string) (Prediction, error) {
	vec, err := z.embed(text)
	if err != nil {
		return Prediction{}, err
	}
	return rankCandidates(vec, z.labels, z.labelVecs), nil
}

func rankCandidates(vec []float32, labels []string, labelVecs [][]float32) Prediction {
	sims := make([]float32, len(labelVecs))
	for i, lv := range labelVecs {
		sims[i] = cosine(vec, lv)
	}
	probs := softmax(sims, ZeroShotTemperature)
	best := argmax(probs)
	return Prediction{Label: labels[best], Score: probs[best]}
}

// Close releases the ONNX session.
func (z *ZeroShotClassifier) Close() error { return z.sess.close() }

// TokenClassifier tags tokens with BIO entity labels.
type TokenClassifier struct {
	sess   *session
	tok    *tokenizer
	labels []string
}

// LoadTokenClassifier loads model.onnx, vocab.txt and labels.txt (BIO tags
// such as O, B-PER, I-PER) from dir.
func LoadTokenClassifier(dir string) (*TokenClassifier, error) {
	labels, err := readLabels(filepath.Join(dir, LabelsFile))
	if err != nil {
		return nil, err
	}
	sess, tok, err := loadModelDir(dir)
	if err != nil {
		return nil, err
	}
	if !sess.perToken() || sess.features() != int64(len(labels)) {
		sess.close()
		return nil, fmt.Errorf("token classifier: output %v does not match %d labels", sess.outDims, len(labels))
	}
	return &TokenClassifier{sess: sess, tok: tok, labels: labels}, nil
}

// Extract returns entity spans in text order.
func (c *TokenClassifier) Extract(text string) ([]Span, error) {
	enc := c.tok.encode(text)
	logits, err := c.sess.infer(enc)
	if err != nil {
		return nil, err
	}

	n := int64(len(c.labels))
	probs := make([][]float64, len(enc.ids))
	for p := range enc.ids {
		probs[p] = softmax(logits[int64(p)*n:int64(p+1)*n], 1)
	}
	return groupEntities(text, enc, probs, c.labels), nil
}

// Close releases the ONNX session.
func (c *TokenClassifier) Close() error { return c.sess.close() }

// groupEntities tags each word with the prediction of its first word piece
// and merges B-/I- runs of the same type into spans.
func groupEntities(text string, enc encoding, probs [][]float64, labels []string) []Span {
	spans := []Span{}
	var cur *Span
	var curWords int

	closeSpan := func() {
		if cur != nil {
			cur.Score /= float64(curWords)
			cur.Text = text[cur.Start:cur.End]
			spans = append(spans, *cur)
			cur = nil
		}
	}

	prevWord := -1
	for p, wi := range enc.wordIdx {
		if wi < 0 || wi == prevWord {
			continue
		}
		prevWord = wi

		best := argmax(probs[p])
		prefix, tag := splitBIO(labels[best])
		w := enc.words[wi]

		switch {
		case tag == "":
			closeSpan()
		case cur != nil && prefix != "B" && cur.Tag == tag:
			cur.End = w.end
			cur.Score += probs[p][best]
			curWords++
		default:
			closeSpan()
			cur = &Span{Tag: tag, Start: w.start, End: w.end, Score: probs[p][best]}
			curWords = 1
		}
	}
	closeSpan()
	return spans
}

// splitBIO splits "B-PER" into ("B", "PER"). "O" yields an empty tag; a label
// without a prefix is treated as a continuation.
func splitBIO(label string) (prefix, tag string) {
	if label == "O" {
		return "", ""
	}
	if len(label) > 2 && label[1] == '-' && (label[0] == 'B' || label[0] == 'I') {
		return label[:1], label[2:]
	}
	return "I", label
}
