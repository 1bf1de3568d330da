package inference

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxSeqLen = 256

// word is a basic token with its byte span in the original text.
type word struct {
	text       string
	start, end int
}

// encoding is one tokenized sequence, [CLS] pieces... [SEP], without padding.
type encoding struct {
	ids     []int64
	mask    []int64
	typeIDs []int64
	// wordIdx maps each position to its index in words; -1 for [CLS]/[SEP].
	wordIdx []int
	words   []word
}

// tokenizer performs BERT-style WordPiece tokenization.
type tokenizer struct {
	vocab *vocab
}

func newTokenizer(vocabPath string) (*tokenizer, error) {
	v, err := loadVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	return &tokenizer{vocab: v}, nil
}

// encode tokenizes text, truncating to maxSeqLen positions.
func (t *tokenizer) encode(text string) encoding {
	words := t.basicTokenize(text)

	enc := encoding{words: words}
	enc.ids = append(enc.ids, t.vocab.clsID)
	enc.wordIdx = append(enc.wordIdx, -1)

	limit := maxSeqLen - 1
pieces:
	for wi, w := range words {
		for _, piece := range t.wordpieceToken(w.text) {
			if len(enc.ids) >= limit {
				break pieces
			}
			enc.ids = append(enc.ids, t.vocab.lookup(piece))
			enc.wordIdx = append(enc.wordIdx, wi)
		}
	}

	enc.ids = append(enc.ids, t.vocab.sepID)
	enc.wordIdx = append(enc.wordIdx, -1)

	enc.mask = make([]int64, len(enc.ids))
	for i := range enc.mask {
		enc.mask[i] = 1
	}
	enc.typeIDs = make([]int64, len(enc.ids))
	return enc
}

// basicTokenize applies BERT's BasicTokenizer while tracking byte offsets:
// drop control characters, split on whitespace and punctuation, isolate CJK
// characters, then lowercase and strip accents for uncased vocabularies.
func (t *tokenizer) basicTokenize(text string) []word {
	var words []word
	start := -1

	flush := func(end int) {
		if start >= 0 && end > start {
			words = append(words, word{text: t.normalize(text[start:end]), start: start, end: end})
		}
		start = -1
	}

	for i, r := range text {
		size := len(string(r))
		switch {
		case r == 0 || r == 0xFFFD || isControl(r):
			flush(i)
		case isWhitespace(r):
			flush(i)
		case isPunctuation(r) || isChineseChar(r):
			flush(i)
			words = append(words, word{text: t.normalize(text[i : i+size]), start: i, end: i + size})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	flush(len(text))

	out := words[:0]
	for _, w := range words {
		if w.text != "" {
			out = append(out, w)
		}
	}
	return out
}

func (t *tokenizer) normalize(s string) string {
	if t.vocab.cased {
		return s
	}
	return stripAccents(strings.ToLower(s))
}

// wordpieceToken decomposes a single basic token into WordPiece subwords.
func (t *tokenizer) wordpieceToken(token string) []string {
	runes := []rune(token)
	if len(runes) > 200 {
		return []string{"[UNK]"}
	}

	var subTokens []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if t.vocab.contains(sub) {
				subTokens = append(subTokens, sub)
				found = true
				break
			}
			end--
		}
		if !found {
			return []string{"[UNK]"}
		}
		start = end
	}
	return subTokens
}

// stripAccents removes combining diacritical marks after NFD normalization.
func stripAccents(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFD.String(text) {
		if unicode.In(r, unicode.Mn) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Character classes follow BERT's reference tokenizer.

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isChineseChar(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
