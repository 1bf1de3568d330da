package classify

import (
	"bufio"
	"embed"
	"strings"
	"unicode"
)

//go:embed lexicon/*.txt
var lexiconData embed.FS

// Polarity word lists, loaded once at init.
var (
	negativeWords map[string]struct{}
	positiveWords map[string]struct{}
	negatorWords  map[string]struct{}
)

func init() {
	negativeWords = loadWordSet("lexicon/negative.txt")
	positiveWords = loadWordSet("lexicon/positive.txt")
	negatorWords = loadWordSet("lexicon/negators.txt")
}

// loadWordSet reads an embedded file of words (one per line, # comments).
func loadWordSet(name string) map[string]struct{} {
	set := make(map[string]struct{})
	f, err := lexiconData.Open(name)
	if err != nil {
		return set
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.ToLower(strings.TrimSpace(sc.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[line] = struct{}{}
	}
	return set
}

// words splits text into lowercase words, keeping apostrophes inside words.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// polarityCounts counts negative and positive lexicon hits. A negator flips
// the polarity of the word that follows it.
func polarityCounts(text string) (neg, pos int) {
	negate := false
	for _, w := range words(text) {
		if _, ok := negatorWords[w]; ok {
			negate = true
			continue
		}
		_, isNeg := negativeWords[w]
		_, isPos := positiveWords[w]
		switch {
		case isNeg && !negate, isPos && negate:
			neg++
		case isPos, isNeg:
			pos++
		}
		negate = false
	}
	return neg, pos
}
