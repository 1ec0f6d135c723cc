package textproc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// defaultCorrectionThreshold is the minimum Jaro-Winkler similarity for a
// vocabulary term to replace a transcribed word.
const defaultCorrectionThreshold = 0.84

// Vocabulary corrects ASR mis-transcriptions of user-specific terms such as
// project names, jargon, and proper nouns. Matching is phonetic-first: a
// transcribed word is compared against each term's Double Metaphone codes,
// and phonetic candidates are ranked by Jaro-Winkler similarity on the
// spelling. Only ASCII-alphabetic words are considered; CJK text passes
// through untouched since metaphone codes are meaningless for it.
type Vocabulary struct {
	terms     []vocabTerm
	threshold float64
}

type vocabTerm struct {
	word      string
	lower     string
	primary   string
	secondary string
}

// VocabularyOption configures a [Vocabulary].
type VocabularyOption func(*Vocabulary)

// WithCorrectionThreshold overrides the minimum Jaro-Winkler similarity
// required for a correction. Values outside (0, 1] are ignored.
func WithCorrectionThreshold(t float64) VocabularyOption {
	return func(v *Vocabulary) {
		if t > 0 && t <= 1 {
			v.threshold = t
		}
	}
}

// NewVocabulary builds a Vocabulary from a list of terms. Non-ASCII and
// empty terms are skipped.
func NewVocabulary(terms []string, opts ...VocabularyOption) *Vocabulary {
	v := &Vocabulary{threshold: defaultCorrectionThreshold}
	for _, o := range opts {
		o(v)
	}
	for _, w := range terms {
		w = strings.TrimSpace(w)
		if w == "" || !isASCIIWord(w) {
			continue
		}
		primary, secondary := matchr.DoubleMetaphone(w)
		v.terms = append(v.terms, vocabTerm{
			word:      w,
			lower:     strings.ToLower(w),
			primary:   primary,
			secondary: secondary,
		})
	}
	return v
}

// LoadVocabulary reads a vocabulary file with one term per line. Blank lines
// and lines starting with '#' are skipped. A missing file yields an empty
// vocabulary, not an error, so a fresh install works without one.
func LoadVocabulary(path string, opts ...VocabularyOption) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewVocabulary(nil, opts...), nil
		}
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()
	return readVocabulary(f, opts...)
}

func readVocabulary(r io.Reader, opts ...VocabularyOption) (*Vocabulary, error) {
	var terms []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return NewVocabulary(terms, opts...), nil
}

// Len reports the number of usable terms.
func (v *Vocabulary) Len() int { return len(v.terms) }

// Correct rewrites words in text that phonetically match a vocabulary term.
// Words are split on whitespace; leading and trailing punctuation on each
// word is preserved.
func (v *Vocabulary) Correct(text string) string {
	if len(v.terms) == 0 || text == "" {
		return text
	}
	fields := strings.Fields(text)
	changed := false
	for i, f := range fields {
		prefix, core, suffix := splitPunct(f)
		if core == "" || !isASCIIWord(core) {
			continue
		}
		if repl, ok := v.match(core); ok && repl != core {
			fields[i] = prefix + repl + suffix
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(fields, " ")
}

// match returns the best vocabulary term for word, or ok=false when nothing
// clears the threshold. Exact (case-insensitive) matches still return the
// canonical spelling so casing gets normalised.
func (v *Vocabulary) match(word string) (string, bool) {
	lower := strings.ToLower(word)
	primary, secondary := matchr.DoubleMetaphone(word)

	best := ""
	bestScore := 0.0
	for _, t := range v.terms {
		if t.lower == lower {
			return t.word, true
		}
		if !phoneticOverlap(primary, secondary, t.primary, t.secondary) {
			continue
		}
		score := matchr.JaroWinkler(lower, t.lower, true)
		if score > bestScore {
			bestScore = score
			best = t.word
		}
	}
	if bestScore >= v.threshold {
		return best, true
	}
	return "", false
}

func phoneticOverlap(p1, s1, p2, s2 string) bool {
	if p1 == "" && s1 == "" {
		return false
	}
	return (p1 != "" && (p1 == p2 || p1 == s2)) ||
		(s1 != "" && (s1 == p2 || s1 == s2))
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || (!unicode.IsLetter(r) && r != '-' && r != '\'') {
			return false
		}
	}
	return true
}

// splitPunct separates leading and trailing non-letter runs from a token.
func splitPunct(s string) (prefix, core, suffix string) {
	start := 0
	for start < len(s) && !isWordByte(s[start]) {
		start++
	}
	end := len(s)
	for end > start && !isWordByte(s[end-1]) {
		end--
	}
	return s[:start], s[start:end], s[end:]
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '\'' || b == '-' || b >= 0x80
}
