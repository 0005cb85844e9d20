package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// Span is one clause of a document, the unit every strategy works on.
type Span struct {
	Text     string
	Index    int // position among all spans of the document
	Sentence int
	Clause   int // position within its sentence
}

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	clauseJoin     = regexp.MustCompile(`(?i),\s+(?:while|whereas|and then|meanwhile)\s+|;\s*`)
)

var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "gen": true,
	"col": true, "lt": true, "sgt": true, "capt": true, "maj": true, "cpl": true,
	"st": true, "no": true, "vs": true, "etc": true, "approx": true, "est": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true, "jul": true,
	"aug": true, "sep": true, "sept": true, "oct": true, "nov": true, "dec": true,
}

// Segment splits text into sentences and each sentence into clauses.
func Segment(text string) []Span {
	var out []Span
	sentence := 0
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.Join(strings.Fields(para), " ")
		for _, s := range splitSentences(para) {
			for i, c := range splitClauses(s) {
				out = append(out, Span{Text: c, Index: len(out), Sentence: sentence, Clause: i})
			}
			sentence++
		}
	}
	return out
}

// Sentences joins spans back into their sentences, indexed by Span.Sentence.
func Sentences(spans []Span) []string {
	var out []string
	for _, sp := range spans {
		for len(out) <= sp.Sentence {
			out = append(out, "")
		}
		if out[sp.Sentence] == "" {
			out[sp.Sentence] = sp.Text
		} else {
			out[sp.Sentence] += "; " + sp.Text
		}
	}
	return out
}

func splitSentences(p string) []string {
	var out []string
	start := 0
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		end := i + 1
		for end < len(p) && strings.IndexByte(`"')]`, p[end]) >= 0 {
			end++
		}
		if end < len(p) && p[end] != ' ' {
			continue
		}
		if c == '.' && abbreviated(p[start:i]) {
			continue
		}
		if s := strings.TrimSpace(p[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
		i = end - 1
	}
	if s := strings.TrimSpace(p[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// abbreviated reports whether the word ending prefix is an abbreviation or
// an initial rather than the end of a sentence.
func abbreviated(prefix string) bool {
	word := prefix
	if i := strings.LastIndexByte(prefix, ' '); i >= 0 {
		word = prefix[i+1:]
	}
	word = strings.TrimLeft(word, `"'(`)
	if word == "" {
		return false
	}
	if len(word) == 1 && unicode.IsUpper(rune(word[0])) {
		return true
	}
	if strings.Contains(word, ".") {
		return true // U.S, U.N
	}
	return abbreviations[strings.ToLower(word)]
}

func splitClauses(s string) []string {
	var out []string
	for _, c := range clauseJoin.Split(s, -1) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// bare strips terminal punctuation so patterns can anchor on the clause end.
func bare(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), `.!?"'`))
}
