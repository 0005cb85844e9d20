package entity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

// BuiltinAliases maps normalized acronyms and short forms to the key of the
// full name.
var BuiltinAliases = map[string]string{
	"idf":   "israel defense forces",
	"rsf":   "rapid support forces",
	"saf":   "sudanese armed forces",
	"afu":   "armed forces of ukraine",
	"zsu":   "armed forces of ukraine",
	"sdf":   "syrian democratic forces",
	"hts":   "hayat tahrir al-sham",
	"isis":  "islamic state",
	"isil":  "islamic state",
	"daesh": "islamic state",
	"un":    "united nations",
	"us":    "united states",
	"usa":   "united states",
	"uk":    "united kingdom",
	"eu":    "european union",
	"nato":  "north atlantic treaty organization",
	"icrc":  "international committee of the red cross",
	"drc":   "democratic republic of the congo",
	"pkk":   "kurdistan workers party",
	"fsb":   "federal security service",
}

var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "sir": true,
	"gen": true, "general": true, "col": true, "colonel": true, "lt": true,
	"lieutenant": true, "sgt": true, "sergeant": true, "capt": true, "captain": true,
	"maj": true, "major": true, "cmdr": true, "commander": true, "adm": true,
	"admiral": true, "president": true, "minister": true, "sheikh": true,
	"senator": true, "sen": true, "rep": true, "gov": true, "governor": true,
	"mayor": true, "spokesman": true, "spokeswoman": true,
}

var orgSuffixes = map[string]bool{
	"inc": true, "ltd": true, "llc": true, "corp": true, "corporation": true,
	"co": true, "company": true, "plc": true, "gmbh": true, "ag": true, "sa": true,
}

var articles = map[string]bool{"the": true, "a": true, "an": true}

// Normalizer derives entity keys. It is immutable once built, so Key is a
// pure function of its arguments.
type Normalizer struct {
	aliases map[string]string
}

// NewNormalizer merges extra aliases over the built-in table. Both sides of
// every extra entry are normalized first.
func NewNormalizer(extra map[string]string) *Normalizer {
	n := &Normalizer{aliases: make(map[string]string, len(BuiltinAliases)+len(extra))}
	for k, v := range BuiltinAliases {
		n.aliases[k] = v
	}
	for k, v := range extra {
		from := n.base(k, model.EntityOrganization)
		to := n.base(v, model.EntityOrganization)
		if from != "" && to != "" {
			n.aliases[from] = to
		}
	}
	return n
}

var defaultNormalizer = NewNormalizer(nil)

// Normalize returns the key of name under the built-in alias table.
func Normalize(name string, typ model.EntityType) string {
	return defaultNormalizer.Key(name, typ)
}

// Key folds case and diacritics, drops articles, honorifics, corporate
// suffixes and possessives, then resolves aliases.
func (n *Normalizer) Key(name string, typ model.EntityType) string {
	k := n.base(name, typ)
	if full, ok := n.aliases[k]; ok {
		return full
	}
	return k
}

func (n *Normalizer) base(name string, typ model.EntityType) string {
	s := fold(name)
	s = strings.NewReplacer("’", "'", "`", "'").Replace(s)

	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '.':
			// u.s. -> us
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	toks := strings.Fields(b.String())
	for i, t := range toks {
		t = strings.TrimSuffix(t, "'s")
		toks[i] = strings.Trim(strings.ReplaceAll(t, "'", ""), "-")
	}
	toks = compact(toks)

	titled := typ == model.EntityPerson || typ == model.EntityMilitaryUnit || typ == model.EntityOrganization
	for len(toks) > 1 && (articles[toks[0]] || titled && honorifics[toks[0]]) {
		toks = toks[1:]
	}
	if typ == model.EntityOrganization {
		for len(toks) > 1 && orgSuffixes[toks[len(toks)-1]] {
			toks = toks[:len(toks)-1]
		}
	}
	return strings.Join(toks, " ")
}

func compact(toks []string) []string {
	out := toks[:0]
	for _, t := range toks {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// fold strips diacritics and case. The transformers carry state, so each
// call builds its own.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

// DisplayName is the canonical name shown for a key: the alias expansion in
// title case, or the mention with articles and possessives trimmed.
func (n *Normalizer) DisplayName(mention string, typ model.EntityType) string {
	if full, ok := n.aliases[n.base(mention, typ)]; ok {
		return cases.Title(language.English).String(full)
	}
	s := strings.Join(strings.Fields(mention), " ")
	for _, a := range []string{"The ", "the "} {
		s = strings.TrimPrefix(s, a)
	}
	s = strings.TrimSuffix(strings.TrimSuffix(s, "'s"), "’s")
	return s
}
