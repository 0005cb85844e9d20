package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

var scriptLanguages = []struct {
	table *unicode.RangeTable
	tag   language.Tag
}{
	{unicode.Hangul, language.Korean},
	{unicode.Hiragana, language.Japanese},
	{unicode.Katakana, language.Japanese},
	{unicode.Han, language.Chinese},
	{unicode.Arabic, language.Arabic},
	{unicode.Hebrew, language.Hebrew},
	{unicode.Cyrillic, language.Russian},
	{unicode.Greek, language.Greek},
}

// Function words that are rare outside their own language.
var stopwords = []struct {
	tag   language.Tag
	words map[string]bool
}{
	{language.English, wordSet("the and of to in was were said by with from have has")},
	{language.Spanish, wordSet("el los las del que y por fue según han una con para")},
	{language.French, wordSet("le les des du et est une dans selon été ont sur avec")},
	{language.German, wordSet("der die das und ist nicht mit von den wurde wurden sind")},
	{language.Portuguese, wordSet("os do da dos das não foram segundo uma com para pelo")},
	{language.Italian, wordSet("il gli che di della sono secondo è stati nel alla")},
}

func wordSet(s string) map[string]bool {
	m := map[string]bool{}
	for _, w := range strings.Fields(s) {
		m[w] = true
	}
	return m
}

// DetectLanguage guesses the base language of text from its dominant script,
// and from function words for Latin text. Text it cannot place is English.
func DetectLanguage(text string) language.Tag {
	counts := map[language.Tag]int{}
	letters := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		for _, s := range scriptLanguages {
			if unicode.Is(s.table, r) {
				counts[s.tag]++
				break
			}
		}
	}
	if letters == 0 {
		return language.English
	}

	// Japanese mixes kana with Han.
	if counts[language.Japanese] > 0 {
		counts[language.Japanese] += counts[language.Chinese]
		delete(counts, language.Chinese)
	}
	for _, s := range scriptLanguages {
		if n := counts[s.tag]; n*2 > letters {
			return refineScript(s.tag, text)
		}
	}
	return latinLanguage(text)
}

func refineScript(tag language.Tag, text string) language.Tag {
	switch tag {
	case language.Russian:
		if strings.ContainsAny(text, "іїєґІЇЄҐ") {
			return language.Ukrainian
		}
	case language.Arabic:
		if strings.ContainsAny(text, "پچژگ") {
			return language.Persian
		}
	}
	return tag
}

func latinLanguage(text string) language.Tag {
	scores := make([]int, len(stopwords))
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		for i, s := range stopwords {
			if s.words[w] {
				scores[i]++
			}
		}
	}
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] >= 2 && scores[i] > scores[best] {
			best = i
		}
	}
	return stopwords[best].tag
}
