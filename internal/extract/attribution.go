package extract

import (
	"regexp"
	"strings"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

var attributionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\baccording to\s+([^,.;]{2,80})`),
	regexp.MustCompile(`(?i)\b(?:cited|quoted|reported)\s+by\s+([^,.;]{2,80})`),
	regexp.MustCompile(`(?i),\s*(?:the\s+)?([^,;]{2,60}?)\s+(?:said|says|reported|reports|claimed|announced|confirmed|stated)\b`),
	regexp.MustCompile(`^(?:The\s+)?([A-Z][^,;]{1,60}?)\s+(?:said|says|reported|claimed|announced|confirmed|stated)\s+(?:that\s+)?`),
}

var (
	officialWords = regexp.MustCompile(`(?i)\b(?:ministry|minister|military|army|government|spokes(?:man|woman|person)|officials?|president|governor|authorities|command|defen[cs]e|police|idf|kremlin|pentagon|general staff|administration|mayor|forces)\b`)
	localWords    = regexp.MustCompile(`(?i)\b(?:local|residents?|witness(?:es)?|eyewitness(?:es)?|villagers|activists|medics|doctors|hospital|observatory|volunteers|rescuers|community)\b`)
)

// Attribute finds the "according to X" style source of a statement and
// classifies it. Unsourced text is unattributed.
func Attribute(text string) (string, string) {
	for _, re := range attributionPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		who := strings.TrimSpace(m[1])
		if who == "" || strings.EqualFold(who, "it") || strings.EqualFold(who, "he") || strings.EqualFold(who, "she") || strings.EqualFold(who, "they") {
			continue
		}
		return who, attributionType(who)
	}
	return "", model.AttributionUnattributed
}

func attributionType(who string) string {
	switch {
	case localWords.MatchString(who):
		return model.AttributionLocal
	case officialWords.MatchString(who):
		return model.AttributionOfficial
	default: // outlets and anything unrecognised
		return model.AttributionMedia
	}
}
