package entity

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

var (
	unitWords = regexp.MustCompile(`(?i)\b(?:forces|troops|army|brigade|battalion|regiment|division|corps|militia|militias|fighters|soldiers|navy|air force|guards|units?|battalions|rebels|insurgents|paramilitaries)\b`)
	orgWords  = regexp.MustCompile(`(?i)\b(?:ministry|government|council|agency|organization|organisation|committee|nations|union|party|movement|authority|office)\b`)
	honorific = regexp.MustCompile(`(?i)^(?:mr|mrs|ms|dr|gen|general|col|colonel|lt|capt|captain|maj|major|commander|president|minister|sheikh|senator|governor|mayor)\.?\s`)

	weaponNames = regexp.MustCompile(`(?i)\b(?:HIMARS|Shahed(?:-\d+)?|Iskander(?:-M)?|Kalibr|Kinzhal|ATACMS|Storm Shadow|SCALP|Grad|Bayraktar(?: TB2)?|Lancet|S-300|S-400|Patriot|Javelin|NLAW|Kh-\d+|Tochka(?:-U)?|Qassam|Fateh-\d+|Tomahawk)\b`)
)

// Mentions lists the raw entity strings an event names, with a guessed type
// and the role they play. Weapons are scanned from the span.
func Mentions(ev model.Event) []model.Mention {
	var out []model.Mention
	if a := strings.TrimSpace(ev.Actor); a != "" {
		out = append(out, model.Mention{Name: a, Type: actorType(a), Role: model.RoleActor})
	}
	if t := strings.TrimSpace(ev.Target); t != "" && properNoun(t) {
		out = append(out, model.Mention{Name: t, Type: actorType(t), Role: model.RoleTarget})
	}
	if l := strings.TrimSpace(ev.LocationText); l != "" {
		out = append(out, model.Mention{Name: l, Type: model.EntityLocation, Role: model.RoleLocation})
	}
	seen := map[string]bool{}
	for _, w := range weaponNames.FindAllString(ev.Span, -1) {
		k := strings.ToLower(w)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, model.Mention{Name: w, Type: model.EntityWeapon, Role: model.RoleMentioned})
	}
	return out
}

func actorType(name string) model.EntityType {
	switch {
	case honorific.MatchString(name):
		return model.EntityPerson
	case unitWords.MatchString(name) && !orgWords.MatchString(name):
		return model.EntityMilitaryUnit
	default:
		// organizations, acronyms and states alike
		return model.EntityOrganization
	}
}

// properNoun reports whether every significant word of s is capitalized.
// Generic targets such as "a power station" are not entities.
func properNoun(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > 6 {
		return false
	}
	for _, w := range words {
		switch strings.ToLower(w) {
		case "of", "the", "al", "el", "and", "de":
			continue
		}
		r := []rune(w)
		if !unicode.IsUpper(r[0]) {
			return false
		}
	}
	return true
}
