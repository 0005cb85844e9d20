package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

const (
	capWord   = `[\p{Lu}][\p{L}\p{N}'’.\-]*`
	unitWord  = `forces|troops|army|military|militants|fighters|soldiers|militia|militias|rebels|police|units?|drones?|jets|warplanes|artillery|navy|gunmen|insurgents|paramilitaries|guards|brigade|battalion|regiment`
	actorExpr = `(?:[Tt]he\s+)?` + capWord + `(?:\s+(?:` + capWord + `|of|al|el|bin|` + unitWord + `))*`
	placeExpr = `(?:the\s+(?:town|city|village|region|province|district|outskirts)\s+of\s+)?` + capWord + `(?:\s+` + capWord + `)*`
	weapons   = `(?:\s+(?:missiles?|rockets?|shells|bombs?|mortars?))?`
	adverbs   = `(?:\s+(?:reportedly|allegedly|also|again|then|later|have|has|had))*`
	locPrep   = `(?i:in|near|outside|around|across|on\s+the\s+outskirts\s+of)`
)

type verb struct {
	expr   string
	action string
	re     *regexp.Regexp
}

var activeVerbs = compileVerbs([]verb{
	{expr: `launched\s+(?:a\s+)?(?:series\s+of\s+|wave\s+of\s+)?drone\s+(?:strikes?|attacks?)\s+(?:on|against|at)`, action: "drone_attack"},
	{expr: `launched\s+(?:a\s+)?(?:series\s+of\s+|wave\s+of\s+)?(?:missile|rocket)\s+(?:strikes?|attacks?)\s+(?:on|against|at)`, action: "missile_attack"},
	{expr: `(?:launched|carried\s+out|conducted)\s+(?:an?\s+)?(?:series\s+of\s+|wave\s+of\s+)?(?:air\s?strikes?|strikes?|bombing\s+raids?)\s+(?:on|against|at|in)`, action: "strike"},
	{expr: `fired\s+(?:missiles|rockets|drones)\s+(?:at|on|into|toward|towards)`, action: "missile_attack"},
	{expr: `fired\s+(?:shells|mortars|artillery)\s+(?:at|on|into)`, action: "shelling"},
	{expr: `(?:shelled|pounded|bombarded)`, action: "shelling"},
	{expr: `(?:struck|hit|bombed|air-?struck)`, action: "strike"},
	{expr: `(?:attacked|targeted|assaulted)`, action: "attack"},
	{expr: `(?:raided|stormed)`, action: "raid"},
	{expr: `ambushed`, action: "ambush"},
	{expr: `(?:captured|seized|took\s+control\s+of|overran)`, action: "capture"},
	{expr: `(?:clashed\s+with|fought)`, action: "clash"},
	{expr: `(?:advanced\s+(?:on|toward|towards|into)|pushed\s+into)`, action: "advance"},
	{expr: `(?:kidnapped|abducted)`, action: "abduction"},
	{expr: `(?:killed|executed|massacred)`, action: "killing"},
	{expr: `(?:shot\s+down|intercepted)`, action: "interception"},
})

var passiveVerbs = compileVerbs([]verb{
	{expr: `(?:struck|hit|bombed|destroyed|damaged)`, action: "strike"},
	{expr: `(?:shelled|bombarded)`, action: "shelling"},
	{expr: `(?:attacked|targeted)`, action: "attack"},
	{expr: `(?:raided|stormed)`, action: "raid"},
	{expr: `(?:captured|seized|overrun)`, action: "capture"},
	{expr: `ambushed`, action: "ambush"},
	{expr: `(?:killed|executed)`, action: "killing"},
	{expr: `(?:shot\s+down|intercepted)`, action: "interception"},
})

func compileVerbs(vs []verb) []verb {
	for i := range vs {
		vs[i].re = regexp.MustCompile(`(?i)^(?:` + vs[i].expr + `)$`)
	}
	return vs
}

func verbGroup(vs []verb) string {
	alts := make([]string, len(vs))
	for i, v := range vs {
		alts[i] = v.expr
	}
	return `(?P<verb>(?i:` + strings.Join(alts, "|") + `))\b`
}

func actionOf(vs []verb, text string) string {
	for _, v := range vs {
		if v.re.MatchString(text) {
			return v.action
		}
	}
	return ""
}

// rule is one ordered extraction pattern. More specific patterns come first
// and carry a higher confidence.
type rule struct {
	name       string
	re         *regexp.Regexp
	verbs      []verb
	confidence float64
}

var rules = []rule{
	{
		name: "actor_verb_target_location",
		re: regexp.MustCompile(`(?P<actor>` + actorExpr + `)` + weapons + adverbs + `\s+` + verbGroup(activeVerbs) +
			`(?:\s+(?P<target>[^,;]+?))?\s+` + locPrep + `\s+(?P<location>` + placeExpr + `)`),
		verbs:      activeVerbs,
		confidence: 0.9,
	},
	{
		name: "location_first",
		re: regexp.MustCompile(`^(?i:in|near|outside|across)\s+(?:the\s+)?(?P<location>` + placeExpr + `),?\s+(?P<actor>` + actorExpr + `)` + weapons +
			adverbs + `\s+` + verbGroup(activeVerbs) + `(?:\s+(?P<target>[^,;]+))?`),
		verbs:      activeVerbs,
		confidence: 0.85,
	},
	{
		name: "passive",
		re: regexp.MustCompile(`(?P<target>[\p{L}\p{N}'’\- ]+?)\s+(?:was|were|has\s+been|have\s+been|had\s+been)\s+` + verbGroup(passiveVerbs) +
			`\s+by\s+(?P<actor>` + actorExpr + `)` + weapons + `(?:\s+` + locPrep + `\s+(?P<location>` + placeExpr + `))?`),
		verbs:      passiveVerbs,
		confidence: 0.8,
	},
	{
		name:       "actor_verb_target",
		re:         regexp.MustCompile(`(?P<actor>` + actorExpr + `)` + weapons + adverbs + `\s+` + verbGroup(activeVerbs) + `(?:\s+(?P<target>[^,;]+))?`),
		verbs:      activeVerbs,
		confidence: 0.75,
	},
}

const casualtyConfidence = 0.6

var (
	possessive = regexp.MustCompile(`^(?:the\s+)?(` + capWord + `(?:\s+` + capWord + `)*)['’]s\s+(.+)$`)
	reportVerb = regexp.MustCompile(`(?i)^.*\b(?:said|says|reported|claimed|that)\s+`)
	leadingDet = regexp.MustCompile(`(?i)^(?:the|a|an)\s+`)
)

// pronouns never stand as an actor; the clause context supplies one instead.
var pronouns = map[string]bool{
	"it": true, "they": true, "he": true, "she": true, "we": true, "this": true,
	"that": true, "there": true, "these": true, "those": true, "officials": true,
}

// matchRules applies the ordered rules to one clause. A later rule only
// contributes where it does not overlap an earlier match.
func matchRules(text string) []model.CandidateEvent {
	text = bare(text)
	taken := make([]bool, len(text)+1)
	var out []model.CandidateEvent
	for _, r := range rules {
		for _, loc := range r.re.FindAllStringSubmatchIndex(text, -1) {
			if overlapping(taken, loc[0], loc[1]) {
				continue
			}
			fields := map[string]string{}
			for i, name := range r.re.SubexpNames() {
				if name != "" && loc[2*i] >= 0 {
					fields[name] = text[loc[2*i]:loc[2*i+1]]
				}
			}
			c, ok := candidateFrom(fields, r)
			if !ok {
				continue
			}
			for j := loc[0]; j < loc[1]; j++ {
				taken[j] = true
			}
			out = append(out, c)
		}
	}
	return out
}

func overlapping(taken []bool, start, end int) bool {
	for j := start; j < end; j++ {
		if taken[j] {
			return true
		}
	}
	return false
}

func candidateFrom(f map[string]string, r rule) (model.CandidateEvent, bool) {
	action := actionOf(r.verbs, strings.Join(strings.Fields(f["verb"]), " "))
	if action == "" {
		return model.CandidateEvent{}, false
	}
	actor := cleanActor(f["actor"])
	target := cleanTarget(f["target"])
	location := cleanLocation(f["location"])
	if location == "" {
		if m := possessive.FindStringSubmatch(target); m != nil {
			location, target = m[1], m[2]
		}
	}
	return model.CandidateEvent{
		Actor:        actor,
		Action:       action,
		Target:       target,
		LocationText: location,
		Method:       model.MethodRule,
		Confidence:   r.confidence,
	}, true
}

func cleanActor(s string) string {
	s = strings.TrimSpace(leadingDet.ReplaceAllString(strings.TrimSpace(s), ""))
	if pronouns[strings.ToLower(s)] {
		return ""
	}
	return s
}

func cleanTarget(s string) string {
	s = strings.TrimSpace(s)
	s = reportVerb.ReplaceAllString(s, "")
	s = strings.TrimSpace(leadingDet.ReplaceAllString(s, ""))
	return strings.TrimSpace(truncate(s, 120))
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func cleanLocation(s string) string {
	s = strings.TrimSpace(s)
	for _, p := range []string{"the town of ", "the city of ", "the village of ", "the region of ", "the province of ", "the district of ", "the outskirts of "} {
		s = strings.TrimPrefix(s, p)
	}
	return s
}
