package extract

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	countExpr = `(\d+(?:,\d{3})*|a dozen|dozens|scores|hundreds|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty|thirty|forty|fifty)`
	qualExpr  = `(?:(?:at least|more than|over|nearly|almost|some|around|about|up to|roughly)\s+)?`
)

var (
	// "at least 5 civilians were killed", "12 dead", "5 killed"
	countFirst = regexp.MustCompile(`(?i)\b` + qualExpr + countExpr + `\s+((?:[\p{L}-]+\s+){0,3}?)(?:(?:were|was|have been|had been|are|reportedly)\s+)*(killed|dead|died|wounded|injured|hurt)\b`)
	// "killing at least 12", "wounded 30 people"
	verbFirst = regexp.MustCompile(`(?i)\b(killing|killed|wounding|wounded|injuring|injured)\s+` + qualExpr + countExpr + `\b(\s+(?:[\p{L}-]+\s*){0,2})?`)

	civilianWords = regexp.MustCompile(`(?i)\b(?:civilians?|children|child|women|residents|villagers|patients|journalists|aid workers|refugees|families|non-combatants|worshippers)\b`)
	combatantWho  = regexp.MustCompile(`(?i)\b(?:soldiers?|troops|fighters|militants|servicemen|officers|personnel|combatants)\b`)
)

var bigCounts = map[string]int{"a dozen": 12, "dozens": 24, "scores": 40, "hundreds": 200}

// Casualties is the casualty picture of one clause.
type Casualties struct {
	Killed   int
	Injured  int
	Civilian bool // victims named as civilians
}

func (c Casualties) Any() bool { return c.Killed > 0 || c.Injured > 0 }

// CountCasualties sums every killed / injured figure in text.
func CountCasualties(text string) Casualties {
	var c Casualties
	taken := make([]bool, len(text))
	add := func(start, end int, count, who, kind string) {
		for i := start; i < end; i++ {
			if taken[i] {
				return
			}
		}
		for i := start; i < end; i++ {
			taken[i] = true
		}
		n := parseCount(count)
		switch strings.ToLower(kind) {
		case "killed", "dead", "died", "killing":
			c.Killed += n
		default:
			c.Injured += n
		}
		if civilianWords.MatchString(who) {
			c.Civilian = true
		}
	}
	for _, m := range countFirst.FindAllStringSubmatchIndex(text, -1) {
		add(m[0], m[1], text[m[2]:m[3]], sub(text, m, 2), text[m[6]:m[7]])
	}
	for _, m := range verbFirst.FindAllStringSubmatchIndex(text, -1) {
		add(m[0], m[1], text[m[4]:m[5]], sub(text, m, 3), text[m[2]:m[3]])
	}
	if c.Any() && !c.Civilian && civilianWords.MatchString(text) && !combatantWho.MatchString(text) {
		c.Civilian = true
	}
	return c
}

func sub(s string, m []int, group int) string {
	if m[2*group] < 0 {
		return ""
	}
	return s[m[2*group]:m[2*group+1]]
}

func parseCount(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, ok := bigCounts[s]; ok {
		return n
	}
	if n, ok := smallNumbers[s]; ok {
		return n
	}
	n, _ := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	return n
}
