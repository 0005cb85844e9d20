package extract

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

// DefaultKeywords are the built-in flag classifiers. Configured rules are
// applied on top of them.
var DefaultKeywords = []config.KeywordRule{
	{Flag: model.FlagAirstrike, Any: []string{"airstrike", "airstrikes", "air strike", "air strikes", "air raid", "air raids", "warplane", "warplanes", "fighter jets", "bombing", "bombed", "aerial bombardment", "launched strikes"}},
	{Flag: model.FlagGroundOperation, Any: []string{"ground operation", "ground offensive", "ground assault", "incursion", "infantry", "tanks", "ground forces", "raided", "stormed", "advanced", "captured", "seized", "took control"}},
	{Flag: model.FlagCivilianCasualties, Any: []string{"civilian casualties", "civilians killed", "civilian deaths"}},
	{Flag: model.FlagCeasefire, Any: []string{"ceasefire", "cease-fire", "truce", "armistice", "humanitarian pause", "peace talks"}},
	{Flag: model.FlagArtillery, Any: []string{"artillery", "shelling", "shelled", "mortar", "mortars", "howitzer", "rocket fire", "mlrs", "grad rockets", "multiple rocket launchers"}},
	{Flag: model.FlagDrone, Any: []string{"drone", "drones", "uav", "uavs", "shahed", "loitering munition", "kamikaze drone"}},
	{Flag: model.FlagInfrastructure, Any: []string{"power grid", "power plant", "power station", "energy infrastructure", "substation", "water supply", "bridge", "railway", "port", "airport", "hospital", "school", "dam", "pipeline", "refinery", "infrastructure"}},
}

// Classifier sets event flags from keyword and regex rules.
type Classifier struct {
	kw   []compiledKeyword
	regs []compiledRegex
}

type compiledKeyword struct {
	flag string
	all  []*regexp.Regexp
	any  *regexp.Regexp
}

type compiledRegex struct {
	flag string
	re   *regexp.Regexp
}

func NewClassifier(cfg config.ExtractConfig) (*Classifier, error) {
	c := &Classifier{}
	for _, kr := range append(append([]config.KeywordRule{}, DefaultKeywords...), cfg.Keywords...) {
		if strings.TrimSpace(kr.Flag) == "" {
			continue
		}
		item := compiledKeyword{flag: kr.Flag}
		for _, w := range kr.When {
			if re := wordsRegexp([]string{w}); re != nil {
				item.all = append(item.all, re)
			}
		}
		item.any = wordsRegexp(kr.Any)
		if len(item.all) == 0 && item.any == nil {
			continue
		}
		c.kw = append(c.kw, item)
	}
	for _, rr := range cfg.Regex {
		if strings.TrimSpace(rr.Flag) == "" || strings.TrimSpace(rr.Expr) == "" {
			continue
		}
		re, err := regexp.Compile(rr.Expr)
		if err != nil {
			return nil, eris.Wrapf(err, "compile regex rule for %s", rr.Flag)
		}
		c.regs = append(c.regs, compiledRegex{flag: rr.Flag, re: re})
	}
	return c, nil
}

// wordsRegexp matches any of words as whole words, case-insensitively.
func wordsRegexp(words []string) *regexp.Regexp {
	var alts []string
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			alts = append(alts, regexp.QuoteMeta(strings.ToLower(w)))
		}
	}
	if len(alts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}

// Flags classifies text. A keyword rule fires when every When word appears,
// or when any Any word appears.
func (c *Classifier) Flags(text string) map[string]bool {
	flags := map[string]bool{}
	for _, kr := range c.kw {
		if kr.any != nil && kr.any.MatchString(text) {
			flags[kr.flag] = true
			continue
		}
		if len(kr.all) == 0 {
			continue
		}
		matched := true
		for _, re := range kr.all {
			if !re.MatchString(text) {
				matched = false
				break
			}
		}
		if matched {
			flags[kr.flag] = true
		}
	}
	for _, rr := range c.regs {
		if rr.re.MatchString(text) {
			flags[rr.flag] = true
		}
	}
	return flags
}

// category groups actions into the coarse event taxonomy.
func category(action string, flags map[string]bool) (string, string) {
	if flags[model.FlagCeasefire] {
		return "diplomatic", "ceasefire"
	}
	switch action {
	case "strike", "missile_attack", "drone_attack", "shelling", "attack", "interception":
		return "military", action
	case "raid", "ambush", "clash", "capture", "advance":
		return "ground_combat", action
	case "killing", "abduction", "casualties":
		return "violence", action
	default:
		return "other", action
	}
}
