// Package geo resolves free-text locations to conflict zones with a small
// gazetteer. Configured places override built-in ones with the same name.
package geo

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

type Place struct {
	Name        string
	Zone        model.ZoneKey
	Coordinates model.LatLon
}

// Match is one place mention found in a text.
type Match struct {
	Place  Place
	Offset int
}

type Gazetteer struct {
	byName map[string]Place // folded name or alias -> place
	names  []string         // folded, longest first
}

func New(cfg config.GeoConfig) *Gazetteer {
	g := &Gazetteer{byName: map[string]Place{}}
	if !cfg.DisableBuiltin {
		for _, p := range builtin {
			g.add(p)
		}
	}
	for _, p := range cfg.Places {
		g.add(p)
	}
	for n := range g.byName {
		g.names = append(g.names, n)
	}
	sort.Slice(g.names, func(i, j int) bool {
		if len(g.names[i]) != len(g.names[j]) {
			return len(g.names[i]) > len(g.names[j])
		}
		return g.names[i] < g.names[j]
	})
	return g
}

func (g *Gazetteer) add(p config.Place) {
	place := Place{
		Name:        p.Name,
		Zone:        model.ZoneKey{Country: strings.ToUpper(p.Country), Region: p.Region},
		Coordinates: model.LatLon{Lat: p.Lat, Lon: p.Lon},
	}
	for _, n := range append([]string{p.Name}, p.Aliases...) {
		if k := g.key(n); k != "" {
			g.byName[k] = place
		}
	}
}

func (g *Gazetteer) key(s string) string {
	s = fold(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "the ")
	s = strings.TrimSuffix(strings.TrimSuffix(s, "'s"), "’s")
	return strings.Join(strings.Fields(s), " ")
}

// Resolve maps a location phrase to a place: an exact name or alias first,
// then the first known place named inside the phrase.
func (g *Gazetteer) Resolve(text string) (Place, bool) {
	k := g.key(text)
	if k == "" {
		return Place{}, false
	}
	if p, ok := g.byName[k]; ok {
		return p, true
	}
	if ms := g.scanFolded(k); len(ms) > 0 {
		return ms[0].Place, true
	}
	return Place{}, false
}

// Scan returns every place mention in text, in order of appearance.
// Overlapping shorter names inside a longer match are skipped.
func (g *Gazetteer) Scan(text string) []Match {
	return g.scanFolded(fold(text))
}

func (g *Gazetteer) scanFolded(folded string) []Match {
	taken := make([]bool, len(folded))
	var out []Match
	for _, n := range g.names {
		from := 0
		for {
			i := strings.Index(folded[from:], n)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(n)
			from = end
			if !boundary(folded, start-1) || !boundary(folded, end) || overlaps(taken, start, end) {
				continue
			}
			for j := start; j < end; j++ {
				taken[j] = true
			}
			out = append(out, Match{Place: g.byName[n], Offset: start})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// Dominant returns the most mentioned place in text; ties go to the earliest mention.
func (g *Gazetteer) Dominant(text string) (Place, bool) {
	ms := g.Scan(text)
	if len(ms) == 0 {
		return Place{}, false
	}
	counts := map[string]int{}
	for _, m := range ms {
		counts[m.Place.Name]++
	}
	best := ms[0]
	for _, m := range ms[1:] {
		if counts[m.Place.Name] > counts[best.Place.Name] {
			best = m
		}
	}
	return best.Place, true
}

// fold builds a Caser per call; Casers keep state and cannot be shared.
func fold(s string) string { return cases.Fold().String(s) }

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !(unicode.IsLetter(r) || unicode.IsDigit(r)) || r >= 0x80
}

func overlaps(taken []bool, start, end int) bool {
	for j := start; j < end; j++ {
		if taken[j] {
			return true
		}
	}
	return false
}
