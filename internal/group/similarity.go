package group

import (
	"hash/fnv"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/entity"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

// dims is the width of the hashed term vectors.
const dims = 512

// Similarity scores how likely a and b describe the same incident, on [0,1].
// Events further apart than window in time are never similar.
func Similarity(a, b model.Event, window time.Duration, w config.GroupingWeights) float64 {
	dt := a.EstimatedAt.Sub(b.EstimatedAt).Abs()
	if window <= 0 || dt > window {
		return 0
	}
	total := w.Actor + w.Location + w.Action + w.Time + w.Text
	if total <= 0 {
		return 0
	}
	s := w.Actor*nameSimilarity(a.Actor, b.Actor, model.EntityOrganization) +
		w.Location*locationSimilarity(a, b) +
		w.Action*actionSimilarity(a, b) +
		w.Time*(1-float64(dt)/float64(window)) +
		w.Text*Cosine(Embed(EmbeddingText(a)), Embed(EmbeddingText(b)))
	return model.Clamp(s/total, 0, 1)
}

// nameSimilarity is the token Jaccard index of two normalized names. An
// unknown side is neutral rather than a mismatch.
func nameSimilarity(a, b string, typ model.EntityType) float64 {
	ka, kb := entity.Normalize(a, typ), entity.Normalize(b, typ)
	if ka == "" || kb == "" {
		return 0.5
	}
	if ka == kb {
		return 1
	}
	return jaccard(strings.Fields(ka), strings.Fields(kb))
}

func locationSimilarity(a, b model.Event) float64 {
	if a.LocationText != "" && b.LocationText != "" {
		return nameSimilarity(a.LocationText, b.LocationText, model.EntityLocation)
	}
	if a.Zone != nil && b.Zone != nil && *a.Zone == *b.Zone {
		return 0.5
	}
	return 0
}

func actionSimilarity(a, b model.Event) float64 {
	switch {
	case a.Action == b.Action:
		return 1
	case a.Category != "" && a.Category == b.Category:
		return 0.5
	default:
		return 0
	}
}

func jaccard(a, b []string) float64 {
	set := make(map[string]int, len(a)+len(b))
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	var inter int
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	if len(set) == 0 {
		return 0
	}
	return float64(inter) / float64(len(set))
}

// EmbeddingText composes the text compared between events.
func EmbeddingText(e model.Event) string {
	return strings.Join([]string{e.Span, e.Actor, e.LocationText, e.Action, e.Target}, " | ")
}

// Embed hashes the lowercase word tokens of s into a fixed-width term vector.
func Embed(s string) []float64 {
	v := make([]float64, dims)
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) < 2 || stopwords[tok] {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%dims]++
	}
	return v
}

// Cosine returns the cosine similarity of two equal-length vectors, 0 when
// either is empty.
func Cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true, "at": true,
	"and": true, "or": true, "to": true, "by": true, "was": true, "were": true, "is": true,
	"with": true, "for": true, "from": true, "that": true, "said": true, "has": true, "have": true,
}
