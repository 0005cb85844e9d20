// Package escalation keeps one bounded, asymmetrically decaying score per
// conflict zone.
package escalation

import (
	"math"
	"time"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

// Decay applies multiplicative per-hour decay to prev for the time elapsed
// beyond window. It never returns less than the score floor.
func Decay(prev float64, elapsed, window time.Duration, ratePerHour float64) float64 {
	if prev <= model.MinScore {
		return model.MinScore
	}
	past := elapsed - window
	if past <= 0 || ratePerHour <= 0 {
		return prev
	}
	r := math.Min(ratePerHour, 1)
	d := prev * math.Pow(1-r, past.Hours())
	return math.Max(d, model.MinScore)
}

// Blend moves decayed toward incoming, with weight rise when escalating and
// weight fall when cooling.
func Blend(decayed, incoming, rise, fall float64) float64 {
	w := fall
	if incoming > decayed {
		w = rise
	}
	return (1-w)*decayed + w*incoming
}

// Round rounds to the nearest integer score and clamps it to [1,10].
func Round(v float64) int {
	if math.IsNaN(v) {
		return model.MinScore
	}
	return model.ClampScore(int(math.Round(model.Clamp(v, model.MinScore, model.MaxScore))))
}

// ring keeps at most size ids, dropping the oldest.
func ring(ids []string, add []string, size int) []string {
	out := append(append([]string(nil), ids...), add...)
	if len(out) > size {
		out = out[len(out)-size:]
	}
	return out
}
