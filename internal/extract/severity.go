package extract

import (
	"math"
	"time"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

var actionBase = map[string]float64{
	"strike": 5, "missile_attack": 5, "drone_attack": 4, "shelling": 4, "attack": 4,
	"capture": 5, "ambush": 4, "killing": 4, "raid": 3, "clash": 3, "advance": 3,
	"abduction": 3, "casualties": 3, "interception": 2,
}

var flagWeight = map[string]float64{
	model.FlagAirstrike:          1,
	model.FlagGroundOperation:    1,
	model.FlagCivilianCasualties: 1,
	model.FlagInfrastructure:     1,
	model.FlagArtillery:          0.5,
	model.FlagDrone:              0.5,
	model.FlagCeasefire:          -2,
}

// Severity scores an event on [1,10] from its action, flags and casualty
// magnitude.
func Severity(action string, flags map[string]bool, killed, injured int) int {
	s, ok := actionBase[action]
	if !ok {
		s = 2
	}
	for f, on := range flags {
		if on {
			s += flagWeight[f]
		}
	}
	switch {
	case killed >= 100:
		s += 4
	case killed >= 20:
		s += 3
	case killed >= 5:
		s += 2
	case killed >= 1:
		s += 1
	}
	switch {
	case injured >= 50:
		s += 1.5
	case injured >= 10:
		s += 1
	case injured >= 1:
		s += 0.5
	}
	return model.ClampScore(int(math.Round(s)))
}

func Tier(severity int) string {
	switch {
	case severity <= 3:
		return model.TierLow
	case severity <= 5:
		return model.TierMedium
	case severity <= 7:
		return model.TierHigh
	default:
		return model.TierCritical
	}
}

// Contribution discounts severity by how long ago the event happened,
// relative to when it was reported.
func Contribution(severity int, happened, reported time.Time) int {
	age := reported.Sub(happened)
	f := 1.0
	switch {
	case age <= 24*time.Hour:
	case age <= 72*time.Hour:
		f = 0.8
	case age <= 7*24*time.Hour:
		f = 0.6
	default:
		f = 0.4
	}
	return model.ClampScore(int(math.Round(float64(severity) * f)))
}
