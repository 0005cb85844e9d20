package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeEstimate is when an event most likely happened, with the window it
// certainly falls into.
type TimeEstimate struct {
	At         time.Time
	Start      time.Time
	End        time.Time
	Confidence float64
	Text       string
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March, "april": time.April,
	"may": time.May, "june": time.June, "july": time.July, "august": time.August,
	"september": time.September, "october": time.October, "november": time.November, "december": time.December,
}

var smallNumbers = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"thirteen": 13, "fourteen": 14, "fifteen": 15, "sixteen": 16, "seventeen": 17,
	"eighteen": 18, "nineteen": 19, "twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
}

type temporalRule struct {
	re      *regexp.Regexp
	resolve func(m []string, ref time.Time) TimeEstimate
}

const monthNames = `january|february|march|april|may|june|july|august|september|october|november|december`

var temporalRules = []temporalRule{
	{
		re: regexp.MustCompile(`(?i)\b(?:on\s+)?(\d{1,2})\s+(` + monthNames + `)(?:\s+(\d{4}))?\b`),
		resolve: func(m []string, ref time.Time) TimeEstimate {
			d, _ := strconv.Atoi(m[1])
			return calendarDay(ref, d, months[strings.ToLower(m[2])], m[3])
		},
	},
	{
		re: regexp.MustCompile(`(?i)\b(?:on\s+)?(` + monthNames + `)\s+(\d{1,2})(?:,?\s+(\d{4}))?\b`),
		resolve: func(m []string, ref time.Time) TimeEstimate {
			d, _ := strconv.Atoi(m[2])
			return calendarDay(ref, d, months[strings.ToLower(m[1])], m[3])
		},
	},
	{
		re: regexp.MustCompile(`(?i)\b(\d+|a|an|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|twenty|thirty|forty|fifty)\s+(minutes?|hours?|days?)\s+ago\b`),
		resolve: func(m []string, ref time.Time) TimeEstimate {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				n = smallNumbers[strings.ToLower(m[1])]
			}
			unit := time.Minute
			switch strings.ToLower(m[2])[0] {
			case 'h':
				unit = time.Hour
			case 'd':
				unit = 24 * time.Hour
			}
			ago := time.Duration(n) * unit
			at := ref.Add(-ago)
			slack := ago / 4
			return TimeEstimate{At: at, Start: at.Add(-slack), End: earliest(at.Add(slack), ref), Confidence: 0.7}
		},
	},
	{
		re: regexp.MustCompile(`(?i)\b(?:last night|overnight)\b`),
		resolve: func(_ []string, ref time.Time) TimeEstimate {
			day := midnight(ref)
			return TimeEstimate{At: day.Add(-time.Hour), Start: day.Add(-6 * time.Hour), End: earliest(day.Add(6*time.Hour), ref), Confidence: 0.6}
		},
	},
	{
		re: regexp.MustCompile(`(?i)\byesterday(?:\s+(morning|afternoon|evening))?\b`),
		resolve: func(m []string, ref time.Time) TimeEstimate {
			day := midnight(ref).AddDate(0, 0, -1)
			if m[1] != "" {
				return partOfDay(day, strings.ToLower(m[1]), 0.65)
			}
			return TimeEstimate{At: day.Add(12 * time.Hour), Start: day, End: day.Add(24 * time.Hour), Confidence: 0.6}
		},
	},
	{
		re: regexp.MustCompile(`(?i)\b(?:earlier\s+)?(?:today|this\s+(morning|afternoon|evening))\b`),
		resolve: func(m []string, ref time.Time) TimeEstimate {
			day := midnight(ref)
			if m[1] != "" {
				e := partOfDay(day, strings.ToLower(m[1]), 0.7)
				if e.End.After(ref) {
					e.End = ref
				}
				if e.At.After(ref) {
					e.At = ref
				}
				return e
			}
			return TimeEstimate{At: ref, Start: day, End: ref, Confidence: 0.7}
		},
	},
	{
		re: regexp.MustCompile(`(?i)\b(?:on\s+|last\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`),
		resolve: func(m []string, ref time.Time) TimeEstimate {
			want := weekdays[strings.ToLower(m[1])]
			back := (int(ref.Weekday()) - int(want) + 7) % 7
			day := midnight(ref).AddDate(0, 0, -back)
			return TimeEstimate{At: day.Add(12 * time.Hour), Start: day, End: earliest(day.Add(24*time.Hour), ref), Confidence: 0.5}
		},
	},
	{
		re: regexp.MustCompile(`(?i)\b(?:earlier\s+this|last)\s+week\b`),
		resolve: func(_ []string, ref time.Time) TimeEstimate {
			return TimeEstimate{At: ref.Add(-96 * time.Hour), Start: ref.Add(-7 * 24 * time.Hour), End: ref, Confidence: 0.3}
		},
	},
}

// Temporal finds the first temporal expression in text and resolves it
// against ref. The returned rest is text with the expression removed.
// Without an expression the estimate is ref with a one-day window.
func Temporal(text string, ref time.Time) (TimeEstimate, string) {
	ref = ref.UTC()
	for _, r := range temporalRules {
		loc := r.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		m := make([]string, len(loc)/2)
		for i := range m {
			if loc[2*i] >= 0 {
				m[i] = text[loc[2*i]:loc[2*i+1]]
			}
		}
		est := r.resolve(m, ref)
		est.Text = m[0]
		if est.Start.After(est.At) {
			est.Start = est.At
		}
		if est.End.Before(est.At) {
			est.End = est.At
		}
		rest := strings.Join(strings.Fields(text[:loc[0]]+" "+text[loc[1]:]), " ")
		rest = strings.TrimSpace(strings.Trim(strings.NewReplacer(" ,", ",", " .", ".").Replace(rest), ","))
		return est, rest
	}
	return TimeEstimate{At: ref, Start: ref.Add(-24 * time.Hour), End: ref, Confidence: 0.2}, text
}

func earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func partOfDay(day time.Time, part string, conf float64) TimeEstimate {
	switch part {
	case "morning":
		return TimeEstimate{At: day.Add(9 * time.Hour), Start: day.Add(5 * time.Hour), End: day.Add(12 * time.Hour), Confidence: conf}
	case "afternoon":
		return TimeEstimate{At: day.Add(15 * time.Hour), Start: day.Add(12 * time.Hour), End: day.Add(18 * time.Hour), Confidence: conf}
	default:
		return TimeEstimate{At: day.Add(20 * time.Hour), Start: day.Add(17 * time.Hour), End: day.Add(24 * time.Hour), Confidence: conf}
	}
}

// calendarDay resolves an explicit date. A missing year takes the reference
// year, or the one before when that would put the date in the future.
func calendarDay(ref time.Time, d int, m time.Month, year string) TimeEstimate {
	y := ref.Year()
	explicit := false
	if year != "" {
		if v, err := strconv.Atoi(year); err == nil {
			y, explicit = v, true
		}
	}
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if !explicit && day.After(ref) {
		day = day.AddDate(-1, 0, 0)
	}
	return TimeEstimate{At: day.Add(12 * time.Hour), Start: day, End: day.Add(24 * time.Hour), Confidence: 0.8}
}
