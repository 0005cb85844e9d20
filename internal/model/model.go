package model

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind selects which fetcher handles a source.
type SourceKind string

const (
	KindFeed   SourceKind = "feed"   // RSS / Atom
	KindSearch SourceKind = "search" // JSON search endpoint, templated with a query
)

// Source is a content source with its health bookkeeping.
// Sources are never deleted; Active=false takes them out of rotation.
type Source struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Kind          SourceKind    `json:"kind"`
	Endpoint      string        `json:"endpoint"`
	Query         string        `json:"query,omitempty"`
	Category      string        `json:"category,omitempty"`
	Reliability   float64       `json:"reliability"` // 0..100
	Bias          float64       `json:"bias"`        // -1..1
	FetchInterval time.Duration `json:"fetch_interval"`
	Origin        string        `json:"origin"` // config | feedback

	Active              bool      `json:"active"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastAttemptAt       time.Time `json:"last_attempt_at,omitempty"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       time.Time `json:"last_failure_at,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}

// Due reports whether the minimum fetch interval has elapsed since the last attempt.
func (s Source) Due(now time.Time) bool {
	if !s.Active {
		return false
	}
	if s.LastAttemptAt.IsZero() {
		return true
	}
	return now.Sub(s.LastAttemptAt) >= s.FetchInterval
}

// Document is one retrieved piece of content. Immutable once stored; a changed
// body at a known URL produces a new Document that Supersedes the old one.
type Document struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	URL         string     `json:"url"`
	URLKey      string     `json:"url_key"`
	Title       string     `json:"title,omitempty"`
	Text        string     `json:"text"`
	RetrievedAt time.Time  `json:"retrieved_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	ContentHash string     `json:"content_hash"`
	Supersedes  string     `json:"supersedes,omitempty"`
	// Language is the detected base language of Text, e.g. "en" or "ru".
	Language string `json:"language,omitempty"`
}

// ReferenceTime is the best available anchor for relative temporal expressions.
func (d Document) ReferenceTime() time.Time {
	if d.PublishedAt != nil && !d.PublishedAt.IsZero() {
		return *d.PublishedAt
	}
	return d.RetrievedAt
}

// ZoneKey identifies a conflict zone. Region may be empty for country-wide zones.
type ZoneKey struct {
	Country string `json:"country"`
	Region  string `json:"region,omitempty"`
}

func (z ZoneKey) String() string {
	if z.Region == "" {
		return z.Country
	}
	return z.Country + "/" + z.Region
}

// IsZero reports whether the key names no zone.
func (z ZoneKey) IsZero() bool { return z.Country == "" && z.Region == "" }

// ParseZoneKey is the inverse of ZoneKey.String.
func ParseZoneKey(s string) (ZoneKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZoneKey{}, fmt.Errorf("empty zone key")
	}
	country, region, _ := strings.Cut(s, "/")
	return ZoneKey{Country: strings.ToUpper(strings.TrimSpace(country)), Region: strings.TrimSpace(region)}, nil
}

// LatLon is a resolved coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampScore bounds an escalation or severity score to [MinScore, MaxScore].
func ClampScore(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

const (
	MinScore = 1
	MaxScore = 10
)
