package model

import "time"

// Method tags how a candidate was extracted.
type Method string

const (
	MethodRule  Method = "rule"
	MethodModel Method = "model"
)

// CandidateEvent lives only inside the extractor: it is promoted to an Event or dropped.
type CandidateEvent struct {
	DocumentID   string
	Span         string
	SpanIndex    int
	Actor        string
	Action       string
	Target       string
	LocationText string
	TemporalText string
	Method       Method
	Confidence   float64
	Killed       int
	Injured      int
}

// Flag names used in Event.Flags.
const (
	FlagAirstrike          = "is_airstrike"
	FlagGroundOperation    = "is_ground_operation"
	FlagCivilianCasualties = "has_civilian_casualties"
	FlagCeasefire          = "is_ceasefire"
	FlagArtillery          = "is_artillery"
	FlagDrone              = "is_drone"
	FlagInfrastructure     = "is_infrastructure"
	FlagNeedsLocation      = "needs_location"
)

// Attribution types.
const (
	AttributionOfficial     = "official"
	AttributionMedia        = "media"
	AttributionLocal        = "local"
	AttributionUnattributed = "unattributed"
)

// Severity tiers.
const (
	TierLow      = "low"
	TierMedium   = "medium"
	TierHigh     = "high"
	TierCritical = "critical"
)

// Event is a structured conflict event extracted from exactly one Document.
type Event struct {
	ID           string   `json:"id"`
	DocumentID   string   `json:"document_id"`
	SourceID     string   `json:"source_id"`
	Actor        string   `json:"actor,omitempty"`
	Action       string   `json:"action"`
	Target       string   `json:"target,omitempty"`
	LocationText string   `json:"location_text,omitempty"`
	Zone         *ZoneKey `json:"zone,omitempty"`
	Coordinates  *LatLon  `json:"coordinates,omitempty"`
	Category     string   `json:"category"`
	Subcategory  string   `json:"subcategory,omitempty"`

	Flags   map[string]bool `json:"flags"`
	Killed  int             `json:"killed"`
	Injured int             `json:"injured"`

	EstimatedAt    time.Time `json:"estimated_at"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	TimeConfidence float64   `json:"time_confidence"`

	AttributionText string `json:"attribution_text,omitempty"`
	AttributionType string `json:"attribution_type"`

	Severity     int     `json:"severity"`
	SeverityTier string  `json:"severity_tier"`
	Contribution int     `json:"contribution"`
	Method       Method  `json:"method"`
	Confidence   float64 `json:"confidence"`
	Span         string  `json:"span"`

	CreatedAt time.Time `json:"created_at"`
}

// Has reports whether the named flag is set.
func (e Event) Has(flag string) bool { return e.Flags[flag] }

// NeedsLocation reports whether the event still awaits geographic resolution.
func (e Event) NeedsLocation() bool { return e.Flags[FlagNeedsLocation] }

// ZoneOrZero returns the event zone, or the zero key.
func (e Event) ZoneOrZero() ZoneKey {
	if e.Zone == nil {
		return ZoneKey{}
	}
	return *e.Zone
}
