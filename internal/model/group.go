package model

import "time"

// EventGroup clusters events believed to describe one incident.
// Members are only ever appended; PrimaryEventID is always one of them.
type EventGroup struct {
	ID                 string    `json:"id"`
	Zone               ZoneKey   `json:"zone"`
	MemberIDs          []string  `json:"member_ids"`
	PrimaryEventID     string    `json:"primary_event_id"`
	SourceIDs          []string  `json:"source_ids"`
	CorroborationCount int       `json:"corroboration_count"`
	SourceDiversity    float64   `json:"source_diversity"`
	Confidence         float64   `json:"confidence"`
	Disputed           bool      `json:"disputed"`
	DisputeReasons     []string  `json:"dispute_reasons,omitempty"`
	AnchorAt           time.Time `json:"anchor_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HasMember reports whether id belongs to the group.
func (g EventGroup) HasMember(id string) bool {
	for _, m := range g.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// ZoneScore is the escalation state of one conflict zone. Level is the
// unrounded score as of AnchoredAt, the last time new events were blended in;
// decay is always measured from there.
type ZoneScore struct {
	Zone            ZoneKey   `json:"zone"`
	Score           int       `json:"score"`
	PreviousScore   int       `json:"previous_score"`
	CalculatedAt    time.Time `json:"calculated_at"`
	CountedEventIDs []string  `json:"counted_event_ids"`
	// CountedThrough is the newest creation time among counted events.
	CountedThrough time.Time `json:"counted_through"`
	EventCount     int       `json:"event_count"`
	Level           float64   `json:"level"`
	AnchoredAt      time.Time `json:"anchored_at"`
}
