package model

import "time"

// EntityType classifies a NamedEntity.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityWeapon       EntityType = "weapon"
	EntityMilitaryUnit EntityType = "military_unit"
)

// Role describes how an entity takes part in an event.
type Role string

const (
	RoleActor     Role = "actor"
	RoleTarget    Role = "target"
	RoleLocation  Role = "location"
	RoleMentioned Role = "mentioned"
)

// NamedEntity is unique per (Key, Type). Mentions only ever grows.
type NamedEntity struct {
	ID            string     `json:"id"`
	CanonicalName string     `json:"canonical_name"`
	Type          EntityType `json:"type"`
	Key           string     `json:"key"`
	Aliases       []string   `json:"aliases"`
	FirstSeen     time.Time  `json:"first_seen"`
	LastSeen      time.Time  `json:"last_seen"`
	Mentions      int64      `json:"mentions"`
}

// EntityLink ties an entity to an event with a role.
type EntityLink struct {
	EntityID string `json:"entity_id"`
	EventID  string `json:"event_id"`
	Role     Role   `json:"role"`
}

// Mention is a raw entity string found on an event, before normalization.
type Mention struct {
	Name string
	Type EntityType
	Role Role
}
