package store

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

var entityNamespace = uuid.MustParse("6f1f7a4e-5d3c-4b8e-9a51-2d0c3e7b9f10")

// EntityID is stable for a (type, key) pair across stores and restarts.
func EntityID(typ model.EntityType, key string) string {
	return uuid.NewSHA1(entityNamespace, []byte(string(typ)+"|"+key)).String()
}

func cloneDocument(d model.Document) model.Document {
	if d.PublishedAt != nil {
		t := *d.PublishedAt
		d.PublishedAt = &t
	}
	return d
}

func cloneEvent(e model.Event) model.Event {
	if e.Zone != nil {
		z := *e.Zone
		e.Zone = &z
	}
	if e.Coordinates != nil {
		c := *e.Coordinates
		e.Coordinates = &c
	}
	if e.Flags != nil {
		flags := make(map[string]bool, len(e.Flags))
		for k, v := range e.Flags {
			flags[k] = v
		}
		e.Flags = flags
	}
	return e
}

func cloneEntity(e model.NamedEntity) model.NamedEntity {
	e.Aliases = append([]string(nil), e.Aliases...)
	return e
}

func cloneGroup(g model.EventGroup) model.EventGroup {
	g.MemberIDs = append([]string(nil), g.MemberIDs...)
	g.SourceIDs = append([]string(nil), g.SourceIDs...)
	g.DisputeReasons = append([]string(nil), g.DisputeReasons...)
	return g
}

func sortEvents(evs []model.Event) {
	sort.Slice(evs, func(i, j int) bool {
		if !evs[i].EstimatedAt.Equal(evs[j].EstimatedAt) {
			return evs[i].EstimatedAt.Before(evs[j].EstimatedAt)
		}
		return evs[i].ID < evs[j].ID
	})
}

// mergeAliases returns the sorted union of both lists, case-insensitively.
func mergeAliases(have, add []string) []string {
	seen := make(map[string]bool, len(have)+len(add))
	var out []string
	for _, a := range append(append([]string(nil), have...), add...) {
		a = strings.TrimSpace(a)
		k := strings.ToLower(a)
		if a == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
