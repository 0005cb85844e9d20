// Package group clusters events from different reports of the same incident
// into corroboration groups.
package group

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/entity"
	"github.com/steliosspap/Argos-public-sub005/internal/keylock"
	"github.com/steliosspap/Argos-public-sub005/internal/metrics"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/store"
)

var groupNamespace = uuid.MustParse("d41f7c2a-0b6e-4f53-8a1d-6c9e2b7f3a10")

// Store is what the grouper needs from persistence.
type Store interface {
	store.GroupStore
	GetEvent(ctx context.Context, id string) (model.Event, error)
}

// Outcome tells how Assign placed an event.
type Outcome string

const (
	Created  Outcome = "created"
	Attached Outcome = "attached"
	Existing Outcome = "existing"
)

type Grouper struct {
	store   Store
	cfg     config.GroupingConfig
	locks   *keylock.Locker
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func New(st Store, cfg config.GroupingConfig, m *metrics.Metrics, log *zap.Logger) *Grouper {
	return &Grouper{
		store:   st,
		cfg:     cfg,
		locks:   keylock.New(),
		metrics: m,
		log:     log.Named("group"),
		now:     time.Now,
	}
}

// Assign attaches ev to the most similar recent group of its zone, or starts
// a singleton group. Groups of one zone are updated one at a time. Assigning
// an event that already belongs to a group returns that group unchanged.
func (g *Grouper) Assign(ctx context.Context, ev model.Event) (model.EventGroup, Outcome, error) {
	zone := ev.ZoneOrZero()
	unlock := g.locks.Lock(zone.String())
	defer unlock()

	groups, err := g.store.ListGroups(ctx, zone, ev.EstimatedAt.Add(-g.cfg.Window))
	if err != nil {
		return model.EventGroup{}, "", eris.Wrapf(err, "list groups %s", zone)
	}

	var (
		best      model.EventGroup
		bestScore = -1.0
	)
	for _, grp := range groups {
		if grp.HasMember(ev.ID) {
			g.metrics.GroupAssignment(string(Existing))
			return grp, Existing, nil
		}
		if grp.AnchorAt.Sub(ev.EstimatedAt).Abs() > g.cfg.Window {
			continue
		}
		primary, err := g.store.GetEvent(ctx, grp.PrimaryEventID)
		if err != nil {
			return model.EventGroup{}, "", eris.Wrapf(err, "load primary of group %s", grp.ID)
		}
		if s := Similarity(ev, primary, g.cfg.Window, g.cfg.Weights); s > bestScore {
			best, bestScore = grp, s
		}
	}

	now := g.now().UTC()
	if bestScore >= g.cfg.Threshold {
		members, err := g.members(ctx, best)
		if err != nil {
			return model.EventGroup{}, "", err
		}
		best.MemberIDs = append(append([]string(nil), best.MemberIDs...), ev.ID)
		summarize(&best, append(members, ev))
		best.UpdatedAt = now
		if err := g.store.SaveGroup(ctx, best); err != nil {
			return model.EventGroup{}, "", eris.Wrapf(err, "save group %s", best.ID)
		}
		g.metrics.GroupAssignment(string(Attached))
		g.log.Debug("attached",
			zap.String("group", best.ID),
			zap.String("event", ev.ID),
			zap.Float64("similarity", bestScore),
			zap.Int("corroboration", best.CorroborationCount),
			zap.Bool("disputed", best.Disputed))
		return best, Attached, nil
	}

	grp := model.EventGroup{
		ID:        uuid.NewSHA1(groupNamespace, []byte(ev.ID)).String(),
		Zone:      zone,
		MemberIDs: []string{ev.ID},
		AnchorAt:  ev.EstimatedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	summarize(&grp, []model.Event{ev})
	if err := g.store.SaveGroup(ctx, grp); err != nil {
		return model.EventGroup{}, "", eris.Wrapf(err, "save group %s", grp.ID)
	}
	g.metrics.GroupAssignment(string(Created))
	return grp, Created, nil
}

func (g *Grouper) members(ctx context.Context, grp model.EventGroup) ([]model.Event, error) {
	out := make([]model.Event, 0, len(grp.MemberIDs)+1)
	for _, id := range grp.MemberIDs {
		ev, err := g.store.GetEvent(ctx, id)
		if err != nil {
			return nil, eris.Wrapf(err, "load member %s of group %s", id, grp.ID)
		}
		out = append(out, ev)
	}
	return out, nil
}

// summarize recomputes every derived field of grp from its members, which
// must be given in membership order.
func summarize(grp *model.EventGroup, members []model.Event) {
	sources := map[string]bool{}
	grp.SourceIDs = nil
	var conf float64
	for _, m := range members {
		if !sources[m.SourceID] {
			sources[m.SourceID] = true
			grp.SourceIDs = append(grp.SourceIDs, m.SourceID)
		}
		conf += m.Confidence
	}
	sort.Strings(grp.SourceIDs)

	n := len(members)
	grp.CorroborationCount = n
	grp.SourceDiversity = float64(len(sources)) / float64(n)
	grp.PrimaryEventID = primary(members).ID
	grp.DisputeReasons = disputes(members)
	grp.Disputed = len(grp.DisputeReasons) > 0

	c := 0.5*conf/float64(n) + 0.25*math.Min(1, float64(len(sources)-1)/3) + 0.25*grp.SourceDiversity
	c -= 0.15 * float64(len(grp.DisputeReasons))
	grp.Confidence = model.Clamp(c, 0, 1)
}

// primary picks the most detailed member; the earliest member wins ties.
func primary(members []model.Event) model.Event {
	best, bestDetail := members[0], detail(members[0])
	for _, m := range members[1:] {
		if d := detail(m); d > bestDetail {
			best, bestDetail = m, d
		}
	}
	return best
}

func detail(e model.Event) float64 {
	var d float64
	for _, s := range []string{e.Actor, e.Target, e.LocationText, e.AttributionText} {
		if s != "" {
			d++
		}
	}
	if e.Coordinates != nil {
		d++
	}
	if e.Killed+e.Injured > 0 {
		d++
	}
	return d + e.Confidence
}

// disputes lists material disagreements between members: casualty counts
// that differ by more than half and by at least three, or different named
// actors.
func disputes(members []model.Event) []string {
	var reasons []string

	lo, hi := -1, -1
	for _, m := range members {
		if m.Killed <= 0 {
			continue
		}
		if lo < 0 || m.Killed < lo {
			lo = m.Killed
		}
		if m.Killed > hi {
			hi = m.Killed
		}
	}
	if lo > 0 && hi-lo >= 3 && float64(hi) > 1.5*float64(lo) {
		reasons = append(reasons, fmt.Sprintf("casualty counts differ: %d vs %d killed", lo, hi))
	}

	var actors []string
	seen := map[string]bool{}
	for _, m := range members {
		k := entity.Normalize(m.Actor, model.EntityOrganization)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		actors = append(actors, m.Actor)
	}
	if len(actors) > 1 {
		reasons = append(reasons, "actors differ: "+strings.Join(actors, " vs "))
	}
	return reasons
}
