package feedback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/metrics"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

// Sources registers query sources; *registry.Registry satisfies it.
type Sources interface {
	AddQuerySource(ctx context.Context, id, endpoint, query string, interval time.Duration) (bool, error)
}

// Generator feeds the queue from pipeline results and turns drained terms
// into search sources.
type Generator struct {
	queue   Queue
	sources Sources
	cfg     config.FeedbackConfig
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewGenerator(q Queue, s Sources, cfg config.FeedbackConfig, m *metrics.Metrics, log *zap.Logger) *Generator {
	return &Generator{queue: q, sources: s, cfg: cfg, metrics: m, log: log.Named("feedback")}
}

// ObserveEntity enqueues an entity the first time its mention count reaches
// the confirmation threshold. Weapons are not searched for.
func (g *Generator) ObserveEntity(ctx context.Context, e model.NamedEntity) {
	if e.Type == model.EntityWeapon || e.Mentions != g.cfg.MinMentions {
		return
	}
	g.push(ctx, Term{Kind: KindEntity, Text: e.CanonicalName, EntityType: e.Type, At: e.LastSeen})
}

// ObserveZone enqueues a zone scored for the first time.
func (g *Generator) ObserveZone(ctx context.Context, zs model.ZoneScore, first bool) {
	if !first || zs.Zone.IsZero() {
		return
	}
	text := zs.Zone.Region
	if text == "" {
		text = zs.Zone.Country
	}
	g.push(ctx, Term{Kind: KindZone, Text: text, Zone: zs.Zone.String(), At: zs.CalculatedAt})
}

func (g *Generator) push(ctx context.Context, t Term) {
	if strings.TrimSpace(t.Text) == "" {
		return
	}
	if err := g.queue.Push(ctx, t); err != nil {
		g.metrics.FeedbackTerm("dropped")
		g.log.Warn("feedback term dropped", zap.String("term", t.Text), zap.Error(err))
		return
	}
	g.metrics.FeedbackTerm("queued")
}

// Drain pulls up to the per-cycle cap of terms and registers a search source
// for each. It returns the number of sources created.
func (g *Generator) Drain(ctx context.Context) (int, error) {
	terms, err := g.queue.Drain(ctx, g.cfg.MaxSourcesPerCycle)
	if err != nil && len(terms) == 0 {
		return 0, err
	}
	added := 0
	for _, t := range terms {
		q := Query(t)
		id := SourceID(q)
		created, aerr := g.sources.AddQuerySource(ctx, id, g.cfg.SearchEndpoint, q, g.cfg.SourceInterval)
		switch {
		case aerr != nil:
			g.metrics.FeedbackTerm("error")
			g.log.Warn("register feedback source", zap.String("query", q), zap.Error(aerr))
		case created:
			added++
			g.metrics.FeedbackTerm("added")
		default:
			g.metrics.FeedbackTerm("known")
		}
	}
	if err != nil {
		g.log.Warn("feedback drain interrupted", zap.Int("terms", len(terms)), zap.Error(err))
	}
	return added, nil
}

// Query is the search phrase for a term.
func Query(t Term) string {
	name := strings.Join(strings.Fields(t.Text), " ")
	switch {
	case t.Kind == KindZone || t.EntityType == model.EntityLocation:
		return name + " attack OR strike OR shelling"
	case t.EntityType == model.EntityPerson:
		return `"` + name + `" military`
	default:
		return `"` + name + `" conflict`
	}
}

// SourceID derives a stable id from the query, so a term seen twice never
// registers two sources.
func SourceID(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(query)))
	return "feedback-" + hex.EncodeToString(sum[:6])
}
