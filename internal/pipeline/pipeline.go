// Package pipeline runs ingestion cycles: due sources are fetched by the
// worker pool and every retrieved document is deduplicated, extracted,
// linked to entities, stored, grouped and finally scored per zone.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/dedup"
	"github.com/steliosspap/Argos-public-sub005/internal/entity"
	"github.com/steliosspap/Argos-public-sub005/internal/escalation"
	"github.com/steliosspap/Argos-public-sub005/internal/extract"
	"github.com/steliosspap/Argos-public-sub005/internal/feedback"
	"github.com/steliosspap/Argos-public-sub005/internal/fetch"
	"github.com/steliosspap/Argos-public-sub005/internal/geo"
	"github.com/steliosspap/Argos-public-sub005/internal/group"
	"github.com/steliosspap/Argos-public-sub005/internal/metrics"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/publish"
	"github.com/steliosspap/Argos-public-sub005/internal/registry"
	"github.com/steliosspap/Argos-public-sub005/internal/sink"
	"github.com/steliosspap/Argos-public-sub005/internal/source"
	"github.com/steliosspap/Argos-public-sub005/internal/store"
)

// ErrCycleRunning is returned when a cycle is requested while one is in progress.
var ErrCycleRunning = errors.New("pipeline: cycle already running")

// Report summarizes one cycle.
type Report struct {
	StartedAt       time.Time      `json:"started_at"`
	Duration        time.Duration  `json:"duration"`
	Sources         int            `json:"sources"`
	Fetched         int            `json:"fetched"`
	Failed          int            `json:"failed"`
	Skipped         int            `json:"skipped"`
	Documents       map[string]int `json:"documents"`
	Languages       map[string]int `json:"languages,omitempty"`
	Events          int            `json:"events"`
	Assignments     map[string]int `json:"assignments"`
	Groups          int            `json:"groups"`
	Zones           int            `json:"zones"`
	FeedbackSources int            `json:"feedback_sources"`
	Interrupted     bool           `json:"interrupted"`
}

type Pipeline struct {
	store     store.Store
	registry  *registry.Registry
	pool      *fetch.Pool
	dedup     *dedup.Deduplicator
	extractor *extract.Extractor
	entities  *entity.Registry
	grouper   *group.Grouper
	engine    *escalation.Engine
	feedback  *feedback.Generator
	publisher *publish.Publisher

	processTimeout time.Duration
	metrics        *metrics.Metrics
	log            *zap.Logger
	now            func() time.Time

	running sync.Mutex
}

// Options carries the collaborators that are built outside the pipeline.
// Fetcher defaults to the HTTP fetchers of package source; Queue is only
// used when feedback is enabled.
type Options struct {
	Fetcher   fetch.Fetcher
	Queue     feedback.Queue
	Publisher *publish.Publisher
	Metrics   *metrics.Metrics
}

// New wires every stage from cfg over st and seeds the configured sources.
func New(ctx context.Context, cfg config.Config, st store.Store, opts Options, log *zap.Logger) (*Pipeline, error) {
	m := opts.Metrics
	reg := registry.New(st, cfg.Fetch.FailureThreshold, log)
	if err := reg.Seed(ctx, cfg.Sources); err != nil {
		return nil, eris.Wrap(err, "seed sources")
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = source.NewSet(source.Options{Timeout: cfg.Fetch.Timeout, UserAgent: cfg.Fetch.UserAgent, APIKey: cfg.Fetch.SearchAPIKey})
	}

	var analyzer *extract.Analyzer
	if cfg.Extract.Analyzer.Enabled {
		a, err := extract.NewAnalyzer(cfg.Extract.Analyzer, m, log)
		if err != nil {
			return nil, eris.Wrap(err, "build analyzer")
		}
		analyzer = a
	}
	ex, err := extract.New(cfg.Extract, geo.New(cfg.Geo), analyzer, log)
	if err != nil {
		return nil, eris.Wrap(err, "build extractor")
	}

	var fb *feedback.Generator
	if cfg.Feedback.Enabled && opts.Queue != nil {
		fb = feedback.NewGenerator(opts.Queue, reg, cfg.Feedback, m, log)
	}
	pub := opts.Publisher
	if pub == nil {
		pub = publish.NewPublisher(publish.NewHub(m), nil, m, log)
	}

	processTimeout := cfg.Fetch.ProcessTimeout
	if processTimeout <= 0 {
		processTimeout = 2 * time.Minute
	}
	return &Pipeline{
		store:          st,
		registry:       reg,
		pool:           fetch.NewPool(fetcher, reg, cfg.Fetch, m, log),
		dedup:          dedup.New(st, cfg.Dedup),
		extractor:      ex,
		entities:       entity.New(st, cfg.Entity, m, log),
		grouper:        group.New(st, cfg.Grouping, m, log),
		engine:         escalation.New(st, cfg.Escalation, m, log),
		feedback:       fb,
		publisher:      pub,
		processTimeout: processTimeout,
		metrics:        m,
		log:            log.Named("pipeline"),
		now:            time.Now,
	}, nil
}

func (p *Pipeline) Registry() *registry.Registry { return p.registry }

func (p *Pipeline) Engine() *escalation.Engine { return p.engine }

func (p *Pipeline) Publisher() *publish.Publisher { return p.publisher }

func (p *Pipeline) Store() store.Store { return p.store }

// collector gathers the output of one cycle across worker goroutines.
type collector struct {
	mu     sync.Mutex
	report *Report
	events []model.Event
	groups map[string]model.EventGroup
	order  []string
	zones  map[model.ZoneKey]struct{}
}

func newCollector(r *Report) *collector {
	r.Documents, r.Languages, r.Assignments = map[string]int{}, map[string]int{}, map[string]int{}
	return &collector{report: r, groups: map[string]model.EventGroup{}, zones: map[model.ZoneKey]struct{}{}}
}

func (c *collector) count(n *int) {
	c.mu.Lock()
	*n++
	c.mu.Unlock()
}

func (c *collector) document(status, lang string) {
	c.mu.Lock()
	c.report.Documents[status]++
	if lang != "" {
		c.report.Languages[lang]++
	}
	c.mu.Unlock()
}

func (c *collector) event(ev model.Event, grp model.EventGroup, outcome group.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	c.report.Assignments[string(outcome)]++
	if _, ok := c.groups[grp.ID]; !ok {
		c.order = append(c.order, grp.ID)
	}
	c.groups[grp.ID] = grp
	if z := ev.ZoneOrZero(); !z.IsZero() {
		c.zones[z] = struct{}{}
	}
}

// Cycle runs one ingestion pass. Cancelling ctx stops scheduling sources;
// documents already fetched finish their pass on a detached context bounded
// by the process timeout, and the zones they touched are still scored and
// published. Only one cycle runs at a time.
func (p *Pipeline) Cycle(ctx context.Context) (Report, error) {
	if !p.running.TryLock() {
		return Report{}, ErrCycleRunning
	}
	defer p.running.Unlock()

	start := p.now().UTC()
	report := Report{StartedAt: start}
	c := newCollector(&report)

	if p.feedback != nil {
		n, err := p.feedback.Drain(ctx)
		if err != nil {
			p.log.Warn("feedback drain failed", zap.Error(err))
		}
		report.FeedbackSources = n
	}

	due, err := p.registry.Due(ctx, start)
	if err != nil {
		return report, eris.Wrap(err, "list due sources")
	}
	report.Sources = len(due)

	runErr := p.pool.Run(ctx, due, func(ctx context.Context, res fetch.Result) {
		switch {
		case res.Skipped:
			c.count(&report.Skipped)
			return
		case res.Err != nil:
			c.count(&report.Failed)
			return
		}
		c.count(&report.Fetched)
		for _, item := range res.Items {
			p.handleItem(ctx, res.Source, item, c)
		}
	})
	report.Interrupted = runErr != nil

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.processTimeout)
	defer cancel()
	p.flush(detached, c)

	if all, err := p.registry.List(detached); err == nil {
		active := 0
		for _, s := range all {
			if s.Active {
				active++
			}
		}
		p.metrics.SourcesActive(active)
	}
	end := p.now().UTC()
	report.Duration = end.Sub(start)
	p.metrics.Cycle(report.Duration.Seconds(), end.Unix())
	p.log.Info("cycle finished",
		zap.Int("sources", report.Sources),
		zap.Int("fetched", report.Fetched),
		zap.Int("failed", report.Failed),
		zap.Int("events", report.Events),
		zap.Int("groups", report.Groups),
		zap.Int("zones", report.Zones),
		zap.Duration("took", report.Duration.Truncate(time.Millisecond)),
		zap.Bool("interrupted", report.Interrupted))
	if report.Interrupted {
		return report, runErr
	}
	return report, nil
}

func (p *Pipeline) handleItem(ctx context.Context, src model.Source, item source.Item, c *collector) {
	doc := model.Document{
		SourceID:    src.ID,
		URL:         item.URL,
		Title:       item.Title,
		Text:        item.Text,
		RetrievedAt: p.now().UTC(),
		PublishedAt: item.PublishedAt,
	}
	if strings.TrimSpace(doc.Text) == "" {
		doc.Text = doc.Title
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.processTimeout)
	defer cancel()
	if err := p.process(dctx, doc, c); err != nil {
		p.log.Warn("document failed", zap.String("source", src.ID), zap.String("url", item.URL), zap.Error(err))
	}
}

// Process runs a single document through the whole pipeline outside of a
// cycle, then scores and publishes what it produced.
func (p *Pipeline) Process(ctx context.Context, doc model.Document) (Report, error) {
	report := Report{StartedAt: p.now().UTC()}
	c := newCollector(&report)
	if err := p.process(ctx, doc, c); err != nil {
		return report, err
	}
	p.flush(ctx, c)
	report.Duration = p.now().UTC().Sub(report.StartedAt)
	return report, nil
}

// flush scores the zones touched so far and publishes the collected output.
func (p *Pipeline) flush(ctx context.Context, c *collector) {
	scores := p.score(ctx, c)
	c.report.Events = len(c.events)
	c.report.Groups = len(c.order)
	c.report.Zones = len(scores)

	groups := make([]model.EventGroup, 0, len(c.order))
	for _, id := range c.order {
		groups = append(groups, c.groups[id])
	}
	if err := p.publisher.Publish(ctx, sink.Batch{Events: c.events, Groups: groups, Scores: scores}); err != nil {
		p.log.Warn("publish incomplete", zap.Error(err))
	}
}

func (p *Pipeline) process(ctx context.Context, doc model.Document, c *collector) error {
	if doc.Language == "" && strings.TrimSpace(doc.Text) != "" {
		doc.Language = extract.DetectLanguage(doc.Title + ". " + doc.Text).String()
	}
	res, err := p.dedup.Admit(ctx, doc)
	if errors.Is(err, dedup.ErrInvalidDocument) {
		p.metrics.Document("invalid")
		c.document("invalid", "")
		p.log.Warn("document skipped", zap.String("url", doc.URL), zap.Error(err))
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "admit document")
	}
	p.metrics.Document(string(res.Status))
	c.document(string(res.Status), res.Document.Language)
	if !res.Stored() {
		return nil
	}

	events, err := p.extractor.Extract(ctx, res.Document)
	if err != nil {
		p.log.Warn("extraction skipped", zap.String("document", res.Document.ID), zap.Error(err))
		return nil
	}
	for _, ev := range events {
		if err := p.storeEvent(ctx, ev, c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) storeEvent(ctx context.Context, ev model.Event, c *collector) error {
	if _, err := p.store.GetEvent(ctx, ev.ID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return eris.Wrapf(err, "lookup event %s", ev.ID)
	}

	created, err := p.store.SaveEventWithLinks(ctx, ev, p.entities.Links(ev))
	if err != nil {
		return eris.Wrapf(err, "save event %s", ev.ID)
	}
	if !created {
		return nil
	}
	p.metrics.Event(string(ev.Method))

	// Mentions are counted only for events that were actually stored.
	ents, err := p.entities.Record(ctx, ev)
	if err != nil {
		return err
	}
	if p.feedback != nil {
		for _, e := range ents {
			p.feedback.ObserveEntity(ctx, e)
		}
	}

	grp, outcome, err := p.grouper.Assign(ctx, ev)
	if err != nil {
		return err
	}
	c.event(ev, grp, outcome)
	return nil
}

// score recomputes every zone touched by the cycle, in a stable order.
func (p *Pipeline) score(ctx context.Context, c *collector) []model.ZoneScore {
	zones := make([]model.ZoneKey, 0, len(c.zones))
	for z := range c.zones {
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].String() < zones[j].String() })

	now := p.now().UTC()
	out := make([]model.ZoneScore, 0, len(zones))
	for _, z := range zones {
		_, err := p.store.GetZoneScore(ctx, z)
		first := errors.Is(err, store.ErrNotFound)
		zs, err := p.engine.Recompute(ctx, z, now)
		if err != nil {
			p.log.Warn("zone recompute failed", zap.Stringer("zone", z), zap.Error(err))
			continue
		}
		if p.feedback != nil {
			p.feedback.ObserveZone(ctx, zs, first)
		}
		out = append(out, zs)
	}
	return out
}
