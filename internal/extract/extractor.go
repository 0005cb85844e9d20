// Package extract turns a document into structured conflict events: clause
// segmentation, ordered rule patterns, a text-analysis fallback, keyword
// flags, attribution, time estimation and severity scoring.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/geo"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

// ErrInvalidDocument is returned for documents without an ID or text.
var ErrInvalidDocument = errors.New("invalid document content")

// Translator renders text in English. from is a BCP 47 language tag.
type Translator interface {
	Translate(ctx context.Context, text, from string) (string, error)
}

var eventNamespace = uuid.MustParse("9a3c6f0e-51d2-4b8e-9f4e-2c7d1b8a6e35")

type Extractor struct {
	classifier *Classifier
	gazetteer  *geo.Gazetteer
	strategies map[StrategyKind]Strategy
	translator Translator
	context    int
	log        *zap.Logger
	now        func() time.Time
}

// New builds an extractor. A nil analyzer disables the model-assisted
// strategy and translation; such spans and non-English documents then yield
// no events.
func New(cfg config.ExtractConfig, gaz *geo.Gazetteer, analyzer *Analyzer, log *zap.Logger) (*Extractor, error) {
	cl, err := NewClassifier(cfg)
	if err != nil {
		return nil, err
	}
	x := &Extractor{
		classifier: cl,
		gazetteer:  gaz,
		strategies: map[StrategyKind]Strategy{StrategyRule: ruleStrategy{}},
		context:    cfg.ContextSentences,
		log:        log.Named("extract"),
		now:        time.Now,
	}
	if analyzer != nil {
		x.strategies[StrategyModel] = analyzerStrategy{analyzer: analyzer}
		x.translator = analyzer
	}
	return x, nil
}

// clauseCarry is what later clauses of a sentence inherit from earlier ones.
type clauseCarry struct {
	sentence int
	actor    string
	location string
	when     TimeEstimate
}

// Extract returns the events described by doc, in text order. A failing span
// is logged and skipped; only invalid documents are errors.
func (x *Extractor) Extract(ctx context.Context, doc model.Document) ([]model.Event, error) {
	if strings.TrimSpace(doc.ID) == "" || strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("%w: document %q", ErrInvalidDocument, doc.ID)
	}
	log := x.log.With(zap.String("document", doc.ID), zap.String("source", doc.SourceID))

	doc, ok := x.english(ctx, doc, log)
	if !ok {
		return nil, nil
	}
	spans := Segment(doc.Text)
	sentences := Sentences(spans)
	ref := doc.ReferenceTime()
	fallback, hasFallback := x.gazetteer.Dominant(doc.Title + ". " + doc.Text)

	var events []model.Event
	carry := clauseCarry{sentence: -1}
	for _, sp := range spans {
		if sp.Sentence != carry.sentence {
			carry = clauseCarry{sentence: sp.Sentence}
		}
		when, rest := Temporal(sp.Text, ref)
		if when.Text == "" && carry.when.Text != "" {
			when = carry.when
		} else if when.Text != "" {
			carry.when = when
		}

		kind := SelectStrategy(rest)
		strategy, ok := x.strategies[kind]
		if !ok {
			continue
		}
		cands, err := strategy.Candidates(ctx, SpanInput{
			DocumentID: doc.ID,
			Span:       sp,
			Text:       rest,
			Context:    window(sentences, sp.Sentence, x.context),
		})
		if err != nil {
			log.Warn("span extraction failed", zap.Int("span", sp.Index), zap.Stringer("strategy", kind), zap.Error(err))
			continue
		}

		for i := range cands {
			c := &cands[i]
			c.DocumentID, c.Span, c.SpanIndex, c.TemporalText = doc.ID, sp.Text, sp.Index, when.Text
			if c.Actor == "" {
				c.Actor = carry.actor
			}
			if c.LocationText == "" {
				c.LocationText = carry.location
			}
		}
		for _, c := range cands {
			if carry.actor == "" && c.Actor != "" {
				carry.actor = c.Actor
			}
			if carry.location == "" && c.LocationText != "" {
				carry.location = c.LocationText
			}
		}

		for _, c := range dedupe(cands) {
			ev := x.promote(doc, c, when, sentences[sp.Sentence], fallback, hasFallback)
			events = append(events, ev)
		}
	}
	log.Debug("extracted", zap.Int("spans", len(spans)), zap.Int("events", len(events)))
	return events, nil
}

// english returns doc with its title and text in English, or false when the
// document cannot be translated.
func (x *Extractor) english(ctx context.Context, doc model.Document, log *zap.Logger) (model.Document, bool) {
	if doc.Language == "" {
		doc.Language = DetectLanguage(doc.Title + ". " + doc.Text).String()
	}
	if doc.Language == language.English.String() {
		return doc, true
	}
	log = log.With(zap.String("language", doc.Language))
	if x.translator == nil {
		log.Debug("no translator, document skipped")
		return doc, false
	}
	text, err := x.translator.Translate(ctx, doc.Text, doc.Language)
	if err != nil {
		log.Warn("translation failed, document skipped", zap.Error(err))
		return doc, false
	}
	doc.Text = text
	if doc.Title != "" {
		if title, err := x.translator.Translate(ctx, doc.Title, doc.Language); err == nil {
			doc.Title = title
		}
	}
	return doc, true
}

// dedupe keeps the most confident candidate per actor|action|target|location,
// preserving first-seen order.
func dedupe(cands []model.CandidateEvent) []model.CandidateEvent {
	idx := map[string]int{}
	var out []model.CandidateEvent
	for _, c := range cands {
		if c.Action == "" {
			continue
		}
		k := candidateKey(c)
		if i, ok := idx[k]; ok {
			if c.Confidence > out[i].Confidence {
				out[i] = c
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, c)
	}
	return out
}

func candidateKey(c model.CandidateEvent) string {
	norm := func(s string) string { return strings.Join(strings.Fields(strings.ToLower(s)), " ") }
	return norm(c.Actor) + "|" + norm(c.Action) + "|" + norm(c.Target) + "|" + norm(c.LocationText)
}

func (x *Extractor) promote(doc model.Document, c model.CandidateEvent, when TimeEstimate, sentence string, fallback geo.Place, hasFallback bool) model.Event {
	flags := x.classifier.Flags(c.Span)
	if cas := CountCasualties(c.Span); cas.Civilian && c.Killed+c.Injured > 0 {
		flags[model.FlagCivilianCasualties] = true
	}

	ev := model.Event{
		ID:             uuid.NewSHA1(eventNamespace, []byte(fmt.Sprintf("%s|%d|%s", doc.ID, c.SpanIndex, candidateKey(c)))).String(),
		DocumentID:     doc.ID,
		SourceID:       doc.SourceID,
		Actor:          c.Actor,
		Action:         c.Action,
		Target:         c.Target,
		LocationText:   c.LocationText,
		Killed:         c.Killed,
		Injured:        c.Injured,
		EstimatedAt:    when.At,
		WindowStart:    when.Start,
		WindowEnd:      when.End,
		TimeConfidence: when.Confidence,
		Method:         c.Method,
		Confidence:     c.Confidence,
		Span:           c.Span,
		CreatedAt:      x.now().UTC(),
	}

	place, ok := geo.Place{}, false
	if ev.LocationText != "" {
		place, ok = x.gazetteer.Resolve(ev.LocationText)
	} else if ms := x.gazetteer.Scan(c.Span); len(ms) > 0 {
		place, ok = ms[0].Place, true
		ev.LocationText = place.Name
	}
	switch {
	case ok:
		zone, coords := place.Zone, place.Coordinates
		ev.Zone, ev.Coordinates = &zone, &coords
	case hasFallback:
		zone := fallback.Zone
		ev.Zone = &zone
		flags[model.FlagNeedsLocation] = true
	default:
		flags[model.FlagNeedsLocation] = true
	}
	ev.Flags = flags

	ev.AttributionText, ev.AttributionType = Attribute(c.Span)
	if ev.AttributionType == model.AttributionUnattributed {
		ev.AttributionText, ev.AttributionType = Attribute(sentence)
	}
	ev.Category, ev.Subcategory = category(ev.Action, flags)
	ev.Severity = Severity(ev.Action, flags, ev.Killed, ev.Injured)
	ev.SeverityTier = Tier(ev.Severity)
	ev.Contribution = Contribution(ev.Severity, ev.EstimatedAt, doc.RetrievedAt)
	return ev
}

func window(sentences []string, i, n int) string {
	lo, hi := max(0, i-n), min(len(sentences), i+n+1)
	return strings.Join(sentences[lo:hi], " ")
}
