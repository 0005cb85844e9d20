package extract

import (
	"context"
	"regexp"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

// StrategyKind tags how a span is turned into candidates.
type StrategyKind uint8

const (
	StrategyNone  StrategyKind = iota // nothing conflict related in the span
	StrategyRule                      // a rule pattern or casualty figure matched
	StrategyModel                     // conflict vocabulary without a rule match
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyRule:
		return "rule"
	case StrategyModel:
		return "model"
	default:
		return "none"
	}
}

var conflictVocabulary = regexp.MustCompile(`(?i)\b(?:attack\w*|strikes?|struck|airstrikes?|bomb\w*|shell\w*|missiles?|rockets?|drones?|artillery|killed|kill\w*|dead|wounded|injured|casualt\w*|troops|soldiers|militants?|fighters|offensive|clash\w*|fighting|explosions?|blasts?|raid\w*|ambush\w*|gunfire|gunmen|invasion|incursion|frontline|front line|ceasefire|truce|hostages?|sniper|mortars?|warplanes?|militia)\b`)

// SelectStrategy picks the strategy for a span from its text alone.
func SelectStrategy(span string) StrategyKind {
	if len(matchRules(span)) > 0 || CountCasualties(span).Any() {
		return StrategyRule
	}
	if conflictVocabulary.MatchString(span) {
		return StrategyModel
	}
	return StrategyNone
}

// SpanInput is what a strategy sees: the clause (temporal expression already
// removed) and the surrounding sentences.
type SpanInput struct {
	DocumentID string
	Span       Span
	Text       string
	Context    string
}

// Strategy turns one span into candidate events.
type Strategy interface {
	Candidates(ctx context.Context, in SpanInput) ([]model.CandidateEvent, error)
}

type ruleStrategy struct{}

func (ruleStrategy) Candidates(_ context.Context, in SpanInput) ([]model.CandidateEvent, error) {
	out := matchRules(in.Text)
	cas := CountCasualties(in.Text)
	if len(out) == 0 && cas.Any() {
		out = append(out, model.CandidateEvent{Action: "casualties", Method: model.MethodRule, Confidence: casualtyConfidence})
	}
	for i := range out {
		out[i].Killed, out[i].Injured = cas.Killed, cas.Injured
	}
	return out, nil
}

// analyzerStrategy delegates the span to the text-analysis service.
type analyzerStrategy struct {
	analyzer *Analyzer
}

func (s analyzerStrategy) Candidates(ctx context.Context, in SpanInput) ([]model.CandidateEvent, error) {
	if s.analyzer == nil {
		return nil, nil
	}
	recs, err := s.analyzer.Analyze(ctx, in.Text, in.Context)
	if err != nil {
		return nil, err
	}
	out := make([]model.CandidateEvent, 0, len(recs))
	for _, r := range recs {
		conf := r.Confidence
		if conf <= 0 {
			conf = 0.5
		}
		out = append(out, model.CandidateEvent{
			Actor:        cleanActor(r.Actor),
			Action:       normalizeAction(r.Action),
			Target:       cleanTarget(r.Target),
			LocationText: cleanLocation(r.Location),
			Method:       model.MethodModel,
			Confidence:   min(conf, 0.7),
			Killed:       r.Killed,
			Injured:      r.Injured,
		})
	}
	return out, nil
}
