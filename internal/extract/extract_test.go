package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/geo"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

// Friday
var ref = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newExtractor(t *testing.T, analyzer *Analyzer) *Extractor {
	t.Helper()
	gaz := geo.New(config.GeoConfig{Places: []config.Place{{Name: "Y", Country: "yy", Region: "North", Lat: 1, Lon: 2}}})
	x, err := New(config.ExtractConfig{ContextSentences: 1}, gaz, analyzer, zaptest.NewLogger(t))
	require.NoError(t, err)
	x.now = func() time.Time { return ref }
	return x
}

func doc(id, text string) model.Document {
	published := ref
	return model.Document{ID: id, SourceID: "wire", Text: text, RetrievedAt: ref, PublishedAt: &published}
}

func TestSegment(t *testing.T) {
	spans := Segment("Gen. Smith said U.S. forces struck Aleppo. Then they left!\n\nMr. Lee arrived; talks resumed")
	var texts []string
	for _, s := range spans {
		texts = append(texts, s.Text)
	}
	assert.Equal(t, []string{
		"Gen. Smith said U.S. forces struck Aleppo.",
		"Then they left!",
		"Mr. Lee arrived",
		"talks resumed",
	}, texts)
	assert.Equal(t, 2, spans[3].Sentence)
	assert.Equal(t, 1, spans[3].Clause)
	assert.Equal(t, 3, spans[3].Index)
	assert.Equal(t, "Mr. Lee arrived; talks resumed", Sentences(spans)[2])
}

func TestTemporal(t *testing.T) {
	cases := []struct {
		text string
		at   time.Time
		conf float64
		rest string
	}{
		{"Russian forces shelled Kharkiv yesterday", time.Date(2025, 3, 13, 12, 0, 0, 0, time.UTC), 0.6, "Russian forces shelled Kharkiv"},
		{"On Monday, Russian forces shelled Kharkiv", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), 0.5, "Russian forces shelled Kharkiv"},
		{"a drone hit a depot 3 hours ago", time.Date(2025, 3, 14, 6, 0, 0, 0, time.UTC), 0.7, "a drone hit a depot"},
		{"explosions were heard last night", time.Date(2025, 3, 13, 23, 0, 0, 0, time.UTC), 0.6, "explosions were heard"},
		{"the attack on 2 March", time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC), 0.8, "the attack"},
		{"the raid on December 30", time.Date(2024, 12, 30, 12, 0, 0, 0, time.UTC), 0.8, "the raid"},
		{"no time here", ref, 0.2, "no time here"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			est, rest := Temporal(tc.text, ref)
			assert.Equal(t, tc.at, est.At)
			assert.Equal(t, tc.conf, est.Confidence)
			assert.Equal(t, tc.rest, rest)
			assert.False(t, est.Start.After(est.At))
			assert.False(t, est.End.Before(est.At))
		})
	}
}

func TestCountCasualties(t *testing.T) {
	cases := []struct {
		text     string
		killed   int
		injured  int
		civilian bool
	}{
		{"at least 5 killed", 5, 0, false},
		{"12 people were killed and 30 wounded", 12, 30, false},
		{"the strike killed three civilians, wounding dozens", 3, 24, true},
		{"1,200 soldiers were reported dead", 1200, 0, false},
		{"no casualties were reported", 0, 0, false},
	}
	for _, tc := range cases {
		c := CountCasualties(tc.text)
		assert.Equal(t, tc.killed, c.Killed, tc.text)
		assert.Equal(t, tc.injured, c.Injured, tc.text)
		assert.Equal(t, tc.civilian, c.Civilian, tc.text)
	}
}

func TestAttribute(t *testing.T) {
	cases := []struct {
		text, who, typ string
	}{
		{"Russian forces shelled Kharkiv, according to the regional governor", "the regional governor", model.AttributionOfficial},
		{"Residents said the shelling lasted hours", "Residents", model.AttributionLocal},
		{"Drones hit the port, Reuters reported", "Reuters", model.AttributionMedia},
		{"Russian forces shelled Kharkiv", "", model.AttributionUnattributed},
	}
	for _, tc := range cases {
		who, typ := Attribute(tc.text)
		assert.Equal(t, tc.who, who, tc.text)
		assert.Equal(t, tc.typ, typ, tc.text)
	}
}

func TestSelectStrategy(t *testing.T) {
	assert.Equal(t, StrategyRule, SelectStrategy("Russian forces shelled Kharkiv"))
	assert.Equal(t, StrategyRule, SelectStrategy("at least 5 killed"))
	assert.Equal(t, StrategyModel, SelectStrategy("heavy fighting continued near the border"))
	assert.Equal(t, StrategyNone, SelectStrategy("the weather was mild"))
	// pure: same answer every time
	for i := 0; i < 3; i++ {
		assert.Equal(t, StrategyRule, SelectStrategy("Russian forces shelled Kharkiv"))
	}
}

func TestMatchRules(t *testing.T) {
	cases := []struct {
		text                            string
		actor, action, target, location string
		confidence                      float64
	}{
		{"Russian forces shelled a school in Kharkiv.", "Russian forces", "shelling", "school", "Kharkiv", 0.9},
		{"In Kharkiv, Russian forces shelled a school", "Russian forces", "shelling", "school", "Kharkiv", 0.85},
		{"A hospital was struck by Russian missiles in Kherson", "Russian", "strike", "hospital", "Kherson", 0.8},
		{"Forces X launched strikes on Y's power grid", "Forces X", "strike", "power grid", "Y", 0.75},
		{"Israeli warplanes reportedly bombed a camp", "Israeli warplanes", "strike", "camp", "", 0.75},
	}
	for _, tc := range cases {
		got := matchRules(tc.text)
		require.Len(t, got, 1, tc.text)
		c := got[0]
		assert.Equal(t, tc.actor, c.Actor, tc.text)
		assert.Equal(t, tc.action, c.Action, tc.text)
		assert.Equal(t, tc.target, c.Target, tc.text)
		assert.Equal(t, tc.location, c.LocationText, tc.text)
		assert.Equal(t, tc.confidence, c.Confidence, tc.text)
		assert.Equal(t, model.MethodRule, c.Method)
	}
	assert.Empty(t, matchRules("Officials said talks would continue"))
}

func TestExtractStrikeAndCasualtyScenario(t *testing.T) {
	x := newExtractor(t, nil)
	d := doc("doc-1", "Forces X launched strikes on Y's power grid yesterday; at least 5 killed")

	events, err := x.Extract(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, events, 2)

	strike, cas := events[0], events[1]
	assert.Equal(t, "strike", strike.Action)
	assert.Equal(t, "Forces X", strike.Actor)
	assert.Equal(t, "power grid", strike.Target)
	assert.Equal(t, "Y", strike.LocationText)
	require.NotNil(t, strike.Zone)
	assert.Equal(t, model.ZoneKey{Country: "YY", Region: "North"}, *strike.Zone)
	assert.True(t, strike.Has(model.FlagAirstrike))
	assert.True(t, strike.Has(model.FlagInfrastructure))
	assert.False(t, strike.NeedsLocation())
	assert.Equal(t, time.Date(2025, 3, 13, 12, 0, 0, 0, time.UTC), strike.EstimatedAt)

	assert.Equal(t, "casualties", cas.Action)
	assert.Equal(t, 5, cas.Killed)
	assert.Equal(t, "Forces X", cas.Actor, "actor carried from the previous clause")
	assert.Equal(t, "Y", cas.LocationText)
	assert.Equal(t, strike.EstimatedAt, cas.EstimatedAt)

	for _, ev := range events {
		assert.Equal(t, "doc-1", ev.DocumentID)
		assert.Equal(t, "wire", ev.SourceID)
		assert.Equal(t, model.AttributionUnattributed, ev.AttributionType)
		assert.GreaterOrEqual(t, ev.Severity, model.MinScore)
		assert.LessOrEqual(t, ev.Severity, model.MaxScore)
		assert.GreaterOrEqual(t, ev.Contribution, model.MinScore)
		assert.LessOrEqual(t, ev.Contribution, model.MaxScore)
	}
	assert.Greater(t, strike.Severity, cas.Severity)

	again, err := x.Extract(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, events[0].ID, again[0].ID)
	assert.Equal(t, events[1].ID, again[1].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestExtractKeepsUnlocatedEvents(t *testing.T) {
	x := newExtractor(t, nil)

	events, err := x.Extract(context.Background(), doc("doc-2", "Militants ambushed a convoy, killing 4 soldiers."))
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "ambush", ev.Action)
	assert.Equal(t, 4, ev.Killed)
	assert.True(t, ev.NeedsLocation())
	assert.Nil(t, ev.Zone)
	assert.False(t, ev.Has(model.FlagCivilianCasualties))

	// a place named elsewhere in the document supplies a fallback zone
	events, err = x.Extract(context.Background(), doc("doc-3", "Militants ambushed a convoy, killing 4 soldiers. The area lies north of Kharkiv."))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].NeedsLocation())
	require.NotNil(t, events[0].Zone)
	assert.Equal(t, "UA", events[0].Zone.Country)
	assert.Nil(t, events[0].Coordinates)
}

func TestExtractRejectsInvalidDocument(t *testing.T) {
	x := newExtractor(t, nil)
	_, err := x.Extract(context.Background(), doc("doc-4", "   "))
	assert.ErrorIs(t, err, ErrInvalidDocument)

	events, err := x.Extract(context.Background(), doc("doc-5", "The weather was mild. Markets opened higher."))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func analyzerServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAnalyzer(t *testing.T, url string) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(config.AnalyzerConfig{BaseURL: url, APIKey: "secret", Model: "test-model", Timeout: time.Second, MaxSpanChars: 1200}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return a
}

func TestExtractFallsBackToAnalyzer(t *testing.T) {
	srv := analyzerServer(t, `{"events":[{"actor":"Russian forces","action":"air strike","target":"","location":"Kharkiv","killed":2,"confidence":0.9}]}`)
	x := newExtractor(t, newAnalyzer(t, srv.URL))

	events, err := x.Extract(context.Background(), doc("doc-6", "Heavy fighting continued near the border overnight."))
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, model.MethodModel, ev.Method)
	assert.Equal(t, "strike", ev.Action)
	assert.Equal(t, 2, ev.Killed)
	assert.Equal(t, 0.7, ev.Confidence, "model confidence is capped below rule confidence")
	require.NotNil(t, ev.Zone)
	assert.Equal(t, "Kharkiv", ev.Zone.Region)
}

func TestMalformedAnalyzerAnswerMeansNoEvent(t *testing.T) {
	for _, content := range []string{
		"not json at all",
		`{"events":[{"actor":"x"}]}`,
		`{"events":[{"action":"strike","killed":-3}]}`,
		`{"items":[]}`,
	} {
		srv := analyzerServer(t, content)
		a := newAnalyzer(t, srv.URL)
		_, err := a.Analyze(context.Background(), "fighting", "")
		assert.True(t, errors.Is(err, ErrMalformedResponse), content)

		x := newExtractor(t, a)
		events, err := x.Extract(context.Background(), doc("doc-7", "Heavy fighting continued near the border."))
		require.NoError(t, err, content)
		assert.Empty(t, events, content)
	}
}

func TestAnalyzerUnreachableIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	x := newExtractor(t, newAnalyzer(t, srv.URL))
	events, err := x.Extract(context.Background(), doc("doc-8", "Heavy fighting continued. Russian forces shelled Kharkiv."))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.MethodRule, events[0].Method)
}

func TestSeverityAndContribution(t *testing.T) {
	low := Severity("interception", nil, 0, 0)
	high := Severity("strike", map[string]bool{model.FlagAirstrike: true, model.FlagCivilianCasualties: true}, 120, 300)
	assert.Equal(t, 2, low)
	assert.Equal(t, model.MaxScore, high)
	assert.Equal(t, model.TierLow, Tier(low))
	assert.Equal(t, model.TierCritical, Tier(high))
	assert.Equal(t, 1, Severity("clash", map[string]bool{model.FlagCeasefire: true}, 0, 0))

	assert.Equal(t, 8, Contribution(8, ref.Add(-time.Hour), ref))
	assert.Equal(t, 3, Contribution(8, ref.Add(-10*24*time.Hour), ref))
}

func TestClassifierConfiguredRules(t *testing.T) {
	c, err := NewClassifier(config.ExtractConfig{
		Keywords: []config.KeywordRule{{Flag: "is_naval", When: []string{"ship", "sank"}}},
		Regex:    []config.RegexRule{{Flag: "is_cross_border", Expr: `(?i)across the border`}},
	})
	require.NoError(t, err)
	flags := c.Flags("A drone sank the ship after firing across the border")
	assert.True(t, flags["is_naval"])
	assert.True(t, flags["is_cross_border"])
	assert.True(t, flags[model.FlagDrone])
	assert.False(t, flags[model.FlagInfrastructure])
	other := c.Flags("the ship was reported missing")
	assert.False(t, other["is_naval"])
	assert.False(t, other[model.FlagInfrastructure], "port must not match inside reported")

	_, err = NewClassifier(config.ExtractConfig{Regex: []config.RegexRule{{Flag: "bad", Expr: "("}}})
	assert.Error(t, err)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := "Удар по Харкову"
	for n := 1; n < len(s); n++ {
		got := truncate(s, n)
		assert.True(t, utf8.ValidString(got), "n=%d", n)
		assert.LessOrEqual(t, len(got), n)
	}
	assert.Equal(t, s, truncate(s, len(s)))
	assert.Equal(t, s, truncate(s, 0))

	long := strings.Repeat("é", 100)
	assert.True(t, utf8.ValidString(cleanTarget(long)))
	assert.LessOrEqual(t, len(cleanTarget(long)), 120)
}

func TestAnalyzerExcerptIsValidUTF8(t *testing.T) {
	var sent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sent = req.Messages[len(req.Messages)-1].Content
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": `{"events":[]}`}}},
		})
	}))
	defer srv.Close()

	a, err := NewAnalyzer(config.AnalyzerConfig{BaseURL: srv.URL, Model: "test-model", Timeout: time.Second, MaxSpanChars: 14}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = a.Analyze(context.Background(), "Удар по Харкову", "")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(sent), sent)
	assert.LessOrEqual(t, len(sent), 14)
}

func TestDetectLanguage(t *testing.T) {
	cases := map[string]string{
		"Russian forces shelled a school in Kharkiv, officials said.": "en",
		"Forces X launched strikes on Y's power grid; at least 5 killed": "en",
		"Российские войска обстреляли Харьков":                        "ru",
		"Російські війська обстріляли Харків і область":              "uk",
		"قصفت القوات مدينة حلب":                                         "ar",
		"Las fuerzas rusas bombardearon la ciudad, según el gobierno":   "es",
		"Les forces russes ont bombardé la ville selon les autorités":   "fr",
		"Die Armee hat die Stadt beschossen, wurden mit der Artillerie": "de",
		"공습으로 5명이 사망했다":                                                "ko",
		"":                                                              "en",
		"12:30 - 5/7":                                                   "en",
	}
	for text, want := range cases {
		assert.Equal(t, want, DetectLanguage(text).String(), text)
	}
}

func translatingServer(t *testing.T, translation string) (*httptest.Server, *int) {
	t.Helper()
	translations := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		content := `{"events":[]}`
		if strings.HasPrefix(req.Messages[0].Content, "Translate") {
			*translations++
			assert.Contains(t, req.Messages[0].Content, `"ru"`)
			content = translation
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, translations
}

func TestExtractTranslatesForeignDocuments(t *testing.T) {
	srv, translations := translatingServer(t, "Russian forces shelled Kharkiv.")
	x := newExtractor(t, newAnalyzer(t, srv.URL))

	events, err := x.Extract(context.Background(), doc("doc-ru", "Российские войска обстреляли Харьков."))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, *translations)
	assert.Equal(t, "Russian forces", events[0].Actor)
	assert.Equal(t, "shelling", events[0].Action)
	assert.Contains(t, events[0].Span, "shelled Kharkiv")
}

func TestExtractSkipsForeignDocumentsWithoutTranslator(t *testing.T) {
	x := newExtractor(t, nil)
	events, err := x.Extract(context.Background(), doc("doc-ru", "Российские войска обстреляли Харьков."))
	require.NoError(t, err)
	assert.Empty(t, events)

	// a tagged language is trusted over detection
	d := doc("doc-en", "Russian forces shelled Kharkiv.")
	d.Language = "ru"
	events, err = x.Extract(context.Background(), d)
	require.NoError(t, err)
	assert.Empty(t, events)
}
