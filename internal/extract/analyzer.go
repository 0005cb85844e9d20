package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/metrics"
	"github.com/steliosspap/Argos-public-sub005/internal/util"
)

// ErrMalformedResponse marks an analyzer answer that does not have the
// expected shape. Callers treat it as "no event".
var ErrMalformedResponse = errors.New("malformed analyzer response")

const analyzerInstructions = `You extract armed-conflict events from news text.
Return a JSON object {"events": [...]} describing only events stated in the EXCERPT.
Each event has: actor, action (one of strike, shelling, missile_attack, drone_attack, attack, raid, ambush, clash, capture, advance, killing, abduction, interception, casualties), target, location, killed, injured, confidence (0..1).
Use empty strings and zeros for unknown fields. Return {"events": []} when nothing happened.`

const translateInstructions = `Translate the user's text from the language tagged %q into English.
Reply with the translation only, keeping names, numbers and dates as written.`

// Longer documents are cut before translation.
const maxTranslateBytes = 32 << 10

const responseSchema = `{
  "type": "object",
  "required": ["events"],
  "properties": {
    "events": {
      "type": "array",
      "maxItems": 10,
      "items": {
        "type": "object",
        "required": ["action"],
        "additionalProperties": false,
        "properties": {
          "actor":      {"type": "string", "maxLength": 200},
          "action":     {"type": "string", "minLength": 1, "maxLength": 60},
          "target":     {"type": "string", "maxLength": 200},
          "location":   {"type": "string", "maxLength": 200},
          "killed":     {"type": "integer", "minimum": 0},
          "injured":    {"type": "integer", "minimum": 0},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    }
  }
}`

// Record is one event as described by the analyzer.
type Record struct {
	Actor      string  `json:"actor"`
	Action     string  `json:"action"`
	Target     string  `json:"target"`
	Location   string  `json:"location"`
	Killed     int     `json:"killed"`
	Injured    int     `json:"injured"`
	Confidence float64 `json:"confidence"`
}

// Analyzer calls an OpenAI-compatible chat completions endpoint.
type Analyzer struct {
	client   *resty.Client
	model    string
	maxChars int
	schema   *jsonschema.Schema
	metrics  *metrics.Metrics
	log      *zap.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func NewAnalyzer(cfg config.AnalyzerConfig, m *metrics.Metrics, log *zap.Logger) (*Analyzer, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://argos.local/schemas/analyzer-response.json"
	if err := c.AddResource(url, strings.NewReader(responseSchema)); err != nil {
		return nil, eris.Wrap(err, "load analyzer schema")
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, eris.Wrap(err, "compile analyzer schema")
	}

	to := cfg.Timeout
	if to == 0 {
		to = 20 * time.Second
	}
	client := resty.NewWithClient(util.NewHTTPClient(to)).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &Analyzer{
		client:   client,
		model:    cfg.Model,
		maxChars: cfg.MaxSpanChars,
		schema:   schema,
		metrics:  m,
		log:      log.Named("analyzer"),
	}, nil
}

// Analyze asks for the events described in span; surrounding text is sent
// for reference only.
func (a *Analyzer) Analyze(ctx context.Context, span, surrounding string) ([]Record, error) {
	excerpt := "EXCERPT: " + span
	if surrounding != "" && surrounding != span {
		excerpt += "\nCONTEXT: " + surrounding
	}
	excerpt = truncate(excerpt, a.maxChars)

	var out chatResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: a.model,
			Messages: []chatMessage{
				{Role: "system", Content: analyzerInstructions},
				{Role: "user", Content: excerpt},
			},
			ResponseFormat: map[string]string{"type": "json_object"},
		}).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		a.metrics.AnalyzerCall("error")
		return nil, eris.Wrap(err, "analyzer request")
	}
	if resp.IsError() {
		a.metrics.AnalyzerCall("error")
		return nil, fmt.Errorf("analyzer http %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		a.metrics.AnalyzerCall("malformed")
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	recs, err := a.decode(out.Choices[0].Message.Content)
	if err != nil {
		a.metrics.AnalyzerCall("malformed")
		a.log.Debug("discarding analyzer answer", zap.Error(err))
		return nil, err
	}
	a.metrics.AnalyzerCall("ok")
	return recs, nil
}

// Translate renders text, written in the language tagged from, in English.
func (a *Analyzer) Translate(ctx context.Context, text, from string) (string, error) {
	var out chatResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: a.model,
			Messages: []chatMessage{
				{Role: "system", Content: fmt.Sprintf(translateInstructions, from)},
				{Role: "user", Content: truncate(text, maxTranslateBytes)},
			},
		}).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		a.metrics.AnalyzerCall("error")
		return "", eris.Wrap(err, "translation request")
	}
	if resp.IsError() {
		a.metrics.AnalyzerCall("error")
		return "", fmt.Errorf("translation http %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		a.metrics.AnalyzerCall("malformed")
		return "", fmt.Errorf("%w: empty translation", ErrMalformedResponse)
	}
	a.metrics.AnalyzerCall("ok")
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (a *Analyzer) decode(content string) ([]Record, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSpace(strings.TrimSuffix(content, "```"))

	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := a.schema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var body struct {
		Events []Record `json:"events"`
	}
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return body.Events, nil
}

var actionAliases = map[string]string{
	"airstrike": "strike", "air strike": "strike", "bombing": "strike", "strike": "strike",
	"shelling": "shelling", "artillery": "shelling", "missile": "missile_attack",
	"missile_attack": "missile_attack", "rocket attack": "missile_attack",
	"drone": "drone_attack", "drone_attack": "drone_attack", "drone strike": "drone_attack",
	"attack": "attack", "raid": "raid", "ambush": "ambush", "clash": "clash", "clashes": "clash",
	"capture": "capture", "advance": "advance", "killing": "killing", "abduction": "abduction",
	"interception": "interception", "casualties": "casualties",
}

func normalizeAction(s string) string {
	k := strings.ToLower(strings.TrimSpace(s))
	if a, ok := actionAliases[k]; ok {
		return a
	}
	return strings.ReplaceAll(k, " ", "_")
}
