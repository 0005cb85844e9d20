package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/util"
)

type lokiSink struct {
	cfg    config.LokiConfig
	client *http.Client
}

func NewLoki(cfg config.LokiConfig) Sink {
	to := cfg.Timeout
	if to == 0 {
		to = 10 * time.Second
	}
	return &lokiSink{cfg: cfg, client: util.NewHTTPClient(to)}
}

func (l *lokiSink) Name() string { return "loki" }

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

// Push writes events and groups as JSON log lines, one stream per label set.
func (l *lokiSink) Push(ctx context.Context, b Batch) error {
	if len(b.Events) == 0 && len(b.Groups) == 0 {
		return nil
	}

	streams := map[string]*lokiStream{}
	var order []string
	add := func(lbls map[string]string, ts time.Time, v any) {
		line, err := json.Marshal(v)
		if err != nil {
			return
		}
		k := fmt.Sprint(lbls)
		s, ok := streams[k]
		if !ok {
			s = &lokiStream{Stream: lbls}
			streams[k] = s
			order = append(order, k)
		}
		// Loki expects ns timestamp as a decimal string
		s.Values = append(s.Values, [2]string{fmt.Sprintf("%d", ts.UnixNano()), string(line)})
	}

	for _, e := range b.Events {
		lbls := map[string]string{
			"job":      l.cfg.Job,
			"kind":     "event",
			"source":   e.SourceID,
			"category": e.Category,
			"tier":     e.SeverityTier,
		}
		if e.Zone != nil {
			lbls["country"] = e.Zone.Country
		}
		add(lbls, e.CreatedAt, e)
	}
	for _, g := range b.Groups {
		lbls := map[string]string{
			"job":      l.cfg.Job,
			"kind":     "group",
			"country":  g.Zone.Country,
			"disputed": fmt.Sprint(g.Disputed),
		}
		add(lbls, g.UpdatedAt, g)
	}

	payload := struct {
		Streams []*lokiStream `json:"streams"`
	}{}
	for _, k := range order {
		payload.Streams = append(payload.Streams, streams[k])
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "encode loki payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(l.cfg.URL, "/")+"/loki/api/v1/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if l.cfg.TenantID != "" {
		req.Header.Set("X-Scope-OrgID", l.cfg.TenantID)
	}
	if ua := l.cfg.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "loki push")
	}

	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("loki push failed http %d", resp.StatusCode)
	}
	return nil
}
