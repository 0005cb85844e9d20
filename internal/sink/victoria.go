package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/util"
)

type victoriaSink struct {
	cfg    config.VictoriaConfig
	client *http.Client
}

func NewVictoria(cfg config.VictoriaConfig) Sink {
	to := cfg.Timeout
	if to == 0 {
		to = 10 * time.Second
	}
	return &victoriaSink{
		cfg:    cfg,
		client: util.NewHTTPClient(to),
	}
}

func (v *victoriaSink) Name() string { return "victoria" }

// Push imports zone scores as samples, plus per-zone event counts by
// severity tier for the events of the batch.
func (v *victoriaSink) Push(ctx context.Context, b Batch) error {
	if len(b.Scores) == 0 && len(b.Events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, s := range b.Scores {
		lbls := labels(map[string]string{"country": s.Zone.Country, "region": s.Zone.Region})
		ts := s.CalculatedAt.UnixMilli()
		fmt.Fprintf(&buf, "argos_zone_escalation_score{%s} %d %d\n", lbls, s.Score, ts)
		fmt.Fprintf(&buf, "argos_zone_previous_score{%s} %d %d\n", lbls, s.PreviousScore, ts)
	}

	type key struct{ country, region, tier string }
	counts := map[key]int{}
	var latest time.Time
	for _, e := range b.Events {
		z := e.ZoneOrZero()
		counts[key{z.Country, z.Region, e.SeverityTier}]++
		if e.CreatedAt.After(latest) {
			latest = e.CreatedAt
		}
	}
	keys := make([]key, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	for _, k := range keys {
		lbls := labels(map[string]string{"country": k.country, "region": k.region, "tier": k.tier})
		fmt.Fprintf(&buf, "argos_zone_events{%s} %d %d\n", lbls, counts[k], latest.UnixMilli())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(v.cfg.URL, "/")+"/api/v1/import/prometheus", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if ua := v.cfg.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "victoria push")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("victoria push failed: %s", resp.Status)
	}
	return nil
}

// labels renders a label set in sorted order, skipping empty values.
func labels(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k, val := range m {
		if val != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `%s="%s"`, k, escape(m[k]))
	}
	return b.String()
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}
