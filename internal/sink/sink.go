// Package sink pushes pipeline output to downstream stores.
package sink

import (
	"context"
	"strings"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

// Batch is everything one pipeline pass produced.
type Batch struct {
	Events []model.Event
	Groups []model.EventGroup
	Scores []model.ZoneScore
}

func (b Batch) Empty() bool {
	return len(b.Events) == 0 && len(b.Groups) == 0 && len(b.Scores) == 0
}

// Sink is the minimal interface all sinks must implement.
type Sink interface {
	Name() string
	Push(ctx context.Context, b Batch) error
}

// FromConfig builds the sinks whose URL is configured.
func FromConfig(loki config.LokiConfig, victoria config.VictoriaConfig) []Sink {
	var out []Sink
	if strings.TrimSpace(loki.URL) != "" {
		out = append(out, NewLoki(loki))
	}
	if strings.TrimSpace(victoria.URL) != "" {
		out = append(out, NewVictoria(victoria))
	}
	return out
}
