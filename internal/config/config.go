package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

type LokiConfig struct {
	URL       string        `yaml:"url"`       // http://loki:3100
	TenantID  string        `yaml:"tenant_id"` // optional multi-tenancy
	Job       string        `yaml:"job"`       // label value, default: argos
	Timeout   time.Duration `yaml:"timeout"`   // request timeout
	UserAgent string        `yaml:"user_agent"`
}

type VictoriaConfig struct {
	URL       string        `yaml:"url"`     // http://victoria-metrics:8428
	Timeout   time.Duration `yaml:"timeout"` // request timeout
	UserAgent string        `yaml:"user_agent"`
}

// SourceConfig seeds the source registry. Sources added at runtime by the
// feedback loop are not listed here.
type SourceConfig struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Kind        string        `yaml:"kind"`     // feed | search
	Endpoint    string        `yaml:"endpoint"` // search endpoints may contain {query}
	Query       string        `yaml:"query"`
	Category    string        `yaml:"category"`
	Reliability float64       `yaml:"reliability"` // 0..100
	Bias        float64       `yaml:"bias"`        // -1..1
	Interval    time.Duration `yaml:"interval"`    // minimum time between fetches
}

type FetchConfig struct {
	Concurrency      int           `yaml:"concurrency"`       // global cap on in-flight fetches
	QueueSize        int           `yaml:"queue_size"`        // bounded work queue of sources
	Timeout          time.Duration `yaml:"timeout"`           // per attempt
	MaxRetries       int           `yaml:"max_retries"`       // attempts per fetch, including the first
	Backoff          time.Duration `yaml:"backoff"`           // initial backoff (e.g. 500ms)
	MaxBackoff       time.Duration `yaml:"max_backoff"`       // cap (e.g. 5s)
	FailureThreshold int           `yaml:"failure_threshold"` // consecutive failures before deactivation
	DefaultInterval  time.Duration `yaml:"default_interval"`
	UserAgent        string        `yaml:"user_agent"`
	SearchAPIKey     string        `yaml:"search_api_key"`  // bearer token for search endpoints
	ProcessTimeout   time.Duration `yaml:"process_timeout"` // budget for one document's downstream pass
}

type DedupConfig struct {
	TTL     time.Duration `yaml:"ttl"`      // e.g. 168h (7d)
	MaxKeys int           `yaml:"max_keys"` // cap to bound memory
}

type AnalyzerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"base_url"` // OpenAI-compatible, e.g. https://api.openai.com/v1
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxSpanChars int           `yaml:"max_span_chars"`
}

// KeywordRule sets Flag when ALL words in When appear, or ANY word in Any appears
// (case-insensitive).
type KeywordRule struct {
	Flag string   `yaml:"flag"`
	When []string `yaml:"when"`
	Any  []string `yaml:"any"`
}

type RegexRule struct {
	Flag string `yaml:"flag"`
	Expr string `yaml:"expr"`
}

type ExtractConfig struct {
	Analyzer         AnalyzerConfig `yaml:"analyzer"`
	Keywords         []KeywordRule  `yaml:"keywords"`
	Regex            []RegexRule    `yaml:"regex"`
	ContextSentences int            `yaml:"context_sentences"`
}

type EntityConfig struct {
	Aliases map[string]string `yaml:"aliases"` // acronym -> expansion, merged over the built-in table
}

type Place struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	Country string   `yaml:"country"`
	Region  string   `yaml:"region"`
	Lat     float64  `yaml:"lat"`
	Lon     float64  `yaml:"lon"`
}

type GeoConfig struct {
	Places         []Place `yaml:"places"`
	DisableBuiltin bool    `yaml:"disable_builtin"`
}

type EscalationConfig struct {
	Window           time.Duration `yaml:"window"`              // events considered per recompute (12h)
	DecayWindow      time.Duration `yaml:"decay_window"`        // idle time before decay starts (12h)
	DecayRatePerHour float64       `yaml:"decay_rate_per_hour"` // fraction per hour past the decay window
	RiseWeight       float64       `yaml:"rise_weight"`         // weight of incoming when rising (0.25)
	FallWeight       float64       `yaml:"fall_weight"`         // weight of incoming when cooling (0.10)
	HistorySize      int           `yaml:"history_size"`        // counted event ids kept per zone
	Interval         time.Duration `yaml:"interval"`            // periodic recompute cadence
	ExcludeUnlocated bool          `yaml:"exclude_unlocated"`   // drop needs_location events from scoring
}

type GroupingWeights struct {
	Actor    float64 `yaml:"actor"`
	Location float64 `yaml:"location"`
	Action   float64 `yaml:"action"`
	Time     float64 `yaml:"time"`
	Text     float64 `yaml:"text"`
}

type GroupingConfig struct {
	Threshold float64         `yaml:"threshold"`
	Window    time.Duration   `yaml:"window"`
	Weights   GroupingWeights `yaml:"weights"`
}

type FeedbackConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Backend            string        `yaml:"backend"` // memory | redis
	RedisURL           string        `yaml:"redis_url"`
	Queue              string        `yaml:"queue"`
	Capacity           int           `yaml:"capacity"` // memory backend only
	MinMentions        int64         `yaml:"min_mentions"`
	SearchEndpoint     string        `yaml:"search_endpoint"` // must contain {query}
	MaxSourcesPerCycle int           `yaml:"max_sources_per_cycle"`
	SourceInterval     time.Duration `yaml:"source_interval"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // memory | sqlite | postgres
	DSN    string `yaml:"dsn"`
}

type ServerConfig struct {
	ListenAddress string        `yaml:"listen_address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

type MetricsConfig struct {
	Enable bool `yaml:"enable"`
}

type Config struct {
	Interval   time.Duration    `yaml:"interval"` // ingestion cycle cadence
	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Extract    ExtractConfig    `yaml:"extract"`
	Entity     EntityConfig     `yaml:"entity"`
	Geo        GeoConfig        `yaml:"geo"`
	Escalation EscalationConfig `yaml:"escalation"`
	Grouping   GroupingConfig   `yaml:"grouping"`
	Feedback   FeedbackConfig   `yaml:"feedback"`
	Loki       LokiConfig       `yaml:"loki"`
	Victoria   VictoriaConfig   `yaml:"victoria"`
	Sources    []SourceConfig   `yaml:"sources"`
}

// Load reads the YAML file at path, expands ${VAR} references (a .env file
// next to the working directory is honoured), applies defaults and validates.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, eris.Wrapf(err, "read config %s", path)
	}
	return Parse(b)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(b []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &c); err != nil {
		return Config{}, eris.Wrap(err, "parse yaml")
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Default returns a configuration with every default applied and no sources.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

func (c *Config) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = 15 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":9108"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	f := &c.Fetch
	if f.Concurrency <= 0 {
		f.Concurrency = 8
	}
	if f.QueueSize <= 0 {
		f.QueueSize = 64
	}
	if f.Timeout == 0 {
		f.Timeout = 15 * time.Second
	}
	if f.MaxRetries <= 0 {
		f.MaxRetries = 3
	}
	if f.Backoff == 0 {
		f.Backoff = 500 * time.Millisecond
	}
	if f.MaxBackoff == 0 {
		f.MaxBackoff = 5 * time.Second
	}
	if f.FailureThreshold <= 0 {
		f.FailureThreshold = 5
	}
	if f.DefaultInterval == 0 {
		f.DefaultInterval = 10 * time.Minute
	}
	if f.UserAgent == "" {
		f.UserAgent = "argos-ingester/1.0"
	}
	if f.ProcessTimeout == 0 {
		f.ProcessTimeout = 2 * time.Minute
	}

	if c.Dedup.TTL == 0 {
		c.Dedup.TTL = 168 * time.Hour
	}
	if c.Dedup.MaxKeys <= 0 {
		c.Dedup.MaxKeys = 50000
	}

	a := &c.Extract.Analyzer
	if a.Timeout == 0 {
		a.Timeout = 20 * time.Second
	}
	if a.Model == "" {
		a.Model = "gpt-4o-mini"
	}
	if a.MaxSpanChars <= 0 {
		a.MaxSpanChars = 1200
	}
	if c.Extract.ContextSentences <= 0 {
		c.Extract.ContextSentences = 1
	}

	e := &c.Escalation
	if e.Window == 0 {
		e.Window = 12 * time.Hour
	}
	if e.DecayWindow == 0 {
		e.DecayWindow = 12 * time.Hour
	}
	if e.DecayRatePerHour == 0 {
		e.DecayRatePerHour = 0.02
	}
	if e.RiseWeight == 0 {
		e.RiseWeight = 0.25
	}
	if e.FallWeight == 0 {
		e.FallWeight = 0.10
	}
	if e.HistorySize <= 0 {
		e.HistorySize = 100
	}
	if e.Interval == 0 {
		e.Interval = 5 * time.Minute
	}

	g := &c.Grouping
	if g.Threshold == 0 {
		g.Threshold = 0.7
	}
	if g.Window == 0 {
		g.Window = 6 * time.Hour
	}
	if g.Weights == (GroupingWeights{}) {
		g.Weights = GroupingWeights{Actor: 0.25, Location: 0.25, Action: 0.2, Time: 0.15, Text: 0.15}
	}

	fb := &c.Feedback
	if fb.Backend == "" {
		fb.Backend = "memory"
	}
	if fb.Queue == "" {
		fb.Queue = "argos:feedback_terms"
	}
	if fb.Capacity <= 0 {
		fb.Capacity = 1024
	}
	if fb.MinMentions <= 0 {
		fb.MinMentions = 3
	}
	if fb.MaxSourcesPerCycle <= 0 {
		fb.MaxSourcesPerCycle = 10
	}
	if fb.SourceInterval == 0 {
		fb.SourceInterval = 30 * time.Minute
	}

	if c.Loki.Job == "" {
		c.Loki.Job = "argos"
	}

	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Kind == "" {
			s.Kind = "feed"
		}
		if s.Interval == 0 {
			s.Interval = f.DefaultInterval
		}
		if s.Reliability == 0 {
			s.Reliability = 50
		}
		if s.Name == "" {
			s.Name = s.ID
		}
	}
}

// Validate reports configuration errors. These are fatal at startup: the
// pipeline refuses to run half-configured.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	seen := map[string]bool{}
	for i, s := range c.Sources {
		if strings.TrimSpace(s.ID) == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: id is required", i))
		} else if seen[s.ID] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		if strings.TrimSpace(s.Endpoint) == "" {
			errs = append(errs, fmt.Errorf("sources[%d] %q: endpoint is required", i, s.ID))
		}
		switch s.Kind {
		case "feed":
		case "search":
			if s.Query == "" && !strings.Contains(s.Endpoint, "{query}") {
				errs = append(errs, fmt.Errorf("sources[%d] %q: search source needs a query", i, s.ID))
			}
		default:
			errs = append(errs, fmt.Errorf("sources[%d] %q: unknown kind %q", i, s.ID, s.Kind))
		}
		if s.Reliability < 0 || s.Reliability > 100 {
			errs = append(errs, fmt.Errorf("sources[%d] %q: reliability must be within [0,100]", i, s.ID))
		}
		if s.Bias < -1 || s.Bias > 1 {
			errs = append(errs, fmt.Errorf("sources[%d] %q: bias must be within [-1,1]", i, s.ID))
		}
	}

	if a := c.Extract.Analyzer; a.Enabled {
		if strings.TrimSpace(a.BaseURL) == "" {
			errs = append(errs, errors.New("extract.analyzer.base_url is required when the analyzer is enabled"))
		}
		if strings.TrimSpace(a.APIKey) == "" {
			errs = append(errs, errors.New("extract.analyzer.api_key is required when the analyzer is enabled"))
		}
	}

	e := c.Escalation
	if e.RiseWeight <= 0 || e.RiseWeight > 1 {
		errs = append(errs, errors.New("escalation.rise_weight must be within (0,1]"))
	}
	if e.FallWeight <= 0 || e.FallWeight > 1 {
		errs = append(errs, errors.New("escalation.fall_weight must be within (0,1]"))
	}
	if e.DecayRatePerHour < 0 || e.DecayRatePerHour >= 1 {
		errs = append(errs, errors.New("escalation.decay_rate_per_hour must be within [0,1)"))
	}
	if c.Grouping.Threshold <= 0 || c.Grouping.Threshold > 1 {
		errs = append(errs, errors.New("grouping.threshold must be within (0,1]"))
	}

	if fb := c.Feedback; fb.Enabled {
		if !strings.Contains(fb.SearchEndpoint, "{query}") {
			errs = append(errs, errors.New("feedback.search_endpoint must contain {query} when feedback is enabled"))
		}
		switch fb.Backend {
		case "memory":
		case "redis":
			if strings.TrimSpace(fb.RedisURL) == "" {
				errs = append(errs, errors.New("feedback.redis_url is required for the redis backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown feedback.backend %q", fb.Backend))
		}
	}
	return errors.Join(errs...)
}
