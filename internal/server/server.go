// Package server is the operational HTTP surface: trigger a cycle, read zone
// scores and recent events, inspect and reactivate sources, scrape metrics
// and follow the live stream.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/metrics"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/pipeline"
	"github.com/steliosspap/Argos-public-sub005/internal/publish"
	"github.com/steliosspap/Argos-public-sub005/internal/store"
)

// Cycler runs one ingestion cycle.
type Cycler interface {
	Cycle(ctx context.Context) (pipeline.Report, error)
}

// Sources is the administrative view of the source registry.
type Sources interface {
	Get(ctx context.Context, id string) (model.Source, error)
	List(ctx context.Context) ([]model.Source, error)
	Reactivate(ctx context.Context, id string) (model.Source, error)
}

// Reader is the read side of the store the API serves from.
type Reader interface {
	store.EventStore
	store.ZoneStore
}

// Deps are the collaborators behind the routes. Hub may be nil, which
// disables the stream endpoint.
type Deps struct {
	Cycler  Cycler
	Sources Sources
	Store   Reader
	Hub     *publish.Hub
	Metrics *metrics.Metrics
}

type Server struct {
	engine *gin.Engine
	server *http.Server
	deps   Deps

	staleAfter  time.Duration
	eventWindow time.Duration
	log         *zap.Logger
	now         func() time.Time
}

// New builds the router. A score older than staleAfter is reported stale;
// eventWindow is the default lookback of the events route.
func New(cfg config.ServerConfig, deps Deps, staleAfter, eventWindow time.Duration, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:      engine,
		deps:        deps,
		staleAfter:  staleAfter,
		eventWindow: eventWindow,
		log:         log.Named("server"),
		now:         time.Now,
	}
	s.routes()
	s.server = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if s.deps.Hub != nil {
			body["subscribers"] = s.deps.Hub.Subscribers()
			body["dropped"] = s.deps.Hub.Dropped()
		}
		c.JSON(http.StatusOK, body)
	})
	s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	if s.deps.Hub != nil {
		s.engine.GET("/ws", s.handleStream)
	}

	api := s.engine.Group("/api/v1")
	api.POST("/cycles", s.triggerCycle)
	api.GET("/zones", s.listZones)
	api.GET("/zones/:country/score", s.zoneScore)
	api.GET("/zones/:country/events", s.zoneEvents)
	api.GET("/sources", s.listSources)
	api.GET("/sources/:id/health", s.sourceHealth)
	api.POST("/sources/:id/reactivate", s.reactivateSource)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Serve() error {
	s.log.Info("listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.server.Shutdown(ctx) }

// ScoreView is a zone score as served to consumers. A zone that was never
// scored is served at the floor with Scored unset.
type ScoreView struct {
	model.ZoneScore
	Stale  bool `json:"stale"`
	Scored bool `json:"scored"`
}

func (s *Server) view(zs model.ZoneScore) ScoreView {
	return ScoreView{ZoneScore: zs, Stale: s.staleAfter > 0 && s.now().Sub(zs.CalculatedAt) > s.staleAfter, Scored: true}
}

func unscored(zone model.ZoneKey) ScoreView {
	return ScoreView{
		ZoneScore: model.ZoneScore{Zone: zone, Score: model.MinScore, PreviousScore: model.MinScore, Level: model.MinScore},
		Stale:     true,
	}
}

func zoneParam(c *gin.Context) model.ZoneKey {
	return model.ZoneKey{
		Country: strings.ToUpper(strings.TrimSpace(c.Param("country"))),
		Region:  strings.TrimSpace(c.Query("region")),
	}
}

func abort(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func (s *Server) triggerCycle(c *gin.Context) {
	if s.deps.Cycler == nil {
		abort(c, http.StatusServiceUnavailable, errors.New("ingestion disabled"))
		return
	}
	// the cycle outlives a client that hangs up
	report, err := s.deps.Cycler.Cycle(context.WithoutCancel(c.Request.Context()))
	switch {
	case errors.Is(err, pipeline.ErrCycleRunning):
		abort(c, http.StatusConflict, err)
	case err != nil && !report.Interrupted:
		s.log.Error("triggered cycle failed", zap.Error(err))
		abort(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusOK, report)
	}
}

func (s *Server) listZones(c *gin.Context) {
	scores, err := s.deps.Store.ListZoneScores(c.Request.Context())
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	out := make([]ScoreView, 0, len(scores))
	for _, zs := range scores {
		out = append(out, s.view(zs))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) zoneScore(c *gin.Context) {
	zone := zoneParam(c)
	zs, err := s.deps.Store.GetZoneScore(c.Request.Context(), zone)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusOK, unscored(zone))
	case err != nil:
		abort(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusOK, s.view(zs))
	}
}

func (s *Server) zoneEvents(c *gin.Context) {
	window := s.eventWindow
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			abort(c, http.StatusBadRequest, errors.New("window must be a positive duration such as 24h"))
			return
		}
		window = d
	}
	zone := zoneParam(c)
	events, err := s.deps.Store.ListEventsByZone(c.Request.Context(), zone, s.now().Add(-window))
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"zone": zone, "window": window.String(), "events": events})
}

func (s *Server) listSources(c *gin.Context) {
	all, err := s.deps.Sources.List(c.Request.Context())
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, all)
}

func (s *Server) sourceHealth(c *gin.Context) {
	src, err := s.deps.Sources.Get(c.Request.Context(), c.Param("id"))
	s.respondSource(c, src, err)
}

func (s *Server) reactivateSource(c *gin.Context) {
	src, err := s.deps.Sources.Reactivate(c.Request.Context(), c.Param("id"))
	s.respondSource(c, src, err)
}

func (s *Server) respondSource(c *gin.Context, src model.Source, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		abort(c, http.StatusNotFound, errors.New("unknown source "+c.Param("id")))
	case err != nil:
		abort(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusOK, src)
	}
}
