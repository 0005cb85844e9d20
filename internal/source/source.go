// Package source retrieves raw documents from content sources. One Fetcher
// exists per source kind; the fetch pool drives them.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/util"
)

// Item is one document as delivered by a source, before deduplication.
type Item struct {
	URL         string
	Title       string
	Text        string
	PublishedAt *time.Time
}

type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, src model.Source) ([]Item, error)
}

// StatusError is a non-2xx HTTP answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// ErrParse marks a response that arrived but could not be understood.
var ErrParse = errors.New("unparseable response")

type Options struct {
	Timeout   time.Duration
	UserAgent string
	APIKey    string // sent as a bearer token by search fetchers
}

func newClient(opts Options) *resty.Client {
	to := opts.Timeout
	if to == 0 {
		to = 15 * time.Second
	}
	c := resty.NewWithClient(util.NewHTTPClient(to))
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		c.SetHeader("User-Agent", ua)
	}
	return c
}

func NewFromKind(kind model.SourceKind, opts Options) (Fetcher, error) {
	switch kind {
	case model.KindFeed, "":
		return NewFeedFetcher(opts), nil
	case model.KindSearch:
		return NewSearchFetcher(opts), nil
	default:
		return nil, fmt.Errorf("unknown source kind: %s", kind)
	}
}

// Set dispatches a source to the fetcher of its kind.
type Set map[model.SourceKind]Fetcher

func NewSet(opts Options) Set {
	return Set{
		model.KindFeed:   NewFeedFetcher(opts),
		model.KindSearch: NewSearchFetcher(opts),
	}
}

func (s Set) Fetch(ctx context.Context, src model.Source) ([]Item, error) {
	kind := src.Kind
	if kind == "" {
		kind = model.KindFeed
	}
	f, ok := s[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no fetcher for kind %q", ErrParse, kind)
	}
	return f.Fetch(ctx, src)
}

func checkStatus(resp *resty.Response) error {
	if resp.IsError() || resp.StatusCode()/100 != 2 {
		body := strings.TrimSpace(resp.String())
		if len(body) > 256 {
			body = body[:256]
		}
		return &StatusError{Code: resp.StatusCode(), Body: body}
	}
	return nil
}
