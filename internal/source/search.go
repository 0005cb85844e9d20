package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

type searchFetcher struct {
	client *resty.Client
	apiKey string
}

// NewSearchFetcher queries JSON search endpoints. The endpoint carries a
// {query} placeholder; without one the query is sent as the q parameter.
func NewSearchFetcher(opts Options) Fetcher {
	return &searchFetcher{client: newClient(opts), apiKey: strings.TrimSpace(opts.APIKey)}
}

func (s *searchFetcher) Name() string { return "search" }

// Expand fills the {query} placeholder of a search endpoint.
func Expand(endpoint, query string) string {
	return strings.ReplaceAll(endpoint, "{query}", url.QueryEscape(query))
}

func (s *searchFetcher) Fetch(ctx context.Context, src model.Source) ([]Item, error) {
	req := s.client.R().SetContext(ctx).SetHeader("Accept", "application/json")
	if s.apiKey != "" {
		req.SetAuthToken(s.apiKey)
	}
	endpoint := src.Endpoint
	if strings.Contains(endpoint, "{query}") {
		endpoint = Expand(endpoint, src.Query)
	} else if src.Query != "" {
		req.SetQueryParam("q", src.Query)
	}
	resp, err := req.Get(endpoint)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	rows, err := flatten(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", ErrParse, src.ID, err)
	}

	items := make([]Item, 0, len(rows))
	for _, m := range rows {
		title := pickStr(m, "title", "headline", "name")
		text := pickStr(m, "content", "body", "text", "description", "summary", "snippet")
		if text == "" {
			text = title
		}
		link := pickStr(m, "url", "link", "href")
		if text == "" && link == "" {
			continue
		}
		item := Item{URL: link, Title: title, Text: text}
		if ts := pickStr(m, "published_at", "publishedAt", "pubDate", "date", "seendate"); ts != "" {
			if t, err := parseTimeFlexible(ts); err == nil {
				item.PublishedAt = &t
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// flatten accepts either a top-level array or an object wrapping the rows.
func flatten(raw []byte) ([]map[string]any, error) {
	var top any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, err
	}
	var arr []any
	switch v := top.(type) {
	case []any:
		arr = v
	case map[string]any:
		for _, k := range []string{"results", "articles", "items", "data", "documents"} {
			if a, ok := v[k].([]any); ok {
				arr = a
				break
			}
		}
		if arr == nil {
			return nil, fmt.Errorf("unrecognized response shape (len=%d)", len(raw))
		}
	default:
		return nil, fmt.Errorf("unrecognized response shape (len=%d)", len(raw))
	}
	out := make([]map[string]any, 0, len(arr))
	for _, it := range arr {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}
