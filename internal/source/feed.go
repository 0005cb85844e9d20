package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

type feedFetcher struct {
	client *resty.Client
}

// NewFeedFetcher reads RSS and Atom feeds.
func NewFeedFetcher(opts Options) Fetcher {
	return &feedFetcher{client: newClient(opts)}
}

func (f *feedFetcher) Name() string { return "feed" }

func (f *feedFetcher) Fetch(ctx context.Context, src model.Source) ([]Item, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8").
		Get(src.Endpoint)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	// a fresh parser per call; gofeed parsers are not safe for concurrent use
	feed, err := gofeed.NewParser().ParseString(resp.String())
	if err != nil {
		return nil, fmt.Errorf("%w: feed %s: %v", ErrParse, src.ID, err)
	}

	items := make([]Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		text := strings.TrimSpace(it.Content)
		if text == "" {
			text = strings.TrimSpace(it.Description)
		}
		if text == "" {
			text = strings.TrimSpace(it.Title)
		}
		if text == "" {
			continue
		}
		item := Item{URL: strings.TrimSpace(it.Link), Title: strings.TrimSpace(it.Title), Text: text}
		switch {
		case it.PublishedParsed != nil:
			t := it.PublishedParsed.UTC()
			item.PublishedAt = &t
		case it.UpdatedParsed != nil:
			t := it.UpdatedParsed.UTC()
			item.PublishedAt = &t
		}
		items = append(items, item)
	}
	return items, nil
}
