// Package fetch turns remote sources (RSS/Atom feeds and nostr author
// streams) into candidate feed items ready for ingestion.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
)

// Minimum spacing between requests to the same host, so a batch refresh
// doesn't hammer one origin.
const perHostInterval = 500 * time.Millisecond

// ParsedFeed is the result of fetching one RSS/Atom source.
type ParsedFeed struct {
	Title       string
	Description string
	Items       []feedz.FeedItem
}

// RSSFetcher fetches and parses RSS/Atom feeds with per-host throttling.
type RSSFetcher struct {
	parser *gofeed.Parser

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRSSFetcher() *RSSFetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = "nostr-feedz/1.0"

	return &RSSFetcher{
		parser:   parser,
		limiters: map[string]*rate.Limiter{},
	}
}

func (f *RSSFetcher) limiter(feedURL string) *rate.Limiter {
	host := feedURL
	if u, err := url.Parse(feedURL); err == nil && u.Host != "" {
		host = u.Host
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(perHostInterval), 1)
		f.limiters[host] = l
	}

	return l
}

// Parse fetches the feed and maps its entries to candidate items. The
// returned items carry no row ids; the repository assigns them on insert.
func (f *RSSFetcher) Parse(ctx context.Context, feedID, feedURL string) (ParsedFeed, error) {
	if err := f.limiter(feedURL).Wait(ctx); err != nil {
		return ParsedFeed{}, fmt.Errorf("error waiting for host slot: %s", err)
	}

	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return ParsedFeed{}, fmt.Errorf("error parsing feed: %s", err)
	}

	items := make([]feedz.FeedItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		if guid == "" {
			continue
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}
		author := ""
		if item.Author != nil {
			author = item.Author.Name
		}
		mediaURL := ""
		for _, enc := range item.Enclosures {
			if enc.URL != "" {
				mediaURL = enc.URL
				break
			}
		}

		items = append(items, feedz.FeedItem{
			FeedID:      feedID,
			GUID:        guid,
			Title:       Sanitize(item.Title),
			Content:     content,
			Author:      Sanitize(author),
			Link:        item.Link,
			MediaURL:    mediaURL,
			PublishedAt: item.PublishedParsed,
		})
	}

	return ParsedFeed{
		Title:       Sanitize(parsed.Title),
		Description: Sanitize(parsed.Description),
		Items:       items,
	}, nil
}

var stripPolicy = bluemonday.StrictPolicy()

// Sanitize removes all html tags from the string, usually a title or
// description.
//
// Also limits the length of the string so there's not a massive chunk of
// text being output.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = stripPolicy.Sanitize(s)
	if len(s) > 2048 {
		s = s[:2048]
	}

	return s
}

// Common feed locations tried when the given URL is not itself a feed.
var wellKnownPaths = []string{"/feed", "/rss", "/feed.xml", "/rss.xml", "/index.xml", "/atom.xml"}

// Discover resolves a site URL to a parseable feed URL: first the URL as
// given, then a handful of well-known paths on the same host.
func (f *RSSFetcher) Discover(ctx context.Context, rawURL string) (string, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	if _, err := f.parser.ParseURLWithContext(rawURL, ctx); err == nil {
		return rawURL, nil
	}

	base, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("error parsing url: %s", err)
	}
	for _, path := range wellKnownPaths {
		candidate := base.Scheme + "://" + base.Host + path
		if _, err := f.parser.ParseURLWithContext(candidate, ctx); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no feed found at %s", rawURL)
}
