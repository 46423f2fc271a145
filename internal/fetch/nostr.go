package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/nostr"
)

// Default number of events asked for per author query.
const defaultQueryLimit = 50

// NostrSource maps relay events for an author into candidate feed items.
type NostrSource struct {
	pool *nostr.Pool
}

func NewNostrSource(pool *nostr.Pool) *NostrSource {
	return &NostrSource{pool: pool}
}

// Articles fetches the author's long-form posts published after since
// (or unbounded on first fetch).
func (s *NostrSource) Articles(ctx context.Context, feedID, authorKey string, since *time.Time) ([]feedz.FeedItem, error) {
	return s.authorItems(ctx, feedID, authorKey, nostr.KindLongFormArticle, since)
}

// Videos fetches the author's video posts published after since.
func (s *NostrSource) Videos(ctx context.Context, feedID, authorKey string, since *time.Time) ([]feedz.FeedItem, error) {
	return s.authorItems(ctx, feedID, authorKey, nostr.KindVideo, since)
}

func (s *NostrSource) authorItems(ctx context.Context, feedID, authorKey string, kind int, since *time.Time) ([]feedz.FeedItem, error) {
	filter := nostr.Filter{
		Authors: []string{authorKey},
		Kinds:   []int{kind},
		Limit:   defaultQueryLimit,
	}
	if since != nil {
		unix := since.Unix()
		filter.Since = &unix
	}

	events, err := s.pool.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error querying relays: %s", err)
	}

	items := make([]feedz.FeedItem, 0, len(events))
	for _, ev := range events {
		items = append(items, eventToItem(feedID, ev))
	}

	return items, nil
}

func eventToItem(feedID string, ev nostr.Event) feedz.FeedItem {
	title := ev.TagValue("title")
	if title == "" {
		title = Sanitize(ev.Content)
		if len(title) > 80 {
			// Cut on a rune boundary so the title stays valid UTF-8.
			cut := 80
			for cut > 0 && !utf8.RuneStart(title[cut]) {
				cut--
			}
			title = title[:cut]
		}
	}

	published := time.Unix(ev.CreatedAt, 0)
	// Long-form events may carry the original publish time separately
	// from the (re-broadcast) event timestamp.
	if ts := ev.TagValue("published_at"); ts != "" {
		var unix int64
		if _, err := fmt.Sscanf(ts, "%d", &unix); err == nil && unix > 0 {
			published = time.Unix(unix, 0)
		}
	}

	mediaURL := ev.TagValue("url")
	if mediaURL == "" {
		mediaURL = ev.TagValue("imeta")
	}

	return feedz.FeedItem{
		FeedID:      feedID,
		GUID:        ev.ID,
		Title:       Sanitize(title),
		Content:     ev.Content,
		Author:      ev.PubKey,
		Link:        ev.TagValue("r"),
		MediaURL:    mediaURL,
		PublishedAt: &published,
	}
}

// Profile holds the display fields of an author's kind-0 metadata.
type Profile struct {
	Name    string `json:"name"`
	About   string `json:"about"`
	Picture string `json:"picture"`
}

// Profile fetches the author's latest metadata event. Absence returns
// nil, nil.
func (s *NostrSource) Profile(ctx context.Context, authorKey string) (*Profile, error) {
	events, err := s.pool.Query(ctx, nostr.Filter{
		Authors: []string{authorKey},
		Kinds:   []int{nostr.KindProfile},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("error querying relays: %s", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	var p Profile
	if err := json.Unmarshal([]byte(events[0].Content), &p); err != nil {
		return nil, fmt.Errorf("error decoding profile: %s", err)
	}

	return &p, nil
}
