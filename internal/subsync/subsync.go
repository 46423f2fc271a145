// Package subsync lets a user's subscriptions follow them across
// installations: it snapshots local subscriptions into a signed,
// replaceable protocol event and merges remote snapshots back in
// without duplication or data loss.
package subsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/nostr"
)

// Build partitions the user's feeds into RSS URLs and protocol author
// keys, carrying forward each subscription's tags.
func Build(feeds []feedz.Feed, subs []feedz.Subscription) feedz.SubscriptionList {
	tagsByFeed := map[string][]string{}
	for _, sub := range subs {
		if sub.Tags == "" {
			continue
		}
		tagsByFeed[sub.FeedID] = strings.Split(sub.Tags, ",")
	}

	list := feedz.SubscriptionList{
		RSS:   []string{},
		Nostr: []string{},
		Tags:  map[string][]string{},
	}
	seenAuthors := map[string]bool{}
	for _, feed := range feeds {
		switch feed.Type {
		case feedz.FeedTypeRSS:
			list.RSS = append(list.RSS, feed.Source)
		case feedz.FeedTypeArticles, feedz.FeedTypeVideos:
			// Article and video streams of one author collapse into a
			// single portable entry.
			if seenAuthors[feed.Source] {
				continue
			}
			seenAuthors[feed.Source] = true
			list.Nostr = append(list.Nostr, feed.Source)
		}
		if tags, ok := tagsByFeed[feed.ID]; ok {
			list.Tags[feed.Source] = tags
		}
	}

	sort.Strings(list.RSS)
	sort.Strings(list.Nostr)

	return list
}

// Publish wraps the list as the content of the app's replaceable event
// and signs it. A publish failure is reported, not retried beyond the
// relay client's own behavior.
func Publish(ctx context.Context, pool *nostr.Pool, signer nostr.Signer, list feedz.SubscriptionList) error {
	if signer == nil {
		return nostr.ErrNoSigningMethod
	}

	content, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("error marshaling subscription list: %s", err)
	}

	// CreatedAt orders replaceable events; relays keep only the latest
	// per identity and kind.
	ev := &nostr.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindApplicationData,
		Tags:      [][]string{{"d", nostr.SubscriptionListDTag}},
		Content:   string(content),
	}
	if err := signer.SignEvent(ctx, ev); err != nil {
		return fmt.Errorf("error signing subscription list: %s", err)
	}

	if err := pool.Publish(ctx, ev); err != nil {
		return fmt.Errorf("error publishing subscription list: %s", err)
	}

	return nil
}

// Fetch retrieves the latest published list for an identity. Absence is
// the normal first-time state and returns nil, nil.
func Fetch(ctx context.Context, pool *nostr.Pool, pubkey string) (*feedz.SubscriptionList, error) {
	ev, err := pool.Latest(ctx, pubkey, nostr.KindApplicationData, nostr.SubscriptionListDTag)
	if err != nil {
		return nil, fmt.Errorf("error fetching subscription list: %s", err)
	}
	if ev == nil {
		return nil, nil
	}

	var list feedz.SubscriptionList
	if err := json.Unmarshal([]byte(ev.Content), &list); err != nil {
		return nil, fmt.Errorf("error decoding subscription list: %s", err)
	}

	return &list, nil
}
