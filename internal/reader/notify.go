package reader

import (
	"fmt"
	"log/slog"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
)

type (
	// Notification is one user-facing alert. Key is the dedup handle;
	// ItemID and URL give the host surface its "open" and "mark read"
	// affordances.
	Notification struct {
		Key    string
		Title  string
		Body   string
		ItemID string
		URL    string
	}

	// Notifier is the host surface notifications and the unread badge
	// are delivered to.
	Notifier interface {
		Notify(n Notification)
		SetBadge(unread int)
	}
)

// LogNotifier writes notifications to the log, for headless runs.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notification) {
	slog.Info("notification", "title", n.Title, "body", n.Body, "item_id", n.ItemID, "url", n.URL)
}

func (LogNotifier) SetBadge(unread int) {
	slog.Info("unread badge", "count", unread)
}

// notify applies the batching policy: small batches get one
// notification per item, anything larger collapses into a single
// summary. Keys recently delivered are suppressed.
func (r *Reader) notify(items []feedz.FeedItem) {
	if len(items) == 0 {
		return
	}

	if len(items) <= r.cfg.NotifyThreshold {
		for _, it := range items {
			r.send(Notification{
				Key:    "item:" + it.ID,
				Title:  it.Title,
				ItemID: it.ID,
				URL:    it.Link,
			})
		}
		return
	}

	r.send(Notification{
		Key:   "summary",
		Title: fmt.Sprintf("%d new items", len(items)),
		Body:  "Open the reader to catch up.",
	})
}

func (r *Reader) send(n Notification) {
	if _, ok := r.dedup.Get(n.Key); ok {
		return
	}
	r.dedup.Add(n.Key, struct{}{})
	r.notifier.Notify(n)
}
