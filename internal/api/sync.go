package api

import (
	"net/http"
	"strings"

	v1 "github.com/privkeyio/Nostr-Feedz-sub000/api/feedz/v1"
	fzerrs "github.com/privkeyio/Nostr-Feedz-sub000/errors"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/server"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/subsync"
)

// postRefresh runs the batch engine for the caller's feeds right now.
func (s Server) postRefresh(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx     = r.Context()
		userKey = server.UserKey(ctx)
	)
	body, err := server.DecodeValid[v1.RefreshRequest](r.Body)
	if err != nil {
		return err
	}

	result, err := s.engine.RefreshUser(ctx, userKey, body.Force)
	if err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, v1.RefreshResponse{
		Total:     result.Total,
		Refreshed: result.Refreshed,
		Skipped:   result.Skipped,
		NewItems:  result.NewItems,
		Errors:    result.Errors,
	})
}

// getSyncList returns the portable snapshot of the caller's
// subscriptions, ready to be signed and published by the client.
func (s Server) getSyncList(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx     = r.Context()
		userKey = server.UserKey(ctx)
	)

	feeds, err := s.repo.SubscribedFeeds(ctx, userKey)
	if err != nil {
		return err
	}
	subs, err := s.repo.Subscriptions(ctx, userKey)
	if err != nil {
		return err
	}

	list := subsync.Build(feeds, subs)

	return server.WriteJSON(w, http.StatusOK, v1.SubscriptionList{
		RSS:   list.RSS,
		Nostr: list.Nostr,
		Tags:  list.Tags,
	})
}

// getSyncDiff compares the caller's local subscriptions against their
// latest published snapshot. Nothing is applied here; additions go
// through postSyncApply after explicit confirmation.
func (s Server) getSyncDiff(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx     = r.Context()
		userKey = server.UserKey(ctx)
	)

	feeds, err := s.repo.SubscribedFeeds(ctx, userKey)
	if err != nil {
		return err
	}
	subs, err := s.repo.Subscriptions(ctx, userKey)
	if err != nil {
		return err
	}
	local := subsync.Build(feeds, subs)

	remote, err := subsync.Fetch(ctx, s.pool, userKey)
	if err != nil {
		return fzerrs.E(err, http.StatusBadGateway)
	}

	resp := v1.SyncDiffResponse{ToAdd: []v1.Addition{}}
	if remote == nil {
		// First-time sync: nothing published yet, nothing to merge.
		return server.WriteJSON(w, http.StatusOK, resp)
	}

	result := subsync.Merge(local, *remote)
	for _, add := range result.ToAdd {
		resp.ToAdd = append(resp.ToAdd, v1.Addition{
			Kind:   string(add.Kind),
			Source: add.Source,
			Tags:   add.Tags,
		})
	}
	resp.LocalOnly = result.LocalOnly

	return server.WriteJSON(w, http.StatusOK, resp)
}

// postSyncApply subscribes the caller to the confirmed additions.
func (s Server) postSyncApply(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx     = r.Context()
		userKey = server.UserKey(ctx)
	)
	body, err := server.DecodeValid[v1.SyncApplyRequest](r.Body)
	if err != nil {
		return err
	}

	added := 0
	for _, add := range body.Additions {
		if _, err := s.subscribe(ctx, userKey, add.Kind, add.Source, add.Tags); err != nil {
			return err
		}
		added++
	}

	return server.WriteJSON(w, http.StatusOK, v1.SyncApplyResponse{Added: added})
}

func (s Server) getOPML(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx     = r.Context()
		userKey = server.UserKey(ctx)
	)

	feeds, err := s.repo.SubscribedFeeds(ctx, userKey)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="subscriptions.opml"`)

	return subsync.ExportOPML(w, "nostr-feedz subscriptions", feeds)
}

func (s Server) postOPML(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx     = r.Context()
		userKey = server.UserKey(ctx)
	)
	body, err := server.DecodeValid[v1.ImportOPMLRequest](r.Body)
	if err != nil {
		return err
	}

	urls, err := subsync.ImportOPML(strings.NewReader(body.OPML))
	if err != nil {
		return fzerrs.E(err, http.StatusBadRequest)
	}

	// OPML entries are feed URLs already, so discovery is skipped.
	added := 0
	for _, feedURL := range urls {
		feed, err := s.ensureFeed(ctx, feedz.FeedTypeRSS, feedURL)
		if err != nil {
			return err
		}
		if err := s.ensureSubscription(ctx, userKey, feed.ID, nil); err != nil {
			return err
		}
		added++
	}

	return server.WriteJSON(w, http.StatusOK, v1.ImportOPMLResponse{Added: added})
}
