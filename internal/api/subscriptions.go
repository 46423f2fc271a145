package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	v1 "github.com/privkeyio/Nostr-Feedz-sub000/api/feedz/v1"
	fzerrs "github.com/privkeyio/Nostr-Feedz-sub000/errors"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/nostr"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/server"
)

func (s Server) postSubscriptions(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx     = r.Context()
		userKey = server.UserKey(ctx)
	)
	body, err := server.DecodeValid[v1.CreateSubscriptionRequest](r.Body)
	if err != nil {
		return err
	}

	feeds, err := s.subscribe(ctx, userKey, body.Kind, body.Source, body.Tags)
	if err != nil {
		return err
	}

	resp := v1.FeedsResponse{Feeds: []v1.Feed{}}
	for _, feed := range feeds {
		resp.Feeds = append(resp.Feeds, apiFeed(feed))
	}

	return server.WriteJSON(w, http.StatusCreated, resp)
}

// subscribe resolves a source into feeds and binds the user to them. An
// RSS source becomes one feed; a protocol author becomes two, one per
// stream kind.
func (s Server) subscribe(ctx context.Context, userKey, kind, source string, tags []string) ([]feedz.Feed, error) {
	switch kind {
	case v1.SubscriptionKindRSS:
		feedURL, err := s.rss.Discover(ctx, source)
		if err != nil {
			return nil, fzerrs.E(err, http.StatusBadRequest)
		}
		feed, err := s.ensureFeed(ctx, feedz.FeedTypeRSS, feedURL)
		if err != nil {
			return nil, err
		}
		if err := s.ensureSubscription(ctx, userKey, feed.ID, tags); err != nil {
			return nil, err
		}

		return []feedz.Feed{feed}, nil

	case v1.SubscriptionKindNostr:
		authorKey := strings.ToLower(strings.TrimSpace(source))
		if hexKey, ok := nostr.DecodeNpub(authorKey); ok {
			authorKey = hexKey
		}

		articlesFeed, err := s.ensureFeed(ctx, feedz.FeedTypeArticles, authorKey)
		if err != nil {
			return nil, err
		}
		videosFeed, err := s.ensureFeed(ctx, feedz.FeedTypeVideos, authorKey)
		if err != nil {
			return nil, err
		}

		// Title both streams from the author's profile, when one exists.
		if profile, err := s.authors.Profile(ctx, authorKey); err != nil {
			slog.Warn("error fetching author profile", "author", authorKey, "error", err)
		} else if profile != nil && profile.Name != "" {
			for _, feed := range []feedz.Feed{articlesFeed, videosFeed} {
				if err := s.repo.UpdateFeed(ctx, feed.ID, feedz.UpdateFeedArgs{
					Title:       profile.Name,
					Description: profile.About,
				}); err != nil {
					slog.Warn("error titling feed", "feed_id", feed.ID, "error", err)
				}
			}
		}

		for _, feed := range []feedz.Feed{articlesFeed, videosFeed} {
			if err := s.ensureSubscription(ctx, userKey, feed.ID, tags); err != nil {
				return nil, err
			}
		}

		return []feedz.Feed{articlesFeed, videosFeed}, nil

	default:
		return nil, fzerrs.E("unknown subscription kind", http.StatusBadRequest)
	}
}

// ensureFeed finds or creates the feed row for a source, tolerating the
// create/create race.
func (s Server) ensureFeed(ctx context.Context, typ feedz.FeedType, source string) (feedz.Feed, error) {
	feed, err := s.repo.FeedBySource(ctx, typ, source)
	if err == nil {
		return feed, nil
	}
	if !errors.Is(err, feedz.ErrNotFound) {
		return feedz.Feed{}, err
	}

	feed, err = s.repo.InsertFeed(ctx, typ, source)
	if errors.Is(err, feedz.ErrConflict) {
		return s.repo.FeedBySource(ctx, typ, source)
	}

	return feed, err
}

func (s Server) ensureSubscription(ctx context.Context, userKey, feedID string, tags []string) error {
	_, err := s.repo.InsertSubscription(ctx, userKey, feedID, strings.Join(tags, ","))
	if errors.Is(err, feedz.ErrConflict) {
		return nil
	}

	return err
}

func (s Server) getSubscriptions(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx     = r.Context()
		userKey = server.UserKey(ctx)
	)

	subs, err := s.repo.Subscriptions(ctx, userKey)
	if err != nil {
		return err
	}

	resp := v1.SubscriptionsResponse{Subscriptions: []v1.Subscription{}}
	for _, sub := range subs {
		// Totally inefficient, yet sufficient:
		feed, err := s.repo.Feed(ctx, sub.FeedID)
		if err != nil {
			return fzerrs.FromDomain(err)
		}

		var tags []string
		if sub.Tags != "" {
			tags = strings.Split(sub.Tags, ",")
		}
		resp.Subscriptions = append(resp.Subscriptions, v1.Subscription{
			ID:        sub.ID,
			FeedID:    sub.FeedID,
			Tags:      tags,
			CreatedAt: sub.CreatedAt,
			Feed:      apiFeed(feed),
		})
	}

	return server.WriteJSON(w, http.StatusOK, resp)
}

func (s Server) deleteSubscription(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx     = r.Context()
		userKey = server.UserKey(ctx)
		feedID  = mux.Vars(r)["feedID"]
	)

	if err := s.repo.DeleteSubscription(ctx, userKey, feedID); err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, struct{}{})
}

func (s Server) getFeeds(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx     = r.Context()
		userKey = server.UserKey(ctx)
	)

	feeds, err := s.repo.SubscribedFeeds(ctx, userKey)
	if err != nil {
		return err
	}

	resp := v1.FeedsResponse{Feeds: []v1.Feed{}}
	for _, feed := range feeds {
		resp.Feeds = append(resp.Feeds, apiFeed(feed))
	}

	return server.WriteJSON(w, http.StatusOK, resp)
}
