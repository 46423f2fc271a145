package subsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/nostr"
)

const mergeTestPriv = "67dea2ed018072d675f5415ecfaed7d2597555e202d85b3d65ea4e58d2d92ffa"

func TestMerge_AdditiveOnly(t *testing.T) {
	local := feedz.SubscriptionList{
		RSS:   []string{"https://a.example.com/feed"},
		Nostr: []string{"aaaa"},
	}
	remote := feedz.SubscriptionList{
		RSS:   []string{"https://a.example.com/feed", "https://b.example.com/feed"},
		Nostr: []string{"aaaa", "bbbb"},
		Tags: map[string][]string{
			"https://b.example.com/feed": {"tech"},
		},
	}

	result := Merge(local, remote)

	require.Len(t, result.ToAdd, 2)
	assert.Equal(t, AdditionRSS, result.ToAdd[0].Kind)
	assert.Equal(t, "https://b.example.com/feed", result.ToAdd[0].Source)
	assert.Equal(t, []string{"tech"}, result.ToAdd[0].Tags)
	assert.Equal(t, AdditionNostr, result.ToAdd[1].Kind)
	assert.Equal(t, "bbbb", result.ToAdd[1].Source)

	assert.Empty(t, result.LocalOnly)
}

func TestMerge_LocalOnlyReportedNotRemoved(t *testing.T) {
	local := feedz.SubscriptionList{
		RSS: []string{"https://keep.example.com/feed"},
	}
	remote := feedz.SubscriptionList{}

	result := Merge(local, remote)

	assert.Empty(t, result.ToAdd)
	assert.Equal(t, []string{"https://keep.example.com/feed"}, result.LocalOnly)
}

func TestMerge_NormalizesBeforeComparing(t *testing.T) {
	pubHex, err := nostr.PublicKeyFromPrivate(mergeTestPriv)
	require.NoError(t, err)
	npub, err := nostr.EncodeNpub(pubHex)
	require.NoError(t, err)

	local := feedz.SubscriptionList{
		RSS:   []string{"https://example.com/feed"},
		Nostr: []string{pubHex},
	}
	remote := feedz.SubscriptionList{
		// Same url with shouty host, same author as npub.
		RSS:   []string{"HTTPS://EXAMPLE.COM/feed"},
		Nostr: []string{npub},
	}

	result := Merge(local, remote)
	assert.Empty(t, result.ToAdd)
	assert.Empty(t, result.LocalOnly)
}

func TestMerge_Idempotent(t *testing.T) {
	local := feedz.SubscriptionList{
		RSS: []string{"https://a.example.com/feed"},
	}
	remote := feedz.SubscriptionList{
		RSS:   []string{"https://a.example.com/feed", "https://b.example.com/feed"},
		Nostr: []string{"cccc"},
	}

	first := Merge(local, remote)
	require.Len(t, first.ToAdd, 2)

	// Apply the additions, then merge again: nothing left to add.
	for _, add := range first.ToAdd {
		switch add.Kind {
		case AdditionRSS:
			local.RSS = append(local.RSS, add.Source)
		case AdditionNostr:
			local.Nostr = append(local.Nostr, add.Source)
		}
	}

	second := Merge(local, remote)
	assert.Empty(t, second.ToAdd)
}

func TestBuild_PartitionsAndCollapsesAuthors(t *testing.T) {
	title := "My Blog"
	feeds := []feedz.Feed{
		{ID: "f1", Type: feedz.FeedTypeRSS, Source: "https://blog.example.com/feed", Title: &title},
		{ID: "f2", Type: feedz.FeedTypeArticles, Source: "authorkey"},
		{ID: "f3", Type: feedz.FeedTypeVideos, Source: "authorkey"},
	}
	subs := []feedz.Subscription{
		{FeedID: "f1", Tags: "tech,go"},
		{FeedID: "f2", Tags: "nostr"},
	}

	list := Build(feeds, subs)

	assert.Equal(t, []string{"https://blog.example.com/feed"}, list.RSS)
	// Both streams of the same author appear once.
	assert.Equal(t, []string{"authorkey"}, list.Nostr)
	assert.Equal(t, []string{"tech", "go"}, list.Tags["https://blog.example.com/feed"])
	assert.Equal(t, []string{"nostr"}, list.Tags["authorkey"])
}
