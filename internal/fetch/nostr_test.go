package fetch

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/nostr"
)

func TestEventToItem_TitleFromTag(t *testing.T) {
	ev := nostr.Event{ID: "ev1", PubKey: "author", Content: "body", Tags: [][]string{{"title", "A Proper Title"}}}

	item := eventToItem("feed-1", ev)
	assert.Equal(t, "A Proper Title", item.Title)
	assert.Equal(t, "ev1", item.GUID)
}

func TestEventToItem_TitleTruncatesOnRuneBoundary(t *testing.T) {
	// 3-byte runes, so an 80-byte cut would land mid-rune.
	ev := nostr.Event{ID: "ev1", PubKey: "author", Content: strings.Repeat("日", 50)}

	item := eventToItem("feed-1", ev)
	assert.True(t, utf8.ValidString(item.Title))
	assert.LessOrEqual(t, len(item.Title), 80)
	assert.NotEmpty(t, item.Title)
}
