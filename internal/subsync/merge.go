package subsync

import (
	"net/url"
	"strings"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/nostr"
)

type (
	// Addition is one remote entry missing from the local state, staged
	// for the user to confirm.
	Addition struct {
		Kind   AdditionKind `json:"kind"`
		Source string       `json:"source"`
		Tags   []string     `json:"tags,omitempty"`
	}

	AdditionKind string

	// MergeResult stages the differences between a local and a remote
	// list. Nothing is ever auto-removed: LocalOnly is reported for user
	// awareness only.
	MergeResult struct {
		ToAdd     []Addition `json:"to_add"`
		LocalOnly []string   `json:"local_only"`
	}
)

const (
	AdditionRSS   AdditionKind = "rss"
	AdditionNostr AdditionKind = "nostr"
)

// Merge diffs a remote list against the local one. Entries are compared
// in normalized form, so cosmetic differences (URL casing, npub vs hex)
// never produce duplicates. The merge is strictly additive and running
// it twice over an unchanged pair yields an empty ToAdd.
func Merge(local, remote feedz.SubscriptionList) MergeResult {
	localURLs := map[string]bool{}
	for _, u := range local.RSS {
		localURLs[normalizeURL(u)] = true
	}
	localKeys := map[string]bool{}
	for _, k := range local.Nostr {
		localKeys[normalizeKey(k)] = true
	}

	var result MergeResult

	seen := map[string]bool{}
	for _, u := range remote.RSS {
		norm := normalizeURL(u)
		if localURLs[norm] || seen[norm] {
			continue
		}
		seen[norm] = true
		result.ToAdd = append(result.ToAdd, Addition{
			Kind:   AdditionRSS,
			Source: u,
			Tags:   remote.Tags[u],
		})
	}
	for _, k := range remote.Nostr {
		norm := normalizeKey(k)
		if localKeys[norm] || seen[norm] {
			continue
		}
		seen[norm] = true
		result.ToAdd = append(result.ToAdd, Addition{
			Kind:   AdditionNostr,
			Source: norm,
			Tags:   remote.Tags[k],
		})
	}

	remoteURLs := map[string]bool{}
	for _, u := range remote.RSS {
		remoteURLs[normalizeURL(u)] = true
	}
	remoteKeys := map[string]bool{}
	for _, k := range remote.Nostr {
		remoteKeys[normalizeKey(k)] = true
	}
	for _, u := range local.RSS {
		if !remoteURLs[normalizeURL(u)] {
			result.LocalOnly = append(result.LocalOnly, u)
		}
	}
	for _, k := range local.Nostr {
		if !remoteKeys[normalizeKey(k)] {
			result.LocalOnly = append(result.LocalOnly, k)
		}
	}

	return result
}

// normalizeURL lowercases the scheme and host; path and query keep
// their case since they can be significant.
func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	return u.String()
}

// normalizeKey canonicalizes an author identity to lowercase hex,
// accepting either form.
func normalizeKey(k string) string {
	k = strings.TrimSpace(k)
	if hexKey, ok := nostr.DecodeNpub(k); ok {
		return hexKey
	}

	return strings.ToLower(k)
}
