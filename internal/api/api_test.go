package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	v1 "github.com/privkeyio/Nostr-Feedz-sub000/api/feedz/v1"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/api"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/backoff"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/client"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/fetch"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/migrations"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/nostr"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/refresh"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/sqlite"
)

const testPrivHex = "67dea2ed018072d675f5415ecfaed7d2597555e202d85b3d65ea4e58d2d92ffa"

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Blog</title>
    <description>A blog for tests</description>
    <item>
      <title>First Post</title>
      <link>https://example.com/first</link>
      <guid>first</guid>
      <description>hello</description>
    </item>
    <item>
      <title>Second Post</title>
      <link>https://example.com/second</link>
      <guid>second</guid>
      <description>world</description>
    </item>
  </channel>
</rss>`

type testEnv struct {
	ts     *httptest.Server
	repo   feedz.Repository
	signer nostr.LocalSigner
	cli    *client.Client
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	dbx, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })
	dbx.SetMaxOpenConns(1)
	require.NoError(t, migrations.Run(dbx))
	repo := sqlite.New(dbx)

	var (
		rss     = fetch.NewRSSFetcher()
		pool    = nostr.NewPool(nil)
		authors = fetch.NewNostrSource(pool)
	)
	engine := refresh.NewEngine(repo, rss, authors, refresh.Config{
		Retry: backoff.Config{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})

	srvr := api.NewServer(api.Config{CorsOrigin: "*"}, repo, engine, rss, authors, pool)
	ts := httptest.NewServer(srvr.Handler)
	t.Cleanup(ts.Close)

	signer, err := nostr.NewLocalSigner(testPrivHex)
	require.NoError(t, err)

	return testEnv{
		ts:     ts,
		repo:   repo,
		signer: signer,
		cli:    client.New(ts.URL, signer),
	}
}

// doSigned issues one signed request outside the client, for endpoints
// the reader client doesn't wrap.
func (e testEnv) doSigned(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reqBody io.Reader = bytes.NewReader(nil)
	if body != nil {
		byts, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(byts)
	}

	u := e.ts.URL + path
	req, err := http.NewRequest(method, u, reqBody)
	require.NoError(t, err)

	ev, err := nostr.BuildAuthEvent(context.Background(), u, method, e.signer)
	require.NoError(t, err)
	header, err := nostr.AuthHeader(ev)
	require.NoError(t, err)
	req.Header.Set("Authorization", header)

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func rssOrigin(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, rssFixture)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestUnauthenticatedRejected(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/api/feeds")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubscribeRefreshAndRead(t *testing.T) {
	env := newTestEnv(t)
	origin := rssOrigin(t)

	// Subscribe to the local feed.
	resp := env.doSigned(t, http.MethodPost, "/api/subscriptions", v1.CreateSubscriptionRequest{
		Kind:   v1.SubscriptionKindRSS,
		Source: origin.URL,
		Tags:   []string{"tech"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created v1.FeedsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Len(t, created.Feeds, 1)

	ctx := context.Background()

	// Refresh through the client; the feed's two items come in.
	result, err := env.cli.Refresh(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Refreshed)
	assert.Equal(t, 2, result.NewItems)

	feeds, err := env.cli.Feeds(ctx)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	require.NotNil(t, feeds[0].Title)
	assert.Equal(t, "Test Blog", *feeds[0].Title)

	items, err := env.cli.Items(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Mark one read and the unread count drops.
	require.NoError(t, env.cli.MarkRead(ctx, items[0].ID))

	unreadResp := env.doSigned(t, http.MethodGet, "/api/unread", nil)
	var unread v1.UnreadResponse
	require.NoError(t, json.NewDecoder(unreadResp.Body).Decode(&unread))
	assert.Equal(t, 1, unread.Count)
}

func TestSubscribeValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doSigned(t, http.MethodPost, "/api/subscriptions", v1.CreateSubscriptionRequest{
		Kind: "carrier-pigeon",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOPMLImportExport(t *testing.T) {
	env := newTestEnv(t)
	origin := rssOrigin(t)

	opml := `<?xml version="1.0"?>
<opml version="2.0">
  <body>
    <outline text="Test Blog" type="rss" xmlUrl="` + origin.URL + `"/>
  </body>
</opml>`

	resp := env.doSigned(t, http.MethodPost, "/api/opml", v1.ImportOPMLRequest{OPML: opml})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var imported v1.ImportOPMLResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&imported))
	assert.Equal(t, 1, imported.Added)

	// Importing the same document again adds nothing new.
	resp = env.doSigned(t, http.MethodPost, "/api/opml", v1.ImportOPMLRequest{OPML: opml})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	exportResp := env.doSigned(t, http.MethodGet, "/api/opml", nil)
	require.Equal(t, http.StatusOK, exportResp.StatusCode)
	byts, err := io.ReadAll(exportResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(byts), origin.URL)
}

func TestSyncListAndDiff(t *testing.T) {
	env := newTestEnv(t)
	origin := rssOrigin(t)

	resp := env.doSigned(t, http.MethodPost, "/api/subscriptions", v1.CreateSubscriptionRequest{
		Kind:   v1.SubscriptionKindRSS,
		Source: origin.URL,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	listResp := env.doSigned(t, http.MethodGet, "/api/sync/list", nil)
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var list v1.SubscriptionList
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	assert.Equal(t, []string{origin.URL}, list.RSS)
	assert.Empty(t, list.Nostr)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var hits int
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(v1.FeedsResponse{Feeds: []v1.Feed{}})
	}))
	defer flaky.Close()

	signer, err := nostr.NewLocalSigner(testPrivHex)
	require.NoError(t, err)

	cli := client.New(flaky.URL, signer)
	_, err = cli.Feeds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
}
