package nostr

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAuthEvent(t *testing.T) {
	signer, err := NewLocalSigner(testPrivHex)
	require.NoError(t, err)

	ev, err := BuildAuthEvent(context.Background(), "https://api.example.com/v1/items", "GET", signer)
	require.NoError(t, err)

	assert.Equal(t, KindHTTPAuth, ev.Kind)
	assert.Equal(t, "https://api.example.com/v1/items", ev.TagValue("u"))
	assert.Equal(t, "GET", ev.TagValue("method"))
	assert.True(t, ev.Verify())
	assert.WithinDuration(t, time.Now(), time.Unix(ev.CreatedAt, 0), 5*time.Second)
}

func TestBuildAuthEvent_NoSigningMethod(t *testing.T) {
	RegisterSigner(nil)

	_, err := BuildAuthEvent(context.Background(), "https://example.com", "POST", nil)
	assert.ErrorIs(t, err, ErrNoSigningMethod)
}

func TestBuildAuthEvent_DelegatedSigner(t *testing.T) {
	signer, err := NewLocalSigner(testPrivHex)
	require.NoError(t, err)

	RegisterSigner(signer)
	defer RegisterSigner(nil)

	ev, err := BuildAuthEvent(context.Background(), "https://example.com", "POST", nil)
	require.NoError(t, err)
	assert.True(t, ev.Verify())
}

func TestAuthHeaderRoundTrip(t *testing.T) {
	signer, err := NewLocalSigner(testPrivHex)
	require.NoError(t, err)

	ev, err := BuildAuthEvent(context.Background(), "https://api.example.com/v1/refresh", "POST", signer)
	require.NoError(t, err)

	header, err := AuthHeader(ev)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(header, "Nostr "))

	pubkey, err := ParseAuthHeader(header, "https://api.example.com/v1/refresh", "POST", time.Minute)
	require.NoError(t, err)

	want, err := signer.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, pubkey)
}

func TestParseAuthHeader_Rejections(t *testing.T) {
	signer, err := NewLocalSigner(testPrivHex)
	require.NoError(t, err)

	ev, err := BuildAuthEvent(context.Background(), "https://api.example.com/v1/items", "GET", signer)
	require.NoError(t, err)
	header, err := AuthHeader(ev)
	require.NoError(t, err)

	t.Run("wrong url", func(t *testing.T) {
		_, err := ParseAuthHeader(header, "https://api.example.com/v1/other", "GET", time.Minute)
		assert.Error(t, err)
	})
	t.Run("wrong method", func(t *testing.T) {
		_, err := ParseAuthHeader(header, "https://api.example.com/v1/items", "DELETE", time.Minute)
		assert.Error(t, err)
	})
	t.Run("wrong scheme", func(t *testing.T) {
		_, err := ParseAuthHeader("Bearer abcdef", "https://api.example.com/v1/items", "GET", time.Minute)
		assert.Error(t, err)
	})
	t.Run("stale event", func(t *testing.T) {
		old := &Event{
			CreatedAt: time.Now().Add(-time.Hour).Unix(),
			Kind:      KindHTTPAuth,
			Tags:      [][]string{{"u", "https://api.example.com/v1/items"}, {"method", "GET"}},
		}
		require.NoError(t, signer.SignEvent(context.Background(), old))
		h, err := AuthHeader(old)
		require.NoError(t, err)

		_, err = ParseAuthHeader(h, "https://api.example.com/v1/items", "GET", time.Minute)
		assert.Error(t, err)
	})
}
