package nostr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrivHex = "67dea2ed018072d675f5415ecfaed7d2597555e202d85b3d65ea4e58d2d92ffa"
)

func TestKeyRoundTrip(t *testing.T) {
	pubHex, err := PublicKeyFromPrivate(testPrivHex)
	require.NoError(t, err)
	require.Len(t, pubHex, 64)

	npub, err := EncodeNpub(pubHex)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(npub, "npub1"))

	decoded, ok := DecodeNpub(npub)
	require.True(t, ok)
	assert.Equal(t, pubHex, decoded)

	nsec, err := EncodeNsec(testPrivHex)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(nsec, "nsec1"))

	decodedPriv, ok := DecodeNsec(nsec)
	require.True(t, ok)
	assert.Equal(t, testPrivHex, decodedPriv)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "wrong prefix", input: "nsec1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"},
		{name: "not bech32", input: "npub1!!!!"},
		{name: "bad checksum", input: "npub1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"},
		{name: "hex given directly", input: testPrivHex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeNpub(tt.input)
			assert.False(t, ok)
			assert.Empty(t, got)
		})
	}
}

func TestEncodeRejectsBadKeys(t *testing.T) {
	_, err := EncodeNpub("zzzz")
	assert.Error(t, err)

	// 31 bytes, not 32
	_, err = EncodeNpub(strings.Repeat("ab", 31))
	assert.Error(t, err)
}

func TestPublicKeyFromPrivate_Malformed(t *testing.T) {
	_, err := PublicKeyFromPrivate("not-hex")
	assert.Error(t, err)

	_, err = PublicKeyFromPrivate("abcd")
	assert.Error(t, err)
}
