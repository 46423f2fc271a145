// Package nostr implements the protocol identity layer: key encoding,
// event serialization and signing, HTTP auth events, and a relay pool
// client for querying and publishing.
package nostr

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	prefixPublic  = "npub"
	prefixPrivate = "nsec"
)

// EncodeNpub encodes a 32-byte hex public key into its bech32 form.
func EncodeNpub(pubHex string) (string, error) {
	return encodeKey(prefixPublic, pubHex)
}

// EncodeNsec encodes a 32-byte hex private key into its bech32 form.
func EncodeNsec(privHex string) (string, error) {
	return encodeKey(prefixPrivate, privHex)
}

func encodeKey(hrp, keyHex string) (string, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", fmt.Errorf("error decoding hex key: %s", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("key must be 32 bytes, got %d", len(raw))
	}

	grouped, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("error regrouping key bits: %s", err)
	}
	encoded, err := bech32.Encode(hrp, grouped)
	if err != nil {
		return "", fmt.Errorf("error encoding bech32: %s", err)
	}

	return encoded, nil
}

// DecodeNpub decodes a bech32 public key back to hex.
//
// Malformed input is a first-class value: the second return is false and
// no error is ever raised, so batch validation of user input needs no
// error handling.
func DecodeNpub(s string) (string, bool) {
	return decodeKey(prefixPublic, s)
}

// DecodeNsec decodes a bech32 private key back to hex.
func DecodeNsec(s string) (string, bool) {
	return decodeKey(prefixPrivate, s)
}

func decodeKey(wantHRP, s string) (string, bool) {
	if !strings.HasPrefix(s, wantHRP+"1") {
		return "", false
	}

	hrp, grouped, err := bech32.Decode(s)
	if err != nil || hrp != wantHRP {
		return "", false
	}
	raw, err := bech32.ConvertBits(grouped, 5, 8, false)
	if err != nil || len(raw) != 32 {
		return "", false
	}

	return hex.EncodeToString(raw), true
}

// PublicKeyFromPrivate derives the x-only public key for a private key,
// per the protocol's key convention.
func PublicKeyFromPrivate(privHex string) (string, error) {
	raw, err := hex.DecodeString(privHex)
	if err != nil {
		return "", fmt.Errorf("error decoding private key: %s", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}

	priv, _ := btcec.PrivKeyFromBytes(raw)

	// Compressed point with the parity byte dropped: x-coordinate only.
	return hex.EncodeToString(priv.PubKey().SerializeCompressed()[1:]), nil
}
