package nostr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoSigningMethod is returned when an operation needs a signature but
// neither a local key nor a delegated signer is available. No retry can
// fix it, so it is surfaced synchronously.
var ErrNoSigningMethod = errors.New("no signing method available")

// Signer produces signed events for one identity. It is a capability:
// either a locally held private key or a handle to an external signing
// agent satisfies it.
type Signer interface {
	PublicKey(ctx context.Context) (string, error)
	SignEvent(ctx context.Context, ev *Event) error
}

// LocalSigner signs with a private key held in this process.
type LocalSigner struct {
	privHex string
	pubHex  string
}

// NewLocalSigner derives the public key up front so later calls cannot
// fail on malformed key material.
func NewLocalSigner(privHex string) (LocalSigner, error) {
	pubHex, err := PublicKeyFromPrivate(privHex)
	if err != nil {
		return LocalSigner{}, fmt.Errorf("error deriving public key: %s", err)
	}

	return LocalSigner{privHex: privHex, pubHex: pubHex}, nil
}

func (s LocalSigner) PublicKey(ctx context.Context) (string, error) {
	return s.pubHex, nil
}

func (s LocalSigner) SignEvent(ctx context.Context, ev *Event) error {
	ev.PubKey = s.pubHex
	return ev.Sign(s.privHex)
}

var (
	delegatedMu sync.RWMutex
	delegated   Signer
)

// RegisterSigner installs a process-wide delegated signer, used when an
// operation is given no explicit signer. Passing nil clears it.
func RegisterSigner(s Signer) {
	delegatedMu.Lock()
	defer delegatedMu.Unlock()
	delegated = s
}

func registeredSigner() Signer {
	delegatedMu.RLock()
	defer delegatedMu.RUnlock()
	return delegated
}

// BuildAuthEvent constructs a short-lived, single-use HTTP auth event
// binding the target URL and method, timestamped to now. When signer is
// nil the registered delegated signer is used; with neither present the
// call fails with ErrNoSigningMethod.
func BuildAuthEvent(ctx context.Context, rawURL, method string, signer Signer) (*Event, error) {
	if signer == nil {
		signer = registeredSigner()
	}
	if signer == nil {
		return nil, ErrNoSigningMethod
	}

	ev := &Event{
		CreatedAt: time.Now().Unix(),
		Kind:      KindHTTPAuth,
		Tags: [][]string{
			{"u", rawURL},
			{"method", method},
		},
	}
	if err := signer.SignEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("error signing auth event: %s", err)
	}

	return ev, nil
}

// AuthHeader encodes a signed auth event into an Authorization header
// value: the scheme token followed by the base64 of the event JSON.
func AuthHeader(ev *Event) (string, error) {
	byts, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("error marshaling auth event: %s", err)
	}

	return "Nostr " + base64.StdEncoding.EncodeToString(byts), nil
}

// ParseAuthHeader decodes and verifies an Authorization header produced
// by AuthHeader, checking the bound URL and method and that the event is
// recent. Returns the authenticated pubkey.
func ParseAuthHeader(header, wantURL, wantMethod string, maxAge time.Duration) (string, error) {
	const scheme = "Nostr "
	if len(header) <= len(scheme) || header[:len(scheme)] != scheme {
		return "", errors.New("authorization header is not nostr-signed")
	}

	byts, err := base64.StdEncoding.DecodeString(header[len(scheme):])
	if err != nil {
		return "", fmt.Errorf("error decoding auth header: %s", err)
	}
	var ev Event
	if err := json.Unmarshal(byts, &ev); err != nil {
		return "", fmt.Errorf("error unmarshaling auth event: %s", err)
	}

	if ev.Kind != KindHTTPAuth {
		return "", fmt.Errorf("unexpected auth event kind: %d", ev.Kind)
	}
	if !ev.Verify() {
		return "", errors.New("auth event signature is invalid")
	}
	if got := ev.TagValue("u"); got != wantURL {
		return "", fmt.Errorf("auth event bound to wrong url: %s", got)
	}
	if got := ev.TagValue("method"); got != wantMethod {
		return "", fmt.Errorf("auth event bound to wrong method: %s", got)
	}
	if age := time.Since(time.Unix(ev.CreatedAt, 0)); age > maxAge || age < -maxAge {
		return "", errors.New("auth event is outside the allowed window")
	}

	return ev.PubKey, nil
}
