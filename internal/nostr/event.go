package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Event kinds used by this application.
const (
	KindProfile          = 0
	KindLongFormArticle  = 30023
	KindVideo            = 34235
	KindHTTPAuth         = 27235
	KindApplicationData  = 30078
	SubscriptionListDTag = "nostr-feedz/subscriptions"
)

// Event is a signed, timestamped protocol message. ID and Sig are empty
// until the event is signed.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Serialize produces the canonical byte form hashed into the event id:
// a JSON array [0, pubkey, created_at, kind, tags, content].
//
// The field order and the exclusion of the signature are load-bearing;
// reordering breaks interoperability with the global event-id scheme.
func (e *Event) Serialize() ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = [][]string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]any{0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content}); err != nil {
		return nil, fmt.Errorf("error serializing event: %s", err)
	}

	// Encode appends a newline that is not part of the canonical form.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ComputeID hashes the serialized event into its immutable identity.
func (e *Event) ComputeID() (string, error) {
	byts, err := e.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(byts)

	return hex.EncodeToString(sum[:]), nil
}

// Sign fills in PubKey (if empty), ID, and Sig using the given hex
// private key.
func (e *Event) Sign(privHex string) error {
	raw, err := hex.DecodeString(privHex)
	if err != nil {
		return fmt.Errorf("error decoding private key: %s", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)

	if e.PubKey == "" {
		e.PubKey = hex.EncodeToString(priv.PubKey().SerializeCompressed()[1:])
	}

	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	e.ID = id

	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return fmt.Errorf("error decoding event id: %s", err)
	}
	sig, err := schnorr.Sign(priv, idBytes)
	if err != nil {
		return fmt.Errorf("error signing event: %s", err)
	}
	e.Sig = hex.EncodeToString(sig.Serialize())

	return nil
}

// Verify checks that the id matches the event contents and that the
// signature is valid for the event's pubkey. Malformed events verify
// false rather than erroring.
func (e *Event) Verify() bool {
	id, err := e.ComputeID()
	if err != nil || id != e.ID {
		return false
	}

	pkBytes, err := hex.DecodeString(e.PubKey)
	if err != nil || len(pkBytes) != 32 {
		return false
	}
	pub, err := schnorr.ParsePubKey(pkBytes)
	if err != nil {
		return false
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}

	idBytes, _ := hex.DecodeString(e.ID)

	return sig.Verify(idBytes, pub)
}

// TagValue returns the first value of the named tag, or "".
func (e *Event) TagValue(name string) string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}

	return ""
}
