// Package cursor encodes resume positions as opaque URL-safe tokens.
//
// Tokens are not signed. Trust comes from re-applying the resume predicate on
// the server; a token that does not fit the current request is ignored.
package cursor

import (
	"encoding/base64"
	"strconv"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"

	"github.com/kailas-cloud/scout/internal/domain/discovery/rank"
)

// Version is bumped whenever the payload layout changes.
const Version = 1

// MaxTokenLength bounds the decoder input.
const MaxTokenLength = 2048

// Status is the outcome of Decode.
type Status int

// Decode outcomes.
const (
	// None means no cursor was supplied.
	None Status = iota
	// Valid means the key can be used to resume.
	Valid
	// Reset means a cursor was supplied but rejected; pagination restarts.
	Reset
)

func (s Status) String() string {
	switch s {
	case None:
		return "none"
	case Valid:
		return "valid"
	case Reset:
		return "reset"
	default:
		return "unknown"
	}
}

type payload struct {
	V    int      `json:"v"`
	Mode string   `json:"m"`
	FP   string   `json:"f"`
	Key  rank.Key `json:"k"`
}

// Fingerprint hashes everything that must stay fixed across pages.
func Fingerprint(kind, canonicalSpec string) string {
	h := xxhash.New()
	_, _ = h.WriteString(kind)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(canonicalSpec)
	return strconv.FormatUint(h.Sum64(), 36)
}

// Encode serializes the last returned key.
func Encode(key rank.Key, mode, fingerprint string) (string, error) {
	raw, err := json.Marshal(payload{V: Version, Mode: mode, FP: fingerprint, Key: key})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses token. It never fails: a token that does not parse or does
// not match the current version, sort mode and fingerprint reports Reset.
func Decode(token, mode, fingerprint string) (rank.Key, Status) {
	if token == "" {
		return rank.Key{}, None
	}
	if len(token) > MaxTokenLength {
		return rank.Key{}, Reset
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return rank.Key{}, Reset
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return rank.Key{}, Reset
	}
	if p.V != Version || p.Mode != mode || p.FP != fingerprint || p.Key.ID == "" {
		return rank.Key{}, Reset
	}
	return p.Key, Valid
}
