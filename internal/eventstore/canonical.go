package eventstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
)

// Canonical serializes v to RFC 8785 canonical JSON: sorted keys, no
// insignificant whitespace, deterministic number formatting. Hashes
// computed over this form are stable across runtimes and across the
// JSONB round-trip, because canonicalization is a function of the JSON
// value, not of stored key order.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInvalidArgument, "event data not serializable", err)
	}
	return CanonicalRaw(raw)
}

// CanonicalRaw canonicalizes already-encoded JSON bytes.
func CanonicalRaw(raw []byte) ([]byte, error) {
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInvalidArgument, "event data not canonicalizable", err)
	}
	return canon, nil
}

// ComputeHash chains canonical event bytes onto the previous hash. With
// a secret configured the digest is HMAC-SHA256; otherwise plain
// SHA-256. An empty prevHash marks the first event of an aggregate.
func ComputeHash(prevHash string, canonical []byte, secret []byte) string {
	if len(secret) > 0 {
		mac := hmac.New(sha256.New, secret)
		mac.Write([]byte(prevHash))
		mac.Write(canonical)
		return hex.EncodeToString(mac.Sum(nil))
	}
	sum := sha256.New()
	sum.Write([]byte(prevHash))
	sum.Write(canonical)
	return hex.EncodeToString(sum.Sum(nil))
}
