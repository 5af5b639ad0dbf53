// Package identity derives the stable keys that bind a stream of events to
// a single throttled record: a composite key from (category, id) and a
// content fingerprint from the event's details payload.
package identity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidIdentity is returned when category or id is empty.
var ErrInvalidIdentity = errors.New("category and id must be non-empty strings")

// CompositeKey derives the stable identity key for (category, id).
// Both arguments must be non-empty; anything else is rejected.
func CompositeKey(category, id string) (string, error) {
	if category == "" || id == "" {
		return "", fmt.Errorf("identity: %w", ErrInvalidIdentity)
	}
	sum := sha256.Sum256([]byte(category + ":" + id))
	return hex.EncodeToString(sum[:]), nil
}

// DetailsHash derives a stable fingerprint for an event's details payload.
// Nil or empty details hash to "". Serialization failure (cyclic data
// reachable through the any-typed details) also yields "" rather than an
// error: the fingerprint is a convenience for change detection, not a
// correctness-critical path.
func DetailsHash(details any) string {
	if details == nil {
		return ""
	}

	canon, err := canonicalize(details)
	if err != nil {
		return ""
	}
	if len(canon) == 0 {
		return ""
	}

	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// canonicalize produces a deterministic JSON encoding of v with object
// keys sorted lexicographically at every nesting level, so that two
// payloads differing only in field order hash identically.
func canonicalize(v any) ([]byte, error) {
	// Round-trip through json.Marshal/Unmarshal first so that arbitrary
	// Go values (structs, maps with non-string-keyed-looking types,
	// pointers) land in the map[string]any / []any / scalar shape that
	// sortedMarshal understands. This also surfaces cyclic structures as
	// a marshal error, which the caller turns into an empty hash.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	// An empty object or array carries nothing to fingerprint.
	switch g := generic.(type) {
	case map[string]any:
		if len(g) == 0 {
			return nil, nil
		}
	case []any:
		if len(g) == 0 {
			return nil, nil
		}
	}

	var buf bytes.Buffer
	if err := sortedMarshal(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sortedMarshal writes v to buf as JSON, sorting map keys at every level.
func sortedMarshal(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := sortedMarshal(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := sortedMarshal(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
