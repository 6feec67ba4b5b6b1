// Package canonical produces deterministic, byte-exact JSON encodings of
// arbitrary JSON-like values and the SHA-256 hash over them, used to seal
// audit events into a tamper-evident hash chain.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Bytes returns the canonical JSON encoding of v: object keys are sorted
// recursively at every depth, arrays preserve order, numbers and strings
// are re-encoded through encoding/json so the same logical value always
// produces the same bytes regardless of how v was constructed (struct,
// map, or decoded JSON).
func Bytes(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}

	var decoded interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}

	var buf bytes.Buffer
	if err := encode(&buf, decoded); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the lowercase hex SHA-256 digest of the canonical encoding
// of v.
func Hash(v interface{}) (string, error) {
	b, err := Bytes(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// encode writes a deterministic JSON encoding of v to buf. It mirrors
// encoding/json's escaping rules (via re-marshal of leaf values) but
// guarantees map keys are visited in sorted order at every depth, which
// encoding/json already does for map[string]T — the explicit sort below
// additionally covers map[string]interface{} produced by UseNumber
// decoding, where key order is not otherwise guaranteed stable across Go
// versions.
func encode(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
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
				return fmt.Errorf("canonical: key marshal: %w", err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encode(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		// string, bool, json.Number: encoding/json already produces
		// deterministic, exact output for these leaf kinds.
		eb, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("canonical: leaf marshal: %w", err)
		}
		buf.Write(eb)
		return nil
	}
}
