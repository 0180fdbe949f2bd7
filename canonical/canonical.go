// Package canonical produces byte-stable JSON for hashing: object keys
// sorted, strings NFC-normalized, numbers in shortest decimal form, no
// insignificant whitespace.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrKeyCollision    = errors.New("canonical: object keys collide after normalization")
	ErrUnsupportedType = errors.New("canonical: unsupported value type")
)

// Marshal encodes v as canonical JSON. v is first encoded with encoding/json,
// so struct tags and custom marshalers apply.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	return Normalize(raw)
}

// Normalize rewrites arbitrary JSON bytes into canonical form
func Normalize(raw []byte) ([]byte, error) {
	value, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses JSON keeping numbers as json.Number
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}
	if dec.More() {
		return nil, errors.New("canonical: trailing data after JSON value")
	}
	return value, nil
}

// Hash returns the hex SHA-256 digest of data
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashValue canonicalizes v and hashes the result
func HashValue(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return Hash(data), nil
}

// Number normalizes a numeric literal: 200, 200.0 and 2e2 all yield "200"
func Number(literal string) (string, error) {
	d, err := decimal.NewFromString(literal)
	if err != nil {
		return "", fmt.Errorf("canonical: invalid number %q: %w", literal, err)
	}
	return d.String(), nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch value := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if value {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		n, err := Number(value.String())
		if err != nil {
			return err
		}
		buf.WriteString(n)
	case string:
		return writeString(buf, value)
	case []any:
		buf.WriteByte('[')
		for i, item := range value {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		return writeObject(buf, value)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	return nil
}

func writeObject(buf *bytes.Buffer, obj map[string]any) error {
	type entry struct {
		key   string
		value any
	}
	entries := make([]entry, 0, len(obj))
	seen := make(map[string]struct{}, len(obj))
	for k, v := range obj {
		key := norm.NFC.String(k)
		if _, dup := seen[key]; dup {
			return ErrKeyCollision
		}
		seen[key] = struct{}{}
		entries = append(entries, entry{key: key, value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, e.key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeValue(buf, e.value); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(out.Bytes(), []byte("\n")))
	return nil
}
