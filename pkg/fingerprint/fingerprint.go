// Package fingerprint produces canonical, order-stable representations of
// record data for hashing and duplicate detection.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Generate creates a deterministic fingerprint for record data.
// The fingerprint is a SHA256 hash of the canonical form.
func Generate(data map[string]any) string {
	return GenerateWithExclusions(data, nil)
}

// GenerateWithExclusions fingerprints data ignoring the named top-level keys.
func GenerateWithExclusions(data map[string]any, exclude map[string]bool) string {
	var b strings.Builder
	writeMap(&b, data, exclude)
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

// Key returns the canonical form of a single value. Two array entries with
// equal keys are treated as the same piece of evidence: map keys are sorted,
// strings are NFKC-folded and trimmed, and numbers are JSON-encoded.
func Key(v any) string {
	var b strings.Builder
	write(&b, v)
	return b.String()
}

func write(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		writeMap(b, val, nil)
	case []any:
		b.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			write(b, e)
		}
		b.WriteByte(']')
	case []string:
		b.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			write(b, e)
		}
		b.WriteByte(']')
	case string:
		enc, _ := json.Marshal(strings.TrimSpace(norm.NFKC.String(val)))
		b.Write(enc)
	default:
		enc, _ := json.Marshal(val)
		b.Write(enc)
	}
}

func writeMap(b *strings.Builder, m map[string]any, exclude map[string]bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		if exclude[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		enc, _ := json.Marshal(k)
		b.Write(enc)
		b.WriteByte(':')
		write(b, m[k])
	}
	b.WriteByte('}')
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}
