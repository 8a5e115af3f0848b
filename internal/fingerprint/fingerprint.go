// Package fingerprint computes the idempotency keys used to deduplicate ingestions.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
)

// Strategy selects what the fingerprint is computed over
type Strategy string

const (
	// StrategyRaw hashes the uploaded bytes
	StrategyRaw Strategy = "raw"
	// StrategyPackage hashes the canonical JSON of the assembled package
	StrategyPackage Strategy = "package"
)

// ParseStrategy maps configuration text onto a Strategy. Empty means raw.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyRaw:
		return StrategyRaw, nil
	case StrategyPackage:
		return StrategyPackage, nil
	default:
		return "", fmt.Errorf("unknown dedup key %q (want raw or package)", s)
	}
}

// Bytes returns the hex SHA-256 of b
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Package returns the hex SHA-256 of the package's canonical JSON: object keys
// sorted, no insignificant whitespace.
func Package(pkg *invoice.Package) (string, error) {
	canonical, err := Canonical(pkg)
	if err != nil {
		return "", err
	}
	return Bytes(canonical), nil
}

// Canonical renders v as compact JSON with sorted object keys
func Canonical(v any) ([]byte, error) {
	first, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for fingerprint: %w", err)
	}

	// Decoding into interface{} turns every object into a map, which
	// encoding/json writes back with sorted keys. UseNumber keeps amounts exact.
	dec := json.NewDecoder(bytes.NewReader(first))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode for fingerprint: %w", err)
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("re-marshal for fingerprint: %w", err)
	}
	return out, nil
}

// Compute fingerprints either the raw bytes or the package
func Compute(strategy Strategy, raw []byte, pkg *invoice.Package) (string, error) {
	switch strategy {
	case StrategyPackage:
		if pkg == nil {
			return "", fmt.Errorf("package fingerprint needs an assembled package")
		}
		return Package(pkg)
	case StrategyRaw, "":
		return Bytes(raw), nil
	default:
		return "", fmt.Errorf("unknown fingerprint strategy %q", strategy)
	}
}
