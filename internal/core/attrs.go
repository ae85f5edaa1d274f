package core

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
)

// OpAttrs carries the named attributes of one dispatch invocation
// (scalars, shapes, flags). Attribute bundles are value objects: built
// by the caller, read by dispatch functions, never mutated in flight.
type OpAttrs map[string]any

var detEncMode = func() cbor.EncMode {
	m, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// Int returns an integer attribute, accepting any Go integer width.
func (a OpAttrs) Int(key string) (int64, bool) {
	switch v := a[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	}
	return 0, false
}

// Float returns a floating-point attribute.
func (a OpAttrs) Float(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// String returns a string attribute.
func (a OpAttrs) String(key string) (string, bool) {
	v, ok := a[key].(string)
	return v, ok
}

// Bool returns a boolean attribute.
func (a OpAttrs) Bool(key string) (bool, bool) {
	v, ok := a[key].(bool)
	return v, ok
}

// Encode serializes the bundle with deterministic CBOR (sorted map
// keys), suitable for attaching to exported records.
func (a OpAttrs) Encode() ([]byte, error) {
	return detEncMode.Marshal(map[string]any(a))
}

// Fingerprint returns a stable hex digest of the bundle. Equal bundles
// always produce equal fingerprints, independent of insertion order.
func (a OpAttrs) Fingerprint() (string, error) {
	raw, err := a.Encode()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
