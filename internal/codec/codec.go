// Package codec converts request payloads to and from the JSON wire format
// shared by all transports, and derives the cache fingerprint for a request.
//
// Encoding is canonical: object keys are emitted in sorted order at every
// nesting level, so two payloads that are equal by value always produce the
// same bytes and the same fingerprint.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEncoding = errors.New("codec: payload is not JSON-serializable")
	ErrDecoding = errors.New("codec: malformed worker output")
	ErrSchema   = errors.New("codec: worker output failed schema validation")
)

// Encode serializes a payload to canonical JSON. Payload values must be
// JSON-compatible; anything else (channels, functions, cycles) fails with
// ErrEncoding.
func Encode(payload map[string]any) ([]byte, error) {
	// encoding/json emits map keys in sorted order, which gives canonical
	// form for free as long as the input is decoded into plain maps first.
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return b, nil
}

// Decode parses wire bytes into a generic structure. Fails with ErrDecoding
// when the bytes are not a JSON object.
func Decode(wire []byte) (map[string]any, error) {
	var data map[string]any
	dec := json.NewDecoder(bytes.NewReader(wire))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	return data, nil
}

// Canonicalize re-encodes raw JSON into canonical form. Key order in the
// input is irrelevant to the output.
func Canonicalize(raw []byte) ([]byte, error) {
	data, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return Encode(data)
}

// Fingerprint derives the deterministic cache key for an operation and its
// payload. Payloads equal by value fingerprint identically regardless of key
// order.
func Fingerprint(operation string, payload map[string]any) (string, error) {
	encoded, err := Encode(payload)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(operation))
	h.Write([]byte{'\n'})
	h.Write(encoded)
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
