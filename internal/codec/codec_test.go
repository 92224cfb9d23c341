package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"text":  "great product",
		"count": 3,
		"tags":  []any{"a", "b"},
		"nested": map[string]any{
			"z": true,
			"a": "first",
		},
	}

	wire, err := Encode(payload)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	// Semantic equality: re-encoding the decoded form must reproduce the
	// canonical bytes.
	reencoded, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-encode failed: %v", err)
	}
	if !bytes.Equal(wire, reencoded) {
		t.Fatalf("round trip changed content:\n %s\n %s", wire, reencoded)
	}
}

func TestEncodeRejectsUnsupportedValues(t *testing.T) {
	t.Parallel()

	_, err := Encode(map[string]any{"fn": func() {}})
	if !errors.Is(err, ErrEncoding) {
		t.Fatalf("expected ErrEncoding, got %v", err)
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	for _, wire := range []string{"", "not json", "[1,2,3"} {
		if _, err := Decode([]byte(wire)); !errors.Is(err, ErrDecoding) {
			t.Fatalf("input %q: expected ErrDecoding, got %v", wire, err)
		}
	}
}

func TestCanonicalizeIgnoresKeyOrder(t *testing.T) {
	t.Parallel()

	a, err := Canonicalize([]byte(`{"a":1,"b":2}`))
	if err != nil {
		t.Fatalf("canonicalize failed: %v", err)
	}
	b, err := Canonicalize([]byte(`{"b":2,"a":1}`))
	if err != nil {
		t.Fatalf("canonicalize failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("canonical forms differ: %s vs %s", a, b)
	}
}

func TestFingerprintOrderIndependent(t *testing.T) {
	t.Parallel()

	first := map[string]any{"a": 1, "b": 2, "deep": map[string]any{"x": 1, "y": 2}}
	second := map[string]any{"deep": map[string]any{"y": 2, "x": 1}, "b": 2, "a": 1}

	fp1, err := Fingerprint("sentiment", first)
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	fp2, err := Fingerprint("sentiment", second)
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	if fp1 != fp2 {
		t.Fatalf("fingerprints differ: %s vs %s", fp1, fp2)
	}
}

func TestFingerprintVariesByOperation(t *testing.T) {
	t.Parallel()

	payload := map[string]any{"text": "hello"}
	fp1, _ := Fingerprint("sentiment", payload)
	fp2, _ := Fingerprint("detect_objects", payload)
	if fp1 == fp2 {
		t.Fatal("different operations must fingerprint differently")
	}
}

func TestRegistryValidatesSentiment(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()

	out, err := reg.DecodeResult("sentiment", []byte(`{"sentiment":"positive","confidence":0.85}`))
	if err != nil {
		t.Fatalf("valid response rejected: %v", err)
	}
	var parsed struct {
		Sentiment string `json:"sentiment"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil || parsed.Sentiment != "positive" {
		t.Fatalf("unexpected output: %s", out)
	}

	if _, err := reg.DecodeResult("sentiment", []byte(`{"confidence":0.85}`)); !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema for missing field, got %v", err)
	}
	if _, err := reg.DecodeResult("sentiment", []byte(`{"sentiment":1,"confidence":0.85}`)); !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema for wrong type, got %v", err)
	}
	if _, err := reg.DecodeResult("sentiment", []byte(`not json`)); !errors.Is(err, ErrDecoding) {
		t.Fatalf("expected ErrDecoding, got %v", err)
	}
}

func TestRegistryUnknownOperationDecodeOnly(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	if _, err := reg.DecodeResult("embeddings", []byte(`{"vector":[0.1,0.2]}`)); err != nil {
		t.Fatalf("unknown operation should pass decode-only check: %v", err)
	}
}
