package codec

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FieldKind names the JSON type a response field must carry.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "bool"
	KindArray  FieldKind = "array"
	KindObject FieldKind = "object"
)

// Field describes one required field of a worker response.
type Field struct {
	Name string
	Kind FieldKind
}

// Schema lists the fields a worker response must contain for an operation.
type Schema struct {
	Fields []Field
}

// Registry maps operation names to response schemas. Operations without a
// registered schema are decode-checked only.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]Schema
}

// NewRegistry creates a registry pre-loaded with the built-in ML operations.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[string]Schema)}
	r.Register("sentiment", Schema{Fields: []Field{
		{Name: "sentiment", Kind: KindString},
		{Name: "confidence", Kind: KindNumber},
	}})
	r.Register("detect_objects", Schema{Fields: []Field{
		{Name: "objects", Kind: KindArray},
	}})
	return r
}

// Register installs or replaces the schema for an operation.
func (r *Registry) Register(operation string, s Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[operation] = s
}

// DecodeResult parses raw worker output and validates it against the
// operation's schema, returning the output as raw JSON on success. Errors
// wrap ErrDecoding or ErrSchema.
func (r *Registry) DecodeResult(operation string, raw []byte) (json.RawMessage, error) {
	data, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(operation, data); err != nil {
		return nil, err
	}
	// Return the worker's bytes untouched; validation only gates them.
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, nil
}

// Validate checks decoded worker output against the operation's schema.
func (r *Registry) Validate(operation string, data map[string]any) error {
	r.mu.RLock()
	schema, ok := r.schemas[operation]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	for _, f := range schema.Fields {
		value, present := data[f.Name]
		if !present {
			return fmt.Errorf("%w: missing field %q", ErrSchema, f.Name)
		}
		if !matchesKind(value, f.Kind) {
			return fmt.Errorf("%w: field %q is not a %s", ErrSchema, f.Name, f.Kind)
		}
	}
	return nil
}

func matchesKind(value any, kind FieldKind) bool {
	switch kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindNumber:
		switch value.(type) {
		case json.Number, float64:
			return true
		}
		return false
	case KindBool:
		_, ok := value.(bool)
		return ok
	case KindArray:
		_, ok := value.([]any)
		return ok
	case KindObject:
		_, ok := value.(map[string]any)
		return ok
	}
	return false
}
