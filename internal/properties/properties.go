// Package properties implements the opaque property bag attached to every
// entity. Records hold the bag in its serialized form; the bag is parsed
// and re-serialized only at the store boundary.
package properties

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Properties maps a property name to a JSON value.
type Properties map[string]json.RawMessage

// Parse decodes a serialized bag. Empty input and JSON null decode to an
// empty, non-nil bag.
func Parse(raw json.RawMessage) (Properties, error) {
	p := make(Properties)

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return p, nil
	}

	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("decoding properties: %w", err)
	}

	return p, nil
}

// Marshal serializes the bag. An empty bag serializes to nil so that
// "no properties" has a single stored representation.
func (p Properties) Marshal() (json.RawMessage, error) {
	if len(p) == 0 {
		return nil, nil
	}

	// encoding/json rejects invalid values too, but without naming the key.
	for k, v := range p {
		if !gjson.ValidBytes(v) {
			return nil, fmt.Errorf("property %q is not valid JSON", k)
		}
	}

	// encoding/json sorts map keys, which keeps the stored text stable.
	data, err := json.Marshal(map[string]json.RawMessage(p))
	if err != nil {
		return nil, fmt.Errorf("encoding properties: %w", err)
	}

	return data, nil
}

// Set encodes value as JSON and stores it under key.
func (p Properties) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding property %q: %w", key, err)
	}

	p[key] = data

	return nil
}

// Lookup returns the value at a gjson path inside the named property.
// An empty path returns the whole property value.
func (p Properties) Lookup(key, path string) gjson.Result {
	raw, ok := p[key]
	if !ok {
		return gjson.Result{}
	}

	if path == "" {
		return gjson.ParseBytes(raw)
	}

	return gjson.GetBytes(raw, path)
}

// Clone returns a deep copy of the bag.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}

	c := make(Properties, len(p))
	for k, v := range p {
		c[k] = bytes.Clone(v)
	}

	return c
}
