package comments

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SchemaVersion is the current version tag written into serialized blobs.
// Version zero is the legacy bare form with explores at the top level.
const SchemaVersion = 1

// ErrMalformedBlob reports that persisted text could not be parsed as a
// comment blob. Callers fall back to an empty blob rather than crashing.
var ErrMalformedBlob = errors.New("malformed comment blob")

// Blob is the entire persisted unit: explore name → field comments.
// Key order is appearance order and survives a serialize/parse round trip,
// so author extraction sees explores and fields in a stable order.
type Blob struct {
	names    []string
	explores map[string]*ExploreComments
}

// ExploreComments maps field names to their ordered comment lists for one
// explore, preserving field appearance order.
type ExploreComments struct {
	names  []string
	fields map[string][]Comment
}

func NewBlob() *Blob {
	return &Blob{explores: make(map[string]*ExploreComments)}
}

// Explores returns explore names in appearance order.
func (b *Blob) Explores() []string {
	return b.names
}

func (b *Blob) Explore(name string) (*ExploreComments, bool) {
	ec, ok := b.explores[name]
	return ec, ok
}

// Ensure returns the explore's comment map, creating an empty one on first use.
func (b *Blob) Ensure(name string) *ExploreComments {
	if ec, ok := b.explores[name]; ok {
		return ec
	}
	ec := &ExploreComments{fields: make(map[string][]Comment)}
	b.names = append(b.names, name)
	b.explores[name] = ec
	return ec
}

// Fields returns field names in appearance order.
func (e *ExploreComments) Fields() []string {
	return e.names
}

func (e *ExploreComments) Comments(field string) []Comment {
	return e.fields[field]
}

// SetComments replaces a field's comment list, registering the field on
// first use.
func (e *ExploreComments) SetComments(field string, list []Comment) {
	if _, ok := e.fields[field]; !ok {
		e.names = append(e.names, field)
	}
	e.fields[field] = list
}

// Append adds a comment to the end of a field's list, creating the list if
// the field has never been commented on.
func (e *ExploreComments) Append(field string, c Comment) {
	e.SetComments(field, append(e.fields[field], c))
}

func (b *Blob) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range b.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(b.explores[name])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (b *Blob) UnmarshalJSON(data []byte) error {
	b.names = nil
	b.explores = make(map[string]*ExploreComments)
	return decodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		ec := &ExploreComments{fields: make(map[string][]Comment)}
		if err := json.Unmarshal(raw, ec); err != nil {
			return fmt.Errorf("explore %q: %w", key, err)
		}
		b.names = append(b.names, key)
		b.explores[key] = ec
		return nil
	})
}

func (e *ExploreComments) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range e.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		list := e.fields[name]
		if list == nil {
			list = []Comment{}
		}
		value, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e *ExploreComments) UnmarshalJSON(data []byte) error {
	e.names = nil
	e.fields = make(map[string][]Comment)
	return decodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		var list []Comment
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		e.names = append(e.names, key)
		e.fields[key] = list
		return nil
	})
}

// decodeOrderedObject walks a JSON object token by token so that key order
// is observed, which encoding/json's map decoding discards.
func decodeOrderedObject(data []byte, visit func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := visit(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

// Parse deserializes persisted blob text. It accepts both the current
// versioned envelope and the legacy bare form, migrating the latter. Empty
// text parses as an empty blob; anything unparseable is ErrMalformedBlob.
func Parse(text string) (*Blob, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return NewBlob(), nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}

	payload := json.RawMessage(trimmed)
	if version, ok := probe["version"]; ok && isJSONNumber(version) {
		explores, ok := probe["explores"]
		if !ok {
			return nil, fmt.Errorf("%w: versioned blob missing explores", ErrMalformedBlob)
		}
		payload = explores
	}

	blob := NewBlob()
	if err := json.Unmarshal(payload, blob); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	return blob, nil
}

// Serialize writes the versioned envelope form. The whole blob is always
// written; there is no partial persistence.
func (b *Blob) Serialize() (string, error) {
	envelope := struct {
		Version  int   `json:"version"`
		Explores *Blob `json:"explores"`
	}{Version: SchemaVersion, Explores: b}

	out, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("serialize blob: %w", err)
	}
	return string(out), nil
}

func isJSONNumber(raw json.RawMessage) bool {
	var n json.Number
	return json.Unmarshal(raw, &n) == nil
}
