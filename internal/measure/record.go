package measure

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/corner4world/deepdetect/internal/schema"
)

// Field is one named value of a Record.
type Field struct {
	Key   string
	Value any
}

// Record is an ordered set of metric values. It marshals to a JSON object
// whose keys keep the order in which they were set.
type Record struct {
	fields []Field
	index  map[string]int
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{index: make(map[string]int)}
}

// Set stores value under key, replacing any previous value in place.
func (r *Record) Set(key string, value any) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[key]; ok {
		r.fields[i].Value = value
		return
	}
	r.index[key] = len(r.fields)
	r.fields = append(r.fields, Field{Key: key, Value: value})
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return r.fields[i].Value, true
}

// Float returns the value under key when it is a float64.
func (r *Record) Float(key string) (float64, bool) {
	v, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns the fields in insertion order.
func (r *Record) Fields() []Field {
	return r.fields
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.fields)
}

// MarshalJSON implements json.Marshaler. Non-finite numbers become null.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(sanitize(f.Value))
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", f.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. Numbers decode as float64,
// except test_id which stays an int.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("measure record must be a JSON object")
	}
	*r = Record{index: make(map[string]int)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if f, ok := v.(float64); ok && key == schema.TestID {
			v = int(f)
		}
		r.Set(key, v)
	}
	_, err = dec.Token()
	return err
}

func sanitize(v any) any {
	switch t := v.(type) {
	case float64:
		if !finite(t) {
			return nil
		}
	case []float64:
		for _, f := range t {
			if !finite(f) {
				out := make([]any, len(t))
				for i, g := range t {
					if finite(g) {
						out[i] = g
					}
				}
				return out
			}
		}
	}
	return v
}
