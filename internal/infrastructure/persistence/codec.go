package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Type markers embedded in persisted payloads so ordered maps and timestamps
// decode back to their original kind instead of plain objects and strings.
const (
	typeKey   = "__type"
	valueKey  = "value"
	typeMap   = "Map"
	typeDate  = "Date"
	dateStyle = time.RFC3339Nano
)

type tagged struct {
	Type  string          `json:"__type"`
	Value json.RawMessage `json:"value"`
}

// Timestamp is a time.Time that persists as {"__type":"Date","value":"..."}.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// TimestampPtr wraps an optional time.
func TimestampPtr(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	ts := NewTimestamp(*t)
	return &ts
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	value, err := json.Marshal(t.Time.Format(dateStyle))
	if err != nil {
		return nil, err
	}
	return json.Marshal(tagged{Type: typeDate, Value: value})
}

// UnmarshalJSON accepts the tagged form and, leniently, a bare RFC 3339 string.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		var tg tagged
		if err := json.Unmarshal(data, &tg); err != nil {
			return err
		}
		if tg.Type != typeDate {
			return fmt.Errorf("expected %s marker, got %q", typeDate, tg.Type)
		}
		if err := json.Unmarshal(tg.Value, &raw); err != nil {
			return err
		}
	}
	parsed, err := time.Parse(dateStyle, raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// OrderedMap is an insertion-ordered map with unique string keys. It persists
// as {"__type":"Map","value":[[key, value], ...]}.
type OrderedMap[V any] struct {
	keys   []string
	values map[string]V
}

// NewOrderedMap returns an empty map.
func NewOrderedMap[V any]() *OrderedMap[V] {
	return &OrderedMap[V]{values: make(map[string]V)}
}

// Set inserts or replaces key; replacing keeps the original position.
func (m *OrderedMap[V]) Set(key string, value V) {
	if m.values == nil {
		m.values = make(map[string]V)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key.
func (m *OrderedMap[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Delete removes key.
func (m *OrderedMap[V]) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *OrderedMap[V]) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries.
func (m *OrderedMap[V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Range calls fn in insertion order until it returns false.
func (m *OrderedMap[V]) Range(fn func(key string, value V) bool) {
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// MarshalJSON implements json.Marshaler.
func (m *OrderedMap[V]) MarshalJSON() ([]byte, error) {
	pairs := make([][2]interface{}, 0, len(m.keys))
	for _, k := range m.keys {
		pairs = append(pairs, [2]interface{}{k, tag(m.values[k])})
	}
	value, err := json.Marshal(pairs)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tagged{Type: typeMap, Value: value})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *OrderedMap[V]) UnmarshalJSON(data []byte) error {
	var tg tagged
	if err := json.Unmarshal(data, &tg); err != nil {
		return err
	}
	if tg.Type != typeMap {
		return fmt.Errorf("expected %s marker, got %q", typeMap, tg.Type)
	}
	var pairs [][]json.RawMessage
	if err := json.Unmarshal(tg.Value, &pairs); err != nil {
		return err
	}
	m.keys = nil
	m.values = make(map[string]V, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return fmt.Errorf("map entry has %d elements, want 2", len(pair))
		}
		var key string
		if err := json.Unmarshal(pair[0], &key); err != nil {
			return err
		}
		var value V
		if err := decodeValue(pair[1], &value); err != nil {
			return err
		}
		m.Set(key, value)
	}
	return nil
}

// decodeValue unmarshals raw into dst, reviving markers when dst is untyped.
func decodeValue(raw json.RawMessage, dst interface{}) error {
	if p, ok := dst.(*interface{}); ok {
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		*p = Revive(generic)
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// tag converts untyped payload trees so time values carry a Date marker.
// Typed structs are expected to use Timestamp and OrderedMap directly.
func tag(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return NewTimestamp(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return NewTimestamp(*val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = tag(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = tag(item)
		}
		return out
	default:
		return v
	}
}

// Revive walks a generically decoded JSON tree and turns Date markers into
// time.Time and Map markers into *OrderedMap[interface{}].
func Revive(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if kind, ok := val[typeKey].(string); ok && len(val) == 2 {
			if inner, ok := val[valueKey]; ok {
				if revived, ok := reviveTagged(kind, inner); ok {
					return revived
				}
			}
		}
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = Revive(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Revive(item)
		}
		return out
	default:
		return v
	}
}

func reviveTagged(kind string, inner interface{}) (interface{}, bool) {
	switch kind {
	case typeDate:
		raw, ok := inner.(string)
		if !ok {
			return nil, false
		}
		t, err := time.Parse(dateStyle, raw)
		if err != nil {
			return nil, false
		}
		return t, true
	case typeMap:
		pairs, ok := inner.([]interface{})
		if !ok {
			return nil, false
		}
		m := NewOrderedMap[interface{}]()
		for _, p := range pairs {
			pair, ok := p.([]interface{})
			if !ok || len(pair) != 2 {
				return nil, false
			}
			m.Set(fmt.Sprint(pair[0]), Revive(pair[1]))
		}
		return m, true
	}
	return nil, false
}
