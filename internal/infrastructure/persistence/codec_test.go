package persistence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 0, 123, time.UTC)

	data, err := json.Marshal(NewTimestamp(at))
	require.NoError(t, err)
	assert.JSONEq(t, `{"__type":"Date","value":"2024-05-01T12:30:00.000000123Z"}`, string(data))

	var decoded Timestamp
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, at.Equal(decoded.Time))
}

func TestTimestampAcceptsPlainString(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-05-01T12:30:00Z"`), &ts))
	assert.Equal(t, 2024, ts.Year())

	require.Error(t, json.Unmarshal([]byte(`{"__type":"Map","value":[]}`), &ts))
}

func TestTimestampPtr(t *testing.T) {
	assert.Nil(t, TimestampPtr(nil))

	at := time.Now()
	ts := TimestampPtr(&at)
	require.NotNil(t, ts)
	assert.True(t, at.Equal(ts.Time))
}

func TestOrderedMapPreservesOrder(t *testing.T) {
	m := NewOrderedMap[int]()
	m.Set("b", 2)
	m.Set("a", 1)
	m.Set("c", 3)
	m.Set("b", 20)
	m.Delete("a")

	assert.Equal(t, []string{"b", "c"}, m.Keys())
	v, ok := m.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 20, v)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"__type":"Map","value":[["b",20],["c",3]]}`, string(data))

	decoded := NewOrderedMap[int]()
	require.NoError(t, json.Unmarshal(data, decoded))
	assert.Equal(t, []string{"b", "c"}, decoded.Keys())
	assert.Equal(t, 2, decoded.Len())
}

func TestOrderedMapOfTimestamps(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewOrderedMap[[]Timestamp]()
	m.Set("udid-1", []Timestamp{NewTimestamp(at)})

	data, err := json.Marshal(m)
	require.NoError(t, err)

	decoded := NewOrderedMap[[]Timestamp]()
	require.NoError(t, json.Unmarshal(data, decoded))
	got, ok := decoded.Get("udid-1")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.True(t, at.Equal(got[0].Time))
}

func TestReviveUntypedTree(t *testing.T) {
	at := time.Date(2023, 7, 8, 9, 10, 11, 0, time.UTC)
	m := NewOrderedMap[interface{}]()
	m.Set("first", map[string]interface{}{"when": at})
	m.Set("second", 2)

	data, err := json.Marshal(map[string]interface{}{"index": m, "at": NewTimestamp(at)})
	require.NoError(t, err)

	var out interface{}
	require.NoError(t, decodeValue(data, &out))

	root, ok := out.(map[string]interface{})
	require.True(t, ok)
	when, ok := root["at"].(time.Time)
	require.True(t, ok)
	assert.True(t, at.Equal(when))

	index, ok := root["index"].(*OrderedMap[interface{}])
	require.True(t, ok)
	assert.Equal(t, []string{"first", "second"}, index.Keys())
	first, _ := index.Get("first")
	nested := first.(map[string]interface{})
	assert.IsType(t, time.Time{}, nested["when"])
}

func TestReviveLeavesOrdinaryObjects(t *testing.T) {
	in := map[string]interface{}{"__type": "Other", "value": "x"}
	assert.Equal(t, in, Revive(in))

	three := map[string]interface{}{"__type": "Date", "value": "2024-01-01T00:00:00Z", "extra": true}
	out := Revive(three).(map[string]interface{})
	assert.Equal(t, "2024-01-01T00:00:00Z", out["value"])
}

func TestTagConvertsNestedTimes(t *testing.T) {
	at := time.Now()
	tagged := tag(map[string]interface{}{
		"list": []interface{}{at},
		"ptr":  &at,
	})
	root := tagged.(map[string]interface{})
	assert.IsType(t, Timestamp{}, root["list"].([]interface{})[0])
	assert.IsType(t, Timestamp{}, root["ptr"])
}
