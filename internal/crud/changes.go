package crud

import (
	"encoding/json"
	"sort"
)

// Changes maps column names to new values. Only columns present in the map
// are written; a present key with a nil value writes NULL.
type Changes map[string]any

// Columns returns the changed column names in a stable order.
func (c Changes) Columns() []string {
	columns := make([]string, 0, len(c))
	for column := range c {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

func (c Changes) without(columns ...string) Changes {
	out := make(Changes, len(c))
	for column, value := range c {
		out[column] = value
	}
	for _, column := range columns {
		delete(out, column)
	}
	return out
}

// Opt wraps an input field whose presence matters. Set is true whenever the
// field appeared in the payload, including as an explicit JSON null.
type Opt[V any] struct {
	Value V
	Set   bool
}

// Some returns a present Opt holding v.
func Some[V any](v V) Opt[V] {
	return Opt[V]{Value: v, Set: true}
}

// Get returns the value and whether it was supplied.
func (o Opt[V]) Get() (V, bool) {
	return o.Value, o.Set
}

// IsZero lets `json:",omitzero"` drop absent fields when encoding.
func (o Opt[V]) IsZero() bool {
	return !o.Set
}

// Put records the value under column when it was supplied.
func (o Opt[V]) Put(c Changes, column string) {
	if o.Set {
		c[column] = o.Value
	}
}

// UnmarshalJSON marks the field present. A JSON null leaves Value at its zero value.
func (o *Opt[V]) UnmarshalJSON(data []byte) error {
	o.Set = true
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON encodes the wrapped value.
func (o Opt[V]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value)
}
