package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Field is one named value of a normalized message. Numeric values are kept
// as the decimal strings Binance sends so exchange precision survives every
// serialization format downstream.
type Field struct {
	Name  string
	Value string
	// Raw marks Value as pre-encoded JSON (depth bid/ask arrays) that must
	// be emitted verbatim instead of quoted as a string.
	Raw bool
}

// NormalizedMessage is the internal representation of one decoded exchange
// event. It is immutable after the decoder builds it: the dispatcher hands
// the same value to every sink, so no sink may mutate Fields.
type NormalizedMessage struct {
	Stream     StreamKind
	Symbol     string
	EventTime  int64
	ReceivedAt time.Time
	Fields     []Field
}

// Key identifies the sink state bucket for the message, matching
// Subscription.Key for the originating subscription.
func (m NormalizedMessage) Key() string {
	return Subscription{Symbol: m.Symbol, Stream: m.Stream}.Key()
}

// FieldNames returns the field names in declaration order.
func (m NormalizedMessage) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// FieldMap returns the fields as a map for consumers that key by name.
// Order is lost; use Fields where order matters.
func (m NormalizedMessage) FieldMap() map[string]string {
	out := make(map[string]string, len(m.Fields))
	for _, f := range m.Fields {
		out[f.Name] = f.Value
	}
	return out
}

// Lookup returns the value of the named field.
func (m NormalizedMessage) Lookup(name string) (string, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// PayloadJSON encodes the fields as a JSON object preserving field order.
func (m NormalizedMessage) PayloadJSON() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(f.Name)
		buf.Write(name)
		buf.WriteByte(':')
		if f.Raw {
			buf.WriteString(f.Value)
		} else {
			value, _ := json.Marshal(f.Value)
			buf.Write(value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes()
}
