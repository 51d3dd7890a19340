package wdhistory

import (
	"encoding/json"
	"strconv"
)

// Value is the primary value of a statement or snak. It is one of
// StringValue, EntityValue, TimeValue, QuantityValue, MonolingualValue,
// GlobeValue, Coordinate, Placeholder or RawValue.
type Value interface {
	// String returns the canonical text form used for persistence and for
	// value comparison during revert detection.
	String() string
	Equal(Value) bool
	isValue()
}

// StringValue is a plain string value (string, external-id, url, ...).
type StringValue string

// EntityValue is a reference to another entity, e.g. "Q42" or "P31".
type EntityValue string

// TimeValue holds the time string as written in the document, e.g.
// "+2001-01-15T00:00:00Z". Precision and calendar model are metadata.
type TimeValue string

// QuantityValue holds the decimal amount as written, e.g. "+12.5". Unit and
// bounds are metadata.
type QuantityValue string

// MonolingualValue is the text of a monolingual text value. The language tag
// is metadata.
type MonolingualValue string

// GlobeValue is a coordinate pair. Changes to it are always reported as two
// Coordinate sub-changes.
type GlobeValue struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Coordinate is one half of a GlobeValue, used by the latitude and longitude
// sub-changes.
type Coordinate float64

// Placeholder is the value of a snak without a concrete value.
type Placeholder string

const (
	NoValue   Placeholder = "novalue"
	SomeValue Placeholder = "somevalue"
)

// RawValue is compact JSON for values of unknown type and for datatype
// metadata entries.
type RawValue string

func (v StringValue) String() string      { return string(v) }
func (v EntityValue) String() string      { return string(v) }
func (v TimeValue) String() string        { return string(v) }
func (v QuantityValue) String() string    { return string(v) }
func (v MonolingualValue) String() string { return string(v) }
func (v Placeholder) String() string      { return string(v) }
func (v RawValue) String() string         { return string(v) }

func (v Coordinate) String() string {
	return strconv.FormatFloat(float64(v), 'f', -1, 64)
}

func (v GlobeValue) String() string {
	b, _ := json.Marshal(v)
	return string(b)
}

func (v StringValue) Equal(o Value) bool      { ov, ok := o.(StringValue); return ok && ov == v }
func (v EntityValue) Equal(o Value) bool      { ov, ok := o.(EntityValue); return ok && ov == v }
func (v TimeValue) Equal(o Value) bool        { ov, ok := o.(TimeValue); return ok && ov == v }
func (v QuantityValue) Equal(o Value) bool    { ov, ok := o.(QuantityValue); return ok && ov == v }
func (v MonolingualValue) Equal(o Value) bool { ov, ok := o.(MonolingualValue); return ok && ov == v }
func (v GlobeValue) Equal(o Value) bool       { ov, ok := o.(GlobeValue); return ok && ov == v }
func (v Coordinate) Equal(o Value) bool       { ov, ok := o.(Coordinate); return ok && ov == v }
func (v Placeholder) Equal(o Value) bool      { ov, ok := o.(Placeholder); return ok && ov == v }
func (v RawValue) Equal(o Value) bool         { ov, ok := o.(RawValue); return ok && ov == v }

func (StringValue) isValue()      {}
func (EntityValue) isValue()      {}
func (TimeValue) isValue()        {}
func (QuantityValue) isValue()    {}
func (MonolingualValue) isValue() {}
func (GlobeValue) isValue()       {}
func (Coordinate) isValue()       {}
func (Placeholder) isValue()      {}
func (RawValue) isValue()         {}

// ValuesEqual compares two possibly nil values.
func ValuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// ValueString returns v.String(), or "" for nil.
func ValueString(v Value) string {
	if v == nil {
		return ""
	}
	return v.String()
}
