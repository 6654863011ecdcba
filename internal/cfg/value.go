package cfg

import "fmt"

// ValueType is a bitmask over the closed set of value kinds a config entry
// can hold, mirroring enum value_type. Masks let lookup callers accept
// more than one type for a key (e.g. "string or object" for `binary`).
type ValueType uint16

const (
	ValueNone      ValueType = 1 << 0
	ValueBool      ValueType = 1 << 1
	ValueUnsigned  ValueType = 1 << 2
	ValueSigned    ValueType = 1 << 3
	ValueString    ValueType = 1 << 4
	ValueObject    ValueType = 1 << 5
	ValueAny       ValueType = 0xFF
)

func (t ValueType) String() string {
	switch t {
	case ValueNone:
		return "None"
	case ValueBool:
		return "Boolean"
	case ValueUnsigned:
		return "Unsigned Integer"
	case ValueSigned:
		return "Signed Integer"
	case ValueString:
		return "String"
	case ValueObject:
		return "Object"
	default:
		return "<Invalid>"
	}
}

// Value is the tagged union a config entry's payload holds.
type Value struct {
	Type ValueType

	Bool       bool
	Unsigned   uint64
	Signed     int64
	String     string
	ObjectOff  int // offset of the entry this object value is attached to
}

func (v Value) IsNull() bool   { return v.Type == ValueNone }
func (v Value) IsBool() bool   { return v.Type == ValueBool }
func (v Value) IsObject() bool { return v.Type == ValueObject }

// entryKind distinguishes a plain key/value entry from a named loadable
// entry ("[name]" header).
type entryKind int

const (
	entryValue entryKind = iota
	entryLoadableEntry
)

// Entry is one flattened node in the config tree: either a scalar/object
// key or a loadable-entry header, threaded to its next sibling within the
// same scope by Next (an offset into Config.entries, 0 meaning "last").
type Entry struct {
	Key   string
	Kind  entryKind
	Value Value
	Next  int
}

func (e Entry) String() string {
	if e.Kind == entryLoadableEntry {
		return fmt.Sprintf("[%s]", e.Key)
	}
	return fmt.Sprintf("%s=%v", e.Key, e.Value)
}
