package cfg

import "fmt"

// LoadableEntry is a handle to one "[name]" section, used as the scope
// argument to the Get* family below.
type LoadableEntry struct {
	Name string
	idx  int
}

// FirstLoadableEntry returns the first "[name]" section in file order.
func (c *Config) FirstLoadableEntry() (LoadableEntry, bool) {
	if c.firstLoadable < 0 {
		return LoadableEntry{}, false
	}
	e := c.entries[c.firstLoadable]
	return LoadableEntry{Name: e.Key, idx: c.firstLoadable}, true
}

// NextLoadableEntry returns the section immediately following cur.
func (c *Config) NextLoadableEntry(cur LoadableEntry) (LoadableEntry, bool) {
	next := c.entries[cur.idx].Next
	if next == 0 {
		return LoadableEntry{}, false
	}
	idx := cur.idx + next
	return LoadableEntry{Name: c.entries[idx].Key, idx: idx}, true
}

// GetLoadableEntry looks up a named section by key.
func (c *Config) GetLoadableEntry(name string) (LoadableEntry, bool) {
	entry, ok := c.FirstLoadableEntry()
	for ok {
		if entry.Name == name {
			return entry, true
		}
		entry, ok = c.NextLoadableEntry(entry)
	}
	return LoadableEntry{}, false
}

// Scope identifies where a Get call should search: the top-level chain, a
// loadable entry's children, or an object value's children.
type Scope struct {
	idx int // -1 for the top-level (global) scope
}

// Global is the scope containing keys that appear before the first
// "[name]" section.
func Global() Scope { return Scope{idx: -1} }

// Scope returns the scope of a loadable entry's own keys.
func (e LoadableEntry) Scope() Scope { return Scope{idx: e.idx} }

// Scope returns the scope of an object-typed value's children. Panics if v
// is not an object, mirroring the reference implementation's BUG_ON: a
// caller should have already checked v.IsObject() via the type mask.
func (v Value) Scope() Scope {
	if v.Type != ValueObject {
		panic("cfg: Scope() called on a non-object value")
	}
	return Scope{idx: v.ObjectOff}
}

func (c *Config) chainStart(s Scope) int {
	if s.idx < 0 {
		return 0
	}
	return s.idx + 1
}

// Get returns the first entry named key within s whose value matches mask,
// and whether it was found. If uniqueOnly is true and more than one entry
// in scope has that key, Get returns an error (mirroring the "unique"
// lookup variants that are fatal on ambiguity).
func (c *Config) get(s Scope, key string, mask ValueType, uniqueOnly bool) (Value, bool, error) {
	start := c.chainStart(s)
	if start >= len(c.entries) {
		return Value{}, false, nil
	}

	found := false
	var result Value
	var foundType ValueType

	i := start
	for {
		e := &c.entries[i]
		if e.Kind == entryValue && e.Key == key {
			if found && uniqueOnly {
				return Value{}, false, fmt.Errorf("cfg: key %q is not unique in this scope", key)
			}
			if !found {
				result = e.Value
				foundType = e.Value.Type
				found = true
				if !uniqueOnly {
					break
				}
			}
		}
		if e.Next == 0 {
			break
		}
		i += e.Next
	}

	if !found {
		return Value{}, false, nil
	}
	if foundType&mask == 0 {
		return Value{}, false, fmt.Errorf("cfg: key %q has type %s, expected one of %s", key, foundType, mask)
	}
	return result, true, nil
}

// GetOneOf returns the unique entry named key in s whose type is in mask.
func (c *Config) GetOneOf(s Scope, key string, mask ValueType) (Value, bool, error) {
	return c.get(s, key, mask, true)
}

// GetFirstOneOf is GetOneOf but tolerates (and returns the first of)
// multiple same-named entries, used for repeatable keys like `module`.
func (c *Config) GetFirstOneOf(s Scope, key string, mask ValueType) (Value, bool, error) {
	return c.get(s, key, mask, false)
}

// GetString, GetBool, GetUnsigned, GetSigned and GetObject are typed
// conveniences over GetOneOf for the single-type case.
func (c *Config) GetString(s Scope, key string) (string, bool, error) {
	v, ok, err := c.GetOneOf(s, key, ValueString)
	return v.String, ok, err
}

func (c *Config) GetBool(s Scope, key string) (bool, bool, error) {
	v, ok, err := c.GetOneOf(s, key, ValueBool)
	return v.Bool, ok, err
}

func (c *Config) GetUnsigned(s Scope, key string) (uint64, bool, error) {
	v, ok, err := c.GetOneOf(s, key, ValueUnsigned)
	return v.Unsigned, ok, err
}

func (c *Config) GetSigned(s Scope, key string) (int64, bool, error) {
	v, ok, err := c.GetOneOf(s, key, ValueSigned)
	return v.Signed, ok, err
}

func (c *Config) GetObject(s Scope, key string) (Value, bool, error) {
	return c.GetOneOf(s, key, ValueObject)
}

// Iterator walks every entry in scope named key (for repeatable keys such
// as `module`), in file order.
type Iterator struct {
	c    *Config
	i    int
	done bool
	key  string
	mask ValueType
}

// Iterate returns an Iterator over every key-matching entry in s.
func (c *Config) Iterate(s Scope, key string, mask ValueType) *Iterator {
	start := c.chainStart(s)
	if start >= len(c.entries) {
		return &Iterator{c: c, done: true}
	}
	return &Iterator{c: c, i: start, key: key, mask: mask}
}

// Next returns the next matching value, or ok=false when exhausted.
func (it *Iterator) Next() (Value, bool, error) {
	if it.done {
		return Value{}, false, nil
	}

	for {
		e := &it.c.entries[it.i]
		matches := e.Kind == entryValue && e.Key == it.key
		hasNext := e.Next != 0
		nextI := it.i + e.Next

		if matches {
			if !hasNext {
				it.done = true
			} else {
				it.i = nextI
			}
			if e.Value.Type&it.mask == 0 {
				return Value{}, false, fmt.Errorf("cfg: key %q has type %s, expected one of %s", it.key, e.Value.Type, it.mask)
			}
			return e.Value, true, nil
		}

		if !hasNext {
			it.done = true
			return Value{}, false, nil
		}
		it.i = nextI
	}
}

// MandatoryString returns a string key or an error describing the missing
// key the way cfg_oops_no_mandatory_key does.
func (c *Config) MandatoryString(s Scope, key string) (string, error) {
	v, ok, err := c.GetString(s, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("couldn't find mandatory key %q in the config file", key)
	}
	return v, nil
}
