package session

import (
	"encoding/json"
	"fmt"
)

// VarType is the declared type of a session variable. Schemas are
// derived once, at benchmark-build time, by collecting every variable
// name referenced by any step — this is what lets Vars avoid
// per-access hashing and, for VarInt, avoid boxing entirely.
type VarType uint8

const (
	VarAny VarType = iota
	VarInt
	VarFloat
	VarString
	VarBool
)

// VarSchema assigns a fixed slot index to every declared variable name.
type VarSchema struct {
	index map[string]int
	types []VarType
	names []string
}

// NewVarSchema builds a schema from a name->type map. Callers (the
// benchmark build pass) are expected to have already collected every
// name referenced by any step in the scenario.
func NewVarSchema(decl map[string]VarType) *VarSchema {
	s := &VarSchema{index: make(map[string]int, len(decl))}
	for name, t := range decl {
		s.index[name] = len(s.types)
		s.types = append(s.types, t)
		s.names = append(s.names, name)
	}
	return s
}

func (s *VarSchema) slotOf(name string) (int, VarType, bool) {
	if s == nil {
		return 0, VarAny, false
	}
	idx, ok := s.index[name]
	if !ok {
		return 0, VarAny, false
	}
	return idx, s.types[idx], true
}

// Size returns the number of declared variable slots.
func (s *VarSchema) Size() int {
	if s == nil {
		return 0
	}
	return len(s.types)
}

// Vars is a session's fixed-size typed variable record.
type Vars struct {
	schema *VarSchema
	isSet  []bool
	ints   []int64
	floats []float64
	bools  []bool
	strs   []string
	anys   []any
}

func newVars(schema *VarSchema) Vars {
	n := schema.Size()
	return Vars{
		schema: schema,
		isSet:  make([]bool, n),
		ints:   make([]int64, n),
		floats: make([]float64, n),
		bools:  make([]bool, n),
		strs:   make([]string, n),
		anys:   make([]any, n),
	}
}

// reset clears every slot without reallocating the backing arrays —
// called by the pool on release so the variable table is empty again
// for the next acquirer.
func (v *Vars) reset() {
	for i := range v.isSet {
		v.isSet[i] = false
		v.ints[i] = 0
		v.floats[i] = 0
		v.bools[i] = false
		v.strs[i] = ""
		v.anys[i] = nil
	}
}

// IsEmpty reports whether every slot is unset — used by pool/session
// tests to verify the release-time invariant.
func (v *Vars) IsEmpty() bool {
	for _, set := range v.isSet {
		if set {
			return false
		}
	}
	return true
}

func (v *Vars) IsSet(name string) bool {
	idx, _, ok := v.schema.slotOf(name)
	return ok && v.isSet[idx]
}

func (v *Vars) Unset(name string) {
	idx, _, ok := v.schema.slotOf(name)
	if !ok {
		return
	}
	v.isSet[idx] = false
}

// Get returns the variable's value boxed as any, and whether it is set.
func (v *Vars) Get(name string) (any, bool) {
	idx, t, ok := v.schema.slotOf(name)
	if !ok || !v.isSet[idx] {
		return nil, false
	}
	switch t {
	case VarInt:
		return v.ints[idx], true
	case VarFloat:
		return v.floats[idx], true
	case VarBool:
		return v.bools[idx], true
	case VarString:
		return v.strs[idx], true
	default:
		return v.anys[idx], true
	}
}

// Set stores val under name, according to the variable's declared
// type. Numeric values are normalized to the slot's storage type
// first, since callers building steps from external data (YAML, JSON)
// hand in whatever concrete numeric kind their decoder produced —
// yaml.v3 decodes a scalar integer as Go's int, not int64, and config
// authors shouldn't need to know the difference. Panics if val still
// doesn't fit the declared type after normalization — that is a
// genuine build-time schema mismatch, not a runtime concern.
func (v *Vars) Set(name string, val any) {
	idx, t, ok := v.schema.slotOf(name)
	if !ok {
		panic(fmt.Sprintf("session: variable %q not declared in schema", name))
	}
	switch t {
	case VarInt:
		n, ok := asInt64(val)
		if !ok {
			panic(fmt.Sprintf("session: variable %q is declared int, got %T", name, val))
		}
		v.ints[idx] = n
	case VarFloat:
		f, ok := asFloat64(val)
		if !ok {
			panic(fmt.Sprintf("session: variable %q is declared float, got %T", name, val))
		}
		v.floats[idx] = f
	case VarBool:
		b, ok := val.(bool)
		if !ok {
			panic(fmt.Sprintf("session: variable %q is declared bool, got %T", name, val))
		}
		v.bools[idx] = b
	case VarString:
		s, ok := val.(string)
		if !ok {
			panic(fmt.Sprintf("session: variable %q is declared string, got %T", name, val))
		}
		v.strs[idx] = s
	default:
		v.anys[idx] = val
	}
	v.isSet[idx] = true
}

// asInt64 accepts any of the integer kinds a config decoder or a step
// author's literal might produce and normalizes it to int64.
func asInt64(val any) (int64, bool) {
	switch n := val.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// asFloat64 accepts any of the floating-point or integer kinds a
// config decoder might produce and normalizes it to float64.
func asFloat64(val any) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// GetInt is the int-specialized accessor for hot paths: it reads
// straight from the int slice with no boxing.
func (v *Vars) GetInt(name string) (int64, bool) {
	idx, t, ok := v.schema.slotOf(name)
	if !ok || t != VarInt || !v.isSet[idx] {
		return 0, false
	}
	return v.ints[idx], true
}

// SetInt is the int-specialized mutator.
func (v *Vars) SetInt(name string, val int64) {
	idx, t, ok := v.schema.slotOf(name)
	if !ok || t != VarInt {
		panic(fmt.Sprintf("session: %q is not declared as an int variable", name))
	}
	v.ints[idx] = val
	v.isSet[idx] = true
}
