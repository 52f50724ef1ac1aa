package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema() *VarSchema {
	return NewVarSchema(map[string]VarType{
		"count":    VarInt,
		"rate":     VarFloat,
		"name":     VarString,
		"flag":     VarBool,
		"anything": VarAny,
	})
}

func TestVarsSetGetRoundTrip(t *testing.T) {
	schema := testSchema()
	v := newVars(schema)

	require.False(t, v.IsSet("count"))
	v.SetInt("count", 42)
	require.True(t, v.IsSet("count"))
	got, ok := v.GetInt("count")
	require.True(t, ok)
	require.Equal(t, int64(42), got)

	v.Set("rate", 3.5)
	rate, ok := v.Get("rate")
	require.True(t, ok)
	require.Equal(t, 3.5, rate)

	v.Set("name", "alice")
	name, ok := v.Get("name")
	require.True(t, ok)
	require.Equal(t, "alice", name)

	v.Set("flag", true)
	flag, ok := v.Get("flag")
	require.True(t, ok)
	require.Equal(t, true, flag)
}

func TestVarsUnknownNameIsUnset(t *testing.T) {
	v := newVars(testSchema())
	_, ok := v.Get("nope")
	require.False(t, ok)
	require.False(t, v.IsSet("nope"))
}

func TestVarsSetWrongTypePanics(t *testing.T) {
	v := newVars(testSchema())
	require.Panics(t, func() { v.Set("count", "not an int") })
	require.Panics(t, func() { v.SetInt("name", 1) })
}

func TestVarsUnsetClearsFlagNotValue(t *testing.T) {
	v := newVars(testSchema())
	v.SetInt("count", 7)
	v.Unset("count")
	require.False(t, v.IsSet("count"))
	_, ok := v.GetInt("count")
	require.False(t, ok, "GetInt must treat an unset slot as absent even though the backing int wasn't zeroed")
}

func TestVarsResetEmptiesEverySlot(t *testing.T) {
	schema := testSchema()
	v := newVars(schema)
	v.SetInt("count", 1)
	v.Set("rate", 1.0)
	v.Set("name", "x")
	v.Set("flag", true)
	require.False(t, v.IsEmpty())

	v.reset()
	require.True(t, v.IsEmpty())
	_, ok := v.GetInt("count")
	require.False(t, ok)
}

func TestVarsEmptySchemaSizeZero(t *testing.T) {
	schema := NewVarSchema(nil)
	require.Equal(t, 0, schema.Size())
	v := newVars(schema)
	require.True(t, v.IsEmpty())
}
