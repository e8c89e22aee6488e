package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Clone(t *testing.T) {
	st := NewState()
	st.Env["x"] = "1"
	st.Arrays["a"] = []string{"p"}
	st.Assoc["m"] = map[string]string{"k": "v"}
	st.Positional = []string{"one"}
	st.pushScope()
	require.True(t, st.declareLocal("x"))
	require.True(t, st.declareLocal("a"))

	cp := st.Clone()
	cp.Env["x"] = "2"
	cp.Arrays["a"][0] = "changed"
	cp.Assoc["m"]["k"] = "changed"
	cp.Positional[0] = "changed"
	cp.Locals[0]["a"].Array[0] = "changed"
	cp.Locals[0]["x"] = SavedVar{Kind: VarScalar, Value: "changed"}

	assert.Equal(t, "1", st.Env["x"])
	assert.Equal(t, []string{"p"}, st.Arrays["a"])
	assert.Equal(t, "v", st.Assoc["m"]["k"])
	assert.Equal(t, []string{"one"}, st.Positional)
	assert.Equal(t, SavedVar{Kind: VarScalar, Value: "1"}, st.Locals[0]["x"])
	assert.Equal(t, SavedVar{Kind: VarArray, Array: []string{"p"}}, st.Locals[0]["a"])
}

func TestState_Variables(t *testing.T) {
	st := NewState()

	require.NoError(t, st.Setenv("s", "v"))
	v, ok := st.Lookup("s")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok = st.Lookup("missing")
	assert.False(t, ok)

	require.NoError(t, st.SetArray("a", []string{"x", "y"}))
	assert.Equal(t, "x", st.Getenv("a"))
	require.NoError(t, st.Setenv("a", "first"))
	assert.Equal(t, []string{"first", "y"}, st.Arrays["a"])

	require.NoError(t, st.Unsetenv("a"))
	_, ok = st.Lookup("a")
	assert.False(t, ok)

	assert.Contains(t, st.Environ(), "s=v")
}

func TestState_SetIndex(t *testing.T) {
	cases := []struct {
		name  string
		setup func(st *State)
		index string
		want  []string
		err   string
	}{
		{"new array", func(*State) {}, "2", []string{"", "", "v"}, ""},
		{"scalar promoted", func(st *State) { st.Env["a"] = "s" }, "1", []string{"s", "v"}, ""},
		{"negative", func(st *State) { st.Arrays["a"] = []string{"x", "y"} }, "-1", []string{"x", "v"}, ""},
		{"out of range", func(st *State) { st.Arrays["a"] = []string{"x"} }, "-3", nil, "a[-3]: bad array subscript"},
		{"readonly", func(st *State) { st.Readonly["a"] = true }, "0", nil, "a: readonly variable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := NewState()
			tc.setup(st)

			err := st.SetIndex("a", tc.index, "v")
			if tc.err != "" {
				assert.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, st.Arrays["a"])
			_, scalar := st.Env["a"]
			assert.False(t, scalar)
		})
	}
}

func TestState_Scopes(t *testing.T) {
	st := NewState()
	st.Env["x"] = "global"

	st.pushScope()
	assert.True(t, st.declareLocal("x"))
	assert.True(t, st.declareLocal("y"))
	assert.False(t, st.declareLocal("x"))
	st.Env["x"] = "local"
	st.Env["y"] = "local"
	st.popScope()

	assert.Equal(t, "global", st.Env["x"])
	_, ok := st.Env["y"]
	assert.False(t, ok)
	assert.Empty(t, st.Locals)

	assert.False(t, st.declareLocal("x"))
}

func TestState_ScopesRestoreArrays(t *testing.T) {
	st := NewState()
	st.Arrays["arr"] = []string{"outer1", "outer2"}
	st.Assoc["m"] = map[string]string{"k": "v"}
	st.Env["s"] = "scalar"

	st.pushScope()
	for _, name := range []string{"arr", "m", "s", "fresh"} {
		st.declareLocal(name)
	}
	require.NoError(t, st.SetArray("arr", []string{"inner"}))
	require.NoError(t, st.SetArray("m", []string{"now indexed"}))
	require.NoError(t, st.SetIndex("s", "1", "x"))
	require.NoError(t, st.SetArray("fresh", []string{"z"}))
	st.popScope()

	assert.Equal(t, []string{"outer1", "outer2"}, st.Arrays["arr"])
	assert.Equal(t, map[string]string{"k": "v"}, st.Assoc["m"])
	assert.NotContains(t, st.Arrays, "m")
	assert.Equal(t, "scalar", st.Env["s"])
	assert.NotContains(t, st.Arrays, "s")
	_, ok := st.Lookup("fresh")
	assert.False(t, ok)
}

func TestState_Random(t *testing.T) {
	a, b := NewState(), NewState()
	for i := 0; i < 10; i++ {
		n := a.nextRandom()
		assert.Equal(t, n, b.nextRandom())
		assert.Less(t, n, uint64(32768))
	}

	in, _ := newTestInterpreter(t)
	res, err := in.Run(`RANDOM=7; x=$RANDOM; RANDOM=7; [ $x = $RANDOM ] && echo same`)
	require.NoError(t, err)
	assert.Equal(t, "same\n", res.Stdout)
}
