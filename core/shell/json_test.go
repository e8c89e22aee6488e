package shell

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_roundTrip(t *testing.T) {
	inputs := []string{
		"echo hello world",
		"FOO=bar BAR=$(date) env | sort",
		"cat f | grep x | wc -l",
		"a && b || c; d",
		"if a; then b; elif c; then d; else e; fi",
		"for i in 1 \"2 3\" $x; do echo $i; done",
		"for arg; do echo \"$arg\"; done",
		"while read line; do echo $line; done < in",
		"until false; do break 2; continue; done",
		"(cd /; ls) > out 2>&1",
		"{ echo a; } >> log",
		"case $1 in a|b) echo ab;; *) ;; esac",
		"f() { local x=1; return $x; }",
		"! grep -q x file",
		"cat <<EOF\nhi $USER\nEOF\n",
		"cat <<'EOF'\nraw $USER\nEOF\n",
		"cat <<< \"$var\"",
		"arr=(a b c) arr[1]=z x+=y",
		"echo ${x:-default} `date` '' \"\"",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			cmd, err := Parse(input)
			require.NoError(t, err)

			data, err := Marshal(cmd)
			require.NoError(t, err)

			decoded, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, cmd, decoded, "json: %s", data)
		})
	}
}

func TestUnmarshal_errors(t *testing.T) {
	for _, input := range []string{
		`{"Bogus":{}}`,
		`{"Simple":{},"Pipeline":{}}`,
		`{"Simple":{"words":[{"parts":[{"Nope":"x"}]}]}}`,
		`{"List":{"op":"Xor"}}`,
		`[]`,
	} {
		t.Run(input, func(t *testing.T) {
			_, err := Unmarshal([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestDumpAST_empty(t *testing.T) {
	out, err := DumpAST("   \n")
	require.NoError(t, err)
	assert.Equal(t, "null", out)
}

func TestDumpAST_parseError(t *testing.T) {
	_, err := DumpAST("if true")
	assert.Error(t, err)
}

func ExampleDumpAST() {
	out, _ := DumpAST(`echo "$HOME"`)
	fmt.Println(out)

	// Output: {"Simple":{"words":[{"parts":[{"Literal":"echo"}]},{"parts":[{"Variable":"HOME","quoted":true}]}],"redirects":null,"assignments":null}}
}

func ExampleDumpAST_list() {
	out, _ := DumpAST("true && false")
	fmt.Println(out)

	// Output: {"List":{"left":{"Simple":{"words":[{"parts":[{"Literal":"true"}]}],"redirects":null,"assignments":null}},"op":"And","right":{"Simple":{"words":[{"parts":[{"Literal":"false"}]}],"redirects":null,"assignments":null}}}}
}
