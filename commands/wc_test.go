package commands

import (
	"strings"
	"testing"
	"testing/iotest"

	"github.com/sandsh/sandsh/core/vos/vostest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWc(t *testing.T) {
	cases := goldenTestSuite{
		"stdin":   {Args: []string{"wc"}, Stdin: "one two\nthree\n"},
		"missing": {Args: []string{"wc", "does not exist.txt"}},
		"lines":   {Args: []string{"wc", "-l", "a.txt", "b.txt"}, Files: map[string]string{"a.txt": "1\n2\n", "b.txt": "3\n"}},
		"chars":   {Args: []string{"wc", "-cm"}, Stdin: "héllo"},
		"longest": {Args: []string{"wc", "-lL", "a.txt", "b.txt"}, Files: map[string]string{"a.txt": "short\n\tindented\n", "b.txt": "no newline at end"}},
	}

	cases.Run(t, Wc)
}

func TestWc_single_file(t *testing.T) {
	cmd := vostest.Command(Wc, "wc", "/foo.txt")

	res, err := cmd.Run()
	require.NoError(t, err)
	assert.NotEqual(t, 0, res.ExitCode, "exit code")

	require.NoError(t, writeFile(cmd.VFS, "/foo.txt", "Hello,\nworld !"))
	out, err := cmd.CombinedOutput()
	require.NoError(t, err)
	assert.Equal(t, 0, cmd.ExitStatus, "exit code")
	assert.Equal(t, " 1  3 14 /foo.txt\n", string(out))
}

func TestCountStream_splitRunes(t *testing.T) {
	// OneByteReader splits every multi-byte rune across writes.
	stats, err := countStream("-", iotest.OneByteReader(strings.NewReader("naïve café\n")))
	require.NoError(t, err)

	assert.Equal(t, 13, stats.bytes)
	assert.Equal(t, 11, stats.chars)
	assert.Equal(t, 2, stats.words)
	assert.Equal(t, 1, stats.lines)
	assert.Equal(t, 10, stats.maxLine)
}
