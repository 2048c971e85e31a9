package module

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openSource(t *testing.T, content string) *Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.rr")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	r, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestPredicates(t *testing.T) {
	require.True(t, IsDigit('0'))
	require.True(t, IsDigit('9'))
	require.False(t, IsDigit('a'))

	require.True(t, IsAlpha('a'))
	require.True(t, IsAlpha('Z'))
	require.True(t, IsAlpha('_'))
	require.False(t, IsAlpha('3'))

	require.True(t, IsIdentStart('_'))
	require.False(t, IsIdentStart('3'))
	require.True(t, IsIdentCont('3'))

	require.True(t, IsWhitespace(' '))
	require.True(t, IsWhitespace('\t'))
	require.False(t, IsWhitespace('x'))

	require.True(t, IsOperatorChar('+'))
	require.False(t, IsOperatorChar('a'))
}

func TestScanIdentifier(t *testing.T) {
	r := openSource(t, "fibonacci_2 + 1")
	require.Equal(t, "fibonacci_2", ScanIdentifier(r))
}

func TestScanNumber(t *testing.T) {
	r := openSource(t, "3.1415,")
	require.Equal(t, "3.1415", ScanNumber(r))
}

func TestScanStringEscapes(t *testing.T) {
	r := openSource(t, `line one\nline two"`)
	s, err := ScanString(r)
	require.NoError(t, err)
	require.Equal(t, "line one\nline two", s)
}

func TestScanStringUnterminated(t *testing.T) {
	r := openSource(t, `no closing quote`)
	_, err := ScanString(r)
	require.Error(t, err)
}

func TestSkipCommentsAndWhitespace(t *testing.T) {
	r := openSource(t, "   # a comment\n\t# another\nrest")
	SkipCommentsAndWhitespace(r)
	require.Equal(t, "rest", ScanIdentifier(r))
}

func TestReaderLineTracking(t *testing.T) {
	r := openSource(t, "a\nb\nc")
	require.Equal(t, 1, r.Line())
	r.Next()
	r.Next()
	require.Equal(t, 2, r.Line())
}
