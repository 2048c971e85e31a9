package vm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOsFlagsUnknownModeRejected(t *testing.T) {
	_, ok := osFlags("bogus")
	require.False(t, ok)
}

func TestOsFlagsKnownModes(t *testing.T) {
	for _, mode := range []string{"r", "w", "a", "r+", "w+", "a+"} {
		_, ok := osFlags(mode)
		require.True(t, ok, mode)
	}
}

func TestFileOpenRelativeJoinsDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.txt"), []byte("hi"), 0644))

	m := newMachine()
	m.push(NewString("data.txt"))
	m.push(NewString("r"))
	m.push(NewString(dir))
	require.NoError(t, m.fileOpen())

	f := m.pop()
	require.Equal(t, TagFile, f.Tag)
	require.NotNil(t, f.File.F)
	require.Equal(t, filepath.Join(dir, "data.txt"), f.File.Path)
}

func TestFileOpenMissingFileLeavesHandleNil(t *testing.T) {
	m := newMachine()
	m.push(NewString("nope.txt"))
	m.push(NewString("r"))
	m.push(NewString(t.TempDir()))
	require.NoError(t, m.fileOpen())

	f := m.pop()
	require.Equal(t, TagFile, f.Tag)
	require.Nil(t, f.File.F)
}

func TestFileWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	fv := &Value{Tag: TagFile, File: &FileHandle{Path: path, Mode: "w+", F: f}}
	fv.Retain() // held by a local, so popping it for Wrt does not close it

	m := newMachine()
	m.push(fv)
	m.push(NewString("hello"))
	require.NoError(t, m.fileWrite())
	n := m.pop()
	require.Equal(t, float64(5), n.Num)

	_, err = f.Seek(0, 0)
	require.NoError(t, err)
	m.push(fv)
	m.push(NewNumber(5))
	require.NoError(t, m.fileRead())
	read := m.pop()
	require.Equal(t, "hello", string(read.Str))
}
