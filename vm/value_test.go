package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetainReleaseLifecycle(t *testing.T) {
	reg := newRegistry()
	v := NewNumber(42)
	reg.track(v)
	require.Equal(t, 1, reg.liveCount())

	v.Retain()
	require.Equal(t, 1, v.Refs)
	v.Release() // still has one durable reference left
	require.Equal(t, 0, v.Refs)
	require.Equal(t, 1, reg.liveCount())

	v.Release() // refcount was already 0: this destroys it
	require.Equal(t, 0, reg.liveCount())
}

func TestCharRetainsParentString(t *testing.T) {
	reg := newRegistry()
	parent := NewString("hello")
	reg.track(parent)
	c := NewChar(parent, 1)
	reg.track(c)
	require.Equal(t, 1, parent.Refs)

	// only the Char is destroyed; the parent drops back to 0 references
	// and stays tracked.
	c.Release()
	require.Equal(t, 0, parent.Refs)
	require.Equal(t, 1, reg.liveCount())
}

func TestCopyPromotesCharToString(t *testing.T) {
	parent := NewString("hello")
	c := NewChar(parent, 0)
	cp := c.Copy(nil)
	require.Equal(t, TagString, cp.Tag)
	require.Equal(t, "h", string(cp.Str))
}

func TestCopyIsIndependent(t *testing.T) {
	q := NewQueue()
	q.Queue = append(q.Queue, NewNumber(1))
	cp := q.Copy(nil)
	cp.Queue[0].Num = 99
	require.Equal(t, float64(1), q.Queue[0].Num)
}

func TestMarkConstIsTransitive(t *testing.T) {
	inner := NewNumber(1)
	q := NewQueue()
	q.Queue = append(q.Queue, inner)
	q.MarkConst()
	require.True(t, q.Const)
	require.True(t, inner.Const)
}

func TestOverwriteReleasesOldOwnedChildren(t *testing.T) {
	oldChild := NewNumber(1)
	oldChild.Retain()
	a := NewQueue()
	a.Queue = append(a.Queue, oldChild)

	b := NewString("replacement")
	a.overwrite(b, nil)

	require.Equal(t, TagString, a.Tag)
	require.Equal(t, "replacement", string(a.Str))
	// oldChild's reference was released exactly once by overwrite.
	require.Equal(t, 0, oldChild.Refs)
}

func TestOverwritePreservesIdentityAndRefs(t *testing.T) {
	a := NewNumber(1)
	a.Retain()
	a.Retain()
	a.Const = false
	b := NewNumber(2)
	a.overwrite(b, nil)
	require.Equal(t, 2, a.Refs)
	require.Equal(t, float64(2), a.Num)
}

func TestOverwritePointerRetainsNewTarget(t *testing.T) {
	target := NewNumber(5)
	src := NewPointer(target)
	require.Equal(t, 1, target.Refs)

	dst := NewNumber(0)
	dst.overwrite(src, nil)
	require.Equal(t, TagPointer, dst.Tag)
	require.Equal(t, 2, target.Refs) // src's reference, plus overwrite's new one
}
