package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArrayLenQueueAndString(t *testing.T) {
	q := NewQueue()
	q.Queue = append(q.Queue, NewNumber(1), NewNumber(2))
	require.Equal(t, 2, arrayLen(q))

	s := NewString("abc")
	require.Equal(t, 3, arrayLen(s))
}

func TestArrayGetQueueRetainsElement(t *testing.T) {
	e := NewNumber(1)
	q := NewQueue()
	q.Queue = append(q.Queue, e)
	got := arrayGet(q, 0)
	require.Same(t, e, got)
	require.Equal(t, 1, e.Refs)
}

func TestArrayGetStringReturnsBorrowingChar(t *testing.T) {
	reg := newRegistry()
	s := NewString("abc")
	reg.track(s)
	c := arrayGet(s, 1)
	require.Equal(t, TagChar, c.Tag)
	require.Equal(t, byte('b'), c.Byte())
	require.Equal(t, 1, s.Refs)
}

func TestArraySwapQueue(t *testing.T) {
	a, b := NewNumber(1), NewNumber(2)
	q := NewQueue()
	q.Queue = append(q.Queue, a, b)
	arraySwap(q, 0, 1)
	require.Same(t, b, q.Queue[0])
	require.Same(t, a, q.Queue[1])
}

func TestArraySwapString(t *testing.T) {
	s := NewString("ab")
	arraySwap(s, 0, 1)
	require.Equal(t, "ba", string(s.Str))
}

// TestBinarySearchComparatorArgumentOrder uses a subtraction comparator,
// which is asymmetric (a-b != b-a), to pin down the Bsearch calling
// convention: comparator(key, element), per VM_BSearch/VM_Vrt (Loc 0 =
// key, Loc 1 = element). With the arguments reversed, the sign of every
// comparison flips and the search walks away from the target instead of
// toward it, so this would fail under that bug.
func TestBinarySearchComparatorArgumentOrder(t *testing.T) {
	m := newMachine()
	m.code = []Word{ // the compiled form of "ret a - b;"
		Encode(OpLoc, 0),
		Encode(OpCop, 0),
		Encode(OpLoc, 1),
		Encode(OpSub, 0),
		Encode(OpSav, 0),
		Encode(OpFls, 0),
	}
	cmp := NewFunction("cmp", 2, 0)
	arr := NewQueue()
	for _, n := range []float64{10, 20, 30, 40, 50, 60, 70} {
		arr.Queue = append(arr.Queue, NewNumber(n))
	}
	key := NewNumber(60)
	m.push(arr)
	m.push(key)
	m.push(cmp)
	require.NoError(t, m.binarySearch())
	found := m.top()
	require.Equal(t, TagPointer, found.Tag)
	require.Equal(t, float64(60), found.Ptr.Num)
}
