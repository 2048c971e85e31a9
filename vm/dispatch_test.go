package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newMachine() *Machine {
	return &Machine{reg: newRegistry()}
}

func TestBinaryAddQueueAppendsCopyNotAlias(t *testing.T) {
	m := newMachine()
	a := NewQueue()
	b := NewNumber(5)
	m.push(a)
	m.push(b)
	require.NoError(t, m.binaryAdd())
	require.Len(t, a.Queue, 1)
	require.Equal(t, float64(5), a.Queue[0].Num)
	// the appended element must be an independent copy, not b itself.
	b.Num = 999
	require.Equal(t, float64(5), a.Queue[0].Num)
}

func TestBinaryAddQueueConcatCopiesEachElement(t *testing.T) {
	m := newMachine()
	a := NewQueue()
	a.Queue = append(a.Queue, NewNumber(1))
	b := NewQueue()
	b.Queue = append(b.Queue, NewNumber(2), NewNumber(3))
	m.push(a)
	m.push(b)
	require.NoError(t, m.binaryAdd())
	require.Len(t, a.Queue, 3)
	require.NotSame(t, b.Queue[0], a.Queue[1])
}

func TestBinaryAddMapMergeReleasesOverwrittenValue(t *testing.T) {
	m := newMachine()
	a := NewMap()
	old := NewNumber(1)
	old.Retain()
	a.Map["k"] = old
	b := NewMap()
	b.Map["k"] = NewNumber(2)
	m.push(a)
	m.push(b)
	require.NoError(t, m.binaryAdd())
	require.Equal(t, float64(2), a.Map["k"].Num)
	require.Equal(t, 0, old.Refs) // released by the merge, not leaked
}

func TestBinarySubQueuePrependsCopy(t *testing.T) {
	m := newMachine()
	a := NewQueue()
	a.Queue = append(a.Queue, NewNumber(2))
	b := NewNumber(1)
	m.push(a)
	m.push(b)
	require.NoError(t, m.binarySub())
	require.Len(t, a.Queue, 2)
	require.Equal(t, float64(1), a.Queue[0].Num)
	require.Equal(t, float64(2), a.Queue[1].Num)
}

func TestBinarySubCharComparisonReleasesParent(t *testing.T) {
	m := newMachine()
	parent := NewString("ab")
	m.track(parent)
	c := NewChar(parent, 0) // 'a', retains parent once
	other := NewString("b")
	m.push(c)
	m.push(other)
	require.NoError(t, m.binarySub())
	require.Equal(t, TagNumber, c.Tag)
	require.Equal(t, float64(-1), c.Num) // "a" < "b"
	require.Equal(t, 0, parent.Refs)     // the Char's strong reference was released
}

func TestAssignGenericOverwrite(t *testing.T) {
	m := newMachine()
	a := NewNumber(1)
	b := NewNumber(2)
	m.push(a)
	m.push(b)
	require.NoError(t, m.assign())
	require.Equal(t, float64(2), m.top().Num)
	require.Same(t, a, m.top()) // a keeps its identity
}

func TestAssignRejectsConst(t *testing.T) {
	m := newMachine()
	a := NewNumber(1)
	a.Const = true
	b := NewNumber(2)
	m.push(a)
	m.push(b)
	err := m.assign()
	require.Error(t, err)
	require.Contains(t, err.Error(), "const")
}

func TestAssignCharIntoStringOverwritesByteRange(t *testing.T) {
	m := newMachine()
	parent := NewString("hello")
	m.track(parent)
	c := NewChar(parent, 1) // the 'e'
	repl := NewString("XY")
	m.push(c)
	m.push(repl)
	require.NoError(t, m.assign())
	require.Equal(t, "hXYlo", string(parent.Str))
}

func TestBinaryModNumbersIsFmod(t *testing.T) {
	m := newMachine()
	a := NewNumber(7)
	b := NewNumber(3)
	m.push(a)
	m.push(b)
	require.NoError(t, m.binaryMod())
	require.Equal(t, float64(1), m.top().Num)
	require.Same(t, a, m.top())
}

func TestBinaryModStringQueuePositionalDefaults(t *testing.T) {
	m := newMachine()
	a := NewString("{} and {}")
	q := NewQueue()
	q.Queue = append(q.Queue, NewNumber(1), NewNumber(2))
	m.push(a)
	m.push(q)
	require.NoError(t, m.binaryMod())
	// an empty "{}" spec defaults to width 0, precision 5.
	require.Equal(t, "1.00000 and 2.00000", string(m.top().Str))
}

func TestBinaryModWidthPrecisionSpec(t *testing.T) {
	m := newMachine()
	a := NewString("[{8.2}]")
	q := NewQueue()
	q.Queue = append(q.Queue, NewNumber(3.14159))
	m.push(a)
	m.push(q)
	require.NoError(t, m.binaryMod())
	require.Equal(t, "[    3.14]", string(m.top().Str))
}

func TestBinaryModRunsOutOfElementsLeavesBraceLiteral(t *testing.T) {
	m := newMachine()
	a := NewString("{} {}")
	q := NewQueue()
	q.Queue = append(q.Queue, NewNumber(1))
	m.push(a)
	m.push(q)
	require.NoError(t, m.binaryMod())
	// the second "{}" has no element left to consume, so it and the
	// space before it pass through literally rather than erroring.
	require.Equal(t, "1.00000 {}", string(m.top().Str))
}

func TestBinaryModRejectsWhitespaceInBraces(t *testing.T) {
	m := newMachine()
	a := NewString("{ }")
	q := NewQueue()
	q.Queue = append(q.Queue, NewNumber(1))
	m.push(a)
	m.push(q)
	err := m.binaryMod()
	require.Error(t, err)
	require.Contains(t, err.Error(), "spaces may not be inserted")
}

func TestBinaryModRejectsConst(t *testing.T) {
	m := newMachine()
	a := NewString("{}")
	a.Const = true
	q := NewQueue()
	q.Queue = append(q.Queue, NewNumber(1))
	m.push(a)
	m.push(q)
	err := m.binaryMod()
	require.Error(t, err)
	require.Contains(t, err.Error(), "const")
}

func TestBinaryModUnsupportedTypesErrors(t *testing.T) {
	m := newMachine()
	a := NewBool(true)
	b := NewBool(false)
	m.push(a)
	m.push(b)
	err := m.binaryMod()
	require.Error(t, err)
	require.Contains(t, err.Error(), "modulus")
}

func TestIndirectCallDispatchesToTarget(t *testing.T) {
	m := newMachine()
	fn := NewFunction("f", 1, 1)
	m.push(fn)
	m.push(NewNumber(7)) // the single argument
	m.push(NewNumber(1)) // argc
	require.NoError(t, m.indirectCall())
	require.Len(t, m.frames, 1)
	require.Equal(t, 1, m.frames[0].SP)
	require.Equal(t, 1, m.pc)
}
