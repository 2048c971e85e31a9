package vm

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/roman2/rr/compiler"
)

// Frame is one call-frame entry: the PC to resume at on return, the
// operand-stack index its Loc references are relative to, and the
// function's entry address (used for stack-trace symbolication), per §3.
type Frame struct {
	RetPC int
	SP    int
	Addr  int
}

// AddressRecord is a (label, entry-PC) pair, sorted by PC, used to find a
// frame's function name via binary search for stack traces.
type AddressRecord struct {
	Label string
	PC    int
}

// sweepBuffer is the constant added to the live count to compute the next
// collection cap, per §4.4 "current size + SWEEP_BUFFER".
const sweepBuffer = 4096

// RuntimeError reports a fatal failure during execution, carrying the
// (file, line) the failing instruction was compiled from and a
// symbolicated call-stack trace, per §4.3 "Failure semantics".
type RuntimeError struct {
	Err   error
	Trace []string
	File  string
	Line  int
}

func (e *RuntimeError) Error() string {
	return errors.Wrapf(e.Err, "%s:%d", e.File, e.Line).Error()
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Machine is one RR virtual machine instance: operand stack, call-frame
// stack, data segment, return register, and instruction array, per §4.3
// "State".
type Machine struct {
	code  []Word
	data  []*Value
	debug []compiler.DebugRecord
	addrs []AddressRecord

	stack  []*Value
	frames []Frame
	retReg *Value

	pc   int
	spd  int
	done bool
	retN int

	gc  *Collector
	reg *registry
	rng *rand.Rand

	natives map[string]*nativeHandle

	stdout io.Writer
}

// Option configures a Machine at construction.
type Option func(*Machine)

// Stdout overrides the writer Prt writes to (default os.Stdout).
func Stdout(w io.Writer) Option { return func(m *Machine) { m.stdout = w } }

// New returns a Machine ready to run the given program, per §4.3's
// initial state: "pc=0, stacks empty, return register empty".
func New(code []Word, data []*Value, debug []compiler.DebugRecord, addrs []AddressRecord, opts ...Option) *Machine {
	m := &Machine{
		code:   code,
		data:   data,
		debug:  debug,
		addrs:  addrs,
		stdout: os.Stdout,
		rng:    rand.New(rand.NewSource(1)),
	}
	m.reg = newRegistry()
	m.gc = NewCollector(m.reg, sweepBuffer)
	for _, o := range opts {
		o(m)
	}
	return m
}

// ExitCode returns the latched Number return value, truncated to int, once
// Run has finished via End.
func (m *Machine) ExitCode() int { return m.retN }

func (m *Machine) push(v *Value) { m.stack = append(m.stack, v) }

func (m *Machine) pop() *Value {
	n := len(m.stack) - 1
	v := m.stack[n]
	m.stack = m.stack[:n]
	return v
}

func (m *Machine) top() *Value { return m.stack[len(m.stack)-1] }

func (m *Machine) curFrame() *Frame { return &m.frames[len(m.frames)-1] }

// debugAt returns the (file, line) the instruction at pc was compiled
// from.
func (m *Machine) debugAt(pc int) (string, int) {
	if pc >= 0 && pc < len(m.debug) {
		return m.debug[pc].File, m.debug[pc].Line
	}
	return "?", 0
}

// symbolAt finds the function whose entry address is the greatest one not
// exceeding pc, via binary search over the sorted address table.
func (m *Machine) symbolAt(pc int) string {
	lo, hi, best := 0, len(m.addrs)-1, "?"
	for lo <= hi {
		mid := (lo + hi) / 2
		if m.addrs[mid].PC <= pc {
			best = m.addrs[mid].Label
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

func (m *Machine) trace() []string {
	t := make([]string, 0, len(m.frames)+1)
	t = append(t, m.symbolAt(m.pc))
	for i := len(m.frames) - 1; i >= 0; i-- {
		t = append(t, m.symbolAt(m.frames[i].Addr))
	}
	return t
}

func (m *Machine) fail(err error) error {
	file, line := m.debugAt(m.pc - 1)
	return &RuntimeError{Err: err, Trace: m.trace(), File: file, Line: line}
}

// Run executes instructions until End sets done, or (for reentrant runs
// launched from Vrt/Bsr/Qso) until the frame stack is popped back to
// entryDepth, per §4.3 "Dispatch".
func (m *Machine) Run() error {
	return m.run(len(m.frames))
}

func (m *Machine) run(entryDepth int) error {
	for !m.done {
		if m.pc < 0 || m.pc >= len(m.code) {
			return m.fail(errors.Errorf("program counter %d out of range", m.pc))
		}
		w := m.code[m.pc]
		m.pc++
		op, operand := w.Decode()
		if err := m.step(op, operand); err != nil {
			return err
		}
		if len(m.frames) < entryDepth {
			return nil
		}
	}
	return nil
}

func (m *Machine) typeErr(want string, v *Value) error {
	return errors.Errorf("expected %s, found %s", want, v.Tag)
}

func (m *Machine) requireNumber(v *Value) (float64, error) {
	if v.Tag != TagNumber {
		return 0, m.typeErr("Number", v)
	}
	return v.Num, nil
}

func (m *Machine) requireBool(v *Value) (bool, error) {
	if v.Tag != TagBool {
		return false, m.typeErr("Bool", v)
	}
	return v.Bln, nil
}

func (m *Machine) requireConstOK(v *Value) error {
	if v.Const {
		return errors.New("cannot modify (=) const values")
	}
	return nil
}

// microUptime mirrors Tim's "microseconds since epoch" wording with a
// monotonic-enough stand-in for wall time.
func microUptime() int64 { return time.Now().UnixMicro() }

// reseed replaces the machine's random source, implementing Srd.
func (m *Machine) reseed(seed int64) { m.rng = rand.New(rand.NewSource(seed)) }
