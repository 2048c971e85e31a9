package vm

import "github.com/pkg/errors"

// indirectCall implements Vrt: the top of stack is an argument count: the
// callable sits ofsize slots below the arguments, which remain in place.
// A Pointer callable is dereferenced to its target Function. The callable
// itself is left on the stack for a matching Trv to discard, per the
// canonical implementation's "VRT/TRV" pairing.
func (m *Machine) indirectCall() error {
	n := m.pop()
	argc, err := m.requireNumber(n)
	m.kill(n)
	if err != nil {
		return err
	}
	idx := len(m.stack) - int(argc) - 1
	if idx < 0 {
		return errors.New("indirect call: stack underflow")
	}
	callee := m.stack[idx]
	target := callee
	if target.Tag == TagPointer {
		target = target.Ptr
	}
	if target.Tag != TagFunction {
		return m.typeErr("Function", target)
	}
	if target.Fn.Arity != int(argc) {
		return errors.Errorf("expected %d arguments for indirect call %s but encountered %d arguments", target.Fn.Arity, target.Fn.Name, int(argc))
	}
	sp := len(m.stack) - int(argc)
	m.frames = append(m.frames, Frame{RetPC: m.pc, SP: sp, Addr: target.Fn.Addr})
	m.pc = target.Fn.Addr
	return nil
}

// callBuiltin invokes an RR Function value (or Pointer to one) with args,
// reentering the dispatch loop until the synthetic call frame it creates
// unwinds, and returns the callee's return value. Used by Bsearch and
// Qsort to run their comparator callbacks, mirroring the canonical
// implementation's "push args, Vrt, VM_Run, pop callee, take ret" idiom.
func (m *Machine) callBuiltin(fn *Value, args []*Value) (*Value, error) {
	target := fn
	if target.Tag == TagPointer {
		target = target.Ptr
	}
	if target.Tag != TagFunction {
		return nil, m.typeErr("Function", target)
	}
	if target.Fn.Arity != len(args) {
		return nil, errors.Errorf("expected %d arguments for callback %s but encountered %d arguments", target.Fn.Arity, target.Fn.Name, len(args))
	}
	fn.Retain()
	m.push(fn)
	for _, a := range args {
		a.Retain()
		m.push(a)
	}
	sp := len(m.stack) - len(args)
	m.frames = append(m.frames, Frame{RetPC: m.pc, SP: sp, Addr: target.Fn.Addr})
	m.pc = target.Fn.Addr
	entryDepth := len(m.frames)
	if err := m.run(entryDepth); err != nil {
		return nil, err
	}
	callee := m.pop()
	m.kill(callee)
	result := m.retReg
	m.retReg = nil
	if result == nil {
		result = NewNull()
		m.track(result)
	}
	return result, nil
}
