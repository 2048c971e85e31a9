package vm

import (
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// maxNativeArgs bounds Dll calls to the register-width argument count the
// canonical implementation's trampoline supports.
const maxNativeArgs = 9

// nativeHandle caches an opened shared object and its resolved symbols so
// repeated calls into the same library don't pay dlopen/dlsym twice.
type nativeHandle struct {
	handle  uintptr
	symbols map[string]uintptr
}

// dllCall implements Dll: pop (arity, symbol, library), then pop arity
// native arguments, dlopen/dlsym the library once per (library, symbol)
// pair, and invoke it via purego's raw calling-convention trampoline.
// The native return value is ignored and Null is pushed.
func (m *Machine) dllCall() error {
	arityV := m.pop()
	symV := m.pop()
	libV := m.pop()

	arityN, err := m.requireNumber(arityV)
	m.kill(arityV)
	if err != nil {
		m.kill(symV)
		m.kill(libV)
		return err
	}
	arity := int(arityN)
	sym, ok := asByteString(symV)
	m.kill(symV)
	if !ok {
		m.kill(libV)
		return m.typeErr("String", symV)
	}
	lib, ok := asByteString(libV)
	m.kill(libV)
	if !ok {
		return m.typeErr("String", libV)
	}

	if arity < 0 || arity > maxNativeArgs {
		return errors.Errorf("native call %s:%s: arity %d exceeds the %d-argument limit", lib, sym, arity, maxNativeArgs)
	}
	if len(m.stack) < arity {
		return errors.New("native call: stack underflow")
	}

	args := make([]*Value, arity)
	copy(args, m.stack[len(m.stack)-arity:])
	m.stack = m.stack[:len(m.stack)-arity]

	fn, err := m.resolveSymbol(lib, sym)
	if err != nil {
		for _, a := range args {
			m.kill(a)
		}
		return err
	}

	cargs, keepalive, err := marshalArgs(args)
	for _, a := range args {
		m.kill(a)
	}
	if err != nil {
		return err
	}

	purego.SyscallN(fn, cargs...)
	runtime.KeepAlive(keepalive)

	m.pushFresh(NewNull())
	return nil
}

// resolveSymbol returns the cached address of sym in lib, opening and
// dlsym-ing it the first time this (library, symbol) pair is seen.
func (m *Machine) resolveSymbol(lib, sym string) (uintptr, error) {
	if m.natives == nil {
		m.natives = make(map[string]*nativeHandle)
	}
	h, ok := m.natives[lib]
	if !ok {
		handle, err := purego.Dlopen(lib, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			return 0, errors.Wrapf(err, "dlopen %q", lib)
		}
		h = &nativeHandle{handle: handle, symbols: make(map[string]uintptr)}
		m.natives[lib] = h
	}
	if addr, ok := h.symbols[sym]; ok {
		return addr, nil
	}
	addr, err := purego.Dlsym(h.handle, sym)
	if err != nil {
		return 0, errors.Wrapf(err, "dlsym %q in %q", sym, lib)
	}
	h.symbols[sym] = addr
	return addr, nil
}

// marshalArgs converts RR Values to the pointer-sized words purego's
// trampoline expects: Numbers pass as their truncated int64 bit pattern,
// Bools as 0/1, Strings/Chars as a NUL-terminated C string pointer (kept
// alive in the returned slice so the GC doesn't reclaim it mid-call), and
// Null as zero.
func marshalArgs(args []*Value) ([]uintptr, [][]byte, error) {
	words := make([]uintptr, len(args))
	var keepalive [][]byte
	for i, a := range args {
		switch a.Tag {
		case TagNumber:
			words[i] = uintptr(int64(a.Num))
		case TagBool:
			if a.Bln {
				words[i] = 1
			}
		case TagNull:
			words[i] = 0
		case TagString:
			buf := append(append([]byte(nil), a.Str...), 0)
			keepalive = append(keepalive, buf)
			words[i] = uintptr(unsafe.Pointer(&buf[0]))
		case TagChar:
			buf := []byte{a.Byte(), 0}
			keepalive = append(keepalive, buf)
			words[i] = uintptr(unsafe.Pointer(&buf[0]))
		default:
			return nil, nil, errors.Errorf("native call: unsupported argument type %s", a.Tag)
		}
	}
	return words, keepalive, nil
}
