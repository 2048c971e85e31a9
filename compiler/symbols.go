package compiler

import "github.com/pkg/errors"

// Class identifies what kind of thing an identifier is bound to.
type Class int

const (
	ClassGlobal Class = iota
	ClassLocal
	ClassFunction
	ClassFunctionProto
	ClassNativeProto
)

// Symbol is one flat-table identifier record: (class, slot, origin).
// Slot is the stack offset for variables and the argument count for
// functions, matching §3's "Compiler-side entities".
type Symbol struct {
	Name   string
	Class  Class
	Slot   int
	Origin string
}

// reserved identifiers may never be rebound, per §4.1.
var reserved = map[string]bool{"true": true, "false": true, "null": true}

// builtinOrigin marks a Symbol as a pre-seeded builtin keyword rather than
// a user "lib"-declared native prototype, distinguishing the two
// ClassNativeProto origins.
const builtinOrigin = "<builtin>"

// SymbolTable is the compiler's single flat map of every declared
// identifier, plus the pre-seeded builtin keywords.
type SymbolTable struct {
	syms map[string]*Symbol
}

// NewSymbolTable returns a table pre-seeded with every builtin name.
func NewSymbolTable() *SymbolTable {
	t := &SymbolTable{syms: make(map[string]*Symbol)}
	for name, b := range builtins {
		t.syms[name] = &Symbol{Name: name, Class: ClassNativeProto, Slot: b.arity, Origin: builtinOrigin}
	}
	return t
}

// Lookup returns the symbol bound to name, if any.
func (t *SymbolTable) Lookup(name string) (*Symbol, bool) {
	s, ok := t.syms[name]
	return s, ok
}

// Declare registers name with the given class/slot/origin. A
// function-prototype may be upgraded to a matching-arity function; any
// other collision with an existing binding, of whatever class, is a
// redefinition error.
func (t *SymbolTable) Declare(name string, class Class, slot int, origin string) error {
	if reserved[name] {
		return errors.Errorf("cannot rebind reserved identifier %q", name)
	}
	if existing, ok := t.syms[name]; ok {
		if existing.Class == ClassFunctionProto && class == ClassFunction {
			if existing.Slot != slot {
				return errors.Errorf("function %q redefined with arity %d, prototype declared arity %d", name, slot, existing.Slot)
			}
			existing.Class = ClassFunction
			return nil
		}
		return errors.Errorf("redefinition of %q (previously declared as %s)", name, classString(existing.Class))
	}
	t.syms[name] = &Symbol{Name: name, Class: class, Slot: slot, Origin: origin}
	return nil
}

// Remove deletes a binding, used when a lexical scope exits and its local
// declarations go out of view.
func (t *SymbolTable) Remove(name string) { delete(t.syms, name) }

func classString(c Class) string {
	switch c {
	case ClassGlobal:
		return "global variable"
	case ClassLocal:
		return "local variable"
	case ClassFunction:
		return "function"
	case ClassFunctionProto:
		return "function prototype"
	case ClassNativeProto:
		return "native function prototype"
	}
	return "unknown"
}
