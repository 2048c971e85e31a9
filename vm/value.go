package vm

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Tag identifies which variant of the Value sum type a Value holds, per
// §3's data model table.
type Tag int

const (
	TagNumber Tag = iota
	TagBool
	TagNull
	TagString
	TagChar
	TagQueue
	TagMap
	TagFile
	TagFunction
	TagPointer
)

func (t Tag) String() string {
	switch t {
	case TagNumber:
		return "Number"
	case TagBool:
		return "Bool"
	case TagNull:
		return "Null"
	case TagString:
		return "String"
	case TagChar:
		return "Char"
	case TagQueue:
		return "Queue"
	case TagMap:
		return "Map"
	case TagFile:
		return "File"
	case TagFunction:
		return "Function"
	case TagPointer:
		return "Pointer"
	}
	return "?"
}

// FuncInfo is the payload of a Function value: the value representation of
// a callable, per §3.
type FuncInfo struct {
	Name  string
	Arity int
	Addr  int
}

// FileHandle is the payload of a File value: an owned path, mode, and OS
// handle.
type FileHandle struct {
	Path string
	Mode string
	F    *os.File
}

// Value is the tagged-union heap payload every non-trivial RR value is
// boxed in, per §3. Every field not relevant to Tag is simply unused;
// Go's lack of a native sum type makes the flat-struct-with-tag shape the
// idiomatic stand-in the spec's Design Notes call for.
type Value struct {
	Tag Tag

	Num float64
	Bln bool

	Str []byte // String payload

	CharOf *Value // Char: parent String holding the strong reference
	CharAt int    // Char: byte offset into CharOf.Str

	Queue []*Value
	Map   map[string]*Value
	File  *FileHandle
	Fn    FuncInfo
	Ptr   *Value

	Refs  int
	Const bool

	reg *registry // owning registry, set by registry.track; nil until tracked
}

func NewNumber(f float64) *Value { return &Value{Tag: TagNumber, Num: f} }
func NewBool(b bool) *Value      { return &Value{Tag: TagBool, Bln: b} }
func NewNull() *Value            { return &Value{Tag: TagNull} }
func NewString(s string) *Value  { return &Value{Tag: TagString, Str: []byte(s)} }
func NewQueue() *Value            { return &Value{Tag: TagQueue} }
func NewMap() *Value              { return &Value{Tag: TagMap, Map: make(map[string]*Value)} }
func NewFunction(name string, arity, addr int) *Value {
	return &Value{Tag: TagFunction, Fn: FuncInfo{Name: name, Arity: arity, Addr: addr}}
}
// NewPointer returns a Pointer owning one strong reference to target, per
// §3 "Pointer... the only construct that can form cycles intentionally".
func NewPointer(target *Value) *Value {
	target.Retain()
	return &Value{Tag: TagPointer, Ptr: target}
}

// NewChar returns a Char borrowing byte index at of parent, taking a
// strong reference on parent per invariant I2.
func NewChar(parent *Value, at int) *Value {
	parent.Retain()
	return &Value{Tag: TagChar, CharOf: parent, CharAt: at}
}

// Retain takes a durable reference, per the lifecycle rule in §3: only
// values sourced from durable storage gain a refcount on push.
func (v *Value) Retain() { v.Refs++ }

// Release drops one reference; at zero the value is destroyed and its
// owned children released in turn (I1: refcount never goes negative).
func (v *Value) Release() {
	if v.Refs > 0 {
		v.Refs--
		return
	}
	v.destroy(false)
}

// destroy tears down v's owned children and removes v from the live-value
// registry. In sweep mode (during cycle collection) a Pointer's target is
// not followed, per §4.4's asymmetric traversal rule: the target is being
// collected independently and must not be double-released.
func (v *Value) destroy(sweep bool) {
	v.releaseChildren(sweep)
	if v.reg != nil {
		v.reg.untrack(v)
	}
}

// releaseChildren releases whatever v currently owns, without touching v's
// own tracking entry. Used both by destroy and by Mov's in-place
// retype/overwrite (Type_Kill in the canonical implementation), which
// reuses v's identity for a different payload.
func (v *Value) releaseChildren(sweep bool) {
	switch v.Tag {
	case TagChar:
		v.CharOf.Release()
	case TagQueue:
		for _, e := range v.Queue {
			e.Release()
		}
	case TagMap:
		for _, e := range v.Map {
			e.Release()
		}
	case TagFile:
		if v.File != nil && v.File.F != nil {
			v.File.F.Close()
		}
	case TagPointer:
		if !sweep && v.Ptr != nil {
			v.Ptr.Release()
		}
	}
}

// overwrite replaces v's payload with a deep copy of src's, preserving v's
// identity (Refs, Const, and its liveSet entry), per Mov's generic
// Type_Kill+Type_Copy path: the destination Value keeps its address and
// reference count but becomes, by content, an independent copy of src.
// reg is the registry any newly copied nested elements are tracked
// into; pass nil in contexts with no registry to track into.
func (v *Value) overwrite(src *Value, reg *registry) {
	v.releaseChildren(false)
	refs, constFlag, owner := v.Refs, v.Const, v.reg
	*v = Value{Tag: src.Tag, Refs: refs, Const: constFlag, reg: owner}
	switch src.Tag {
	case TagNumber:
		v.Num = src.Num
	case TagBool:
		v.Bln = src.Bln
	case TagNull:
	case TagString:
		v.Str = append([]byte(nil), src.Str...)
	case TagChar:
		v.Tag = TagString
		v.Str = []byte{src.Byte()}
	case TagQueue:
		v.Queue = make([]*Value, len(src.Queue))
		for i, e := range src.Queue {
			v.Queue[i] = e.Copy(reg)
		}
	case TagMap:
		v.Map = make(map[string]*Value, len(src.Map))
		for k, e := range src.Map {
			v.Map[k] = e.Copy(reg)
		}
	case TagFile:
		f := *src.File
		v.File = &f
	case TagFunction:
		v.Fn = src.Fn
	case TagPointer:
		src.Ptr.Retain()
		v.Ptr = src.Ptr
	}
}

// Copy deep-copies v's content into a fresh, unreferenced, non-constant
// Value, per the round-trip law "Copy(v) == v by deep equality... !== by
// identity except trivial scalars". reg is the registry the new Value (and
// any nested elements newly copied along with it) is tracked into; this is
// threaded explicitly rather than inherited from v because v itself (e.g.
// an assembler literal-pool template) may never have been tracked. Pass
// nil to skip tracking entirely.
func (v *Value) Copy(reg *registry) *Value {
	n := &Value{Tag: v.Tag}
	switch v.Tag {
	case TagNumber:
		n.Num = v.Num
	case TagBool:
		n.Bln = v.Bln
	case TagNull:
	case TagString:
		n.Str = append([]byte(nil), v.Str...)
	case TagChar:
		// A copied Char promotes to a standalone one-byte String, per §3
		// "copy promotes to String".
		n.Tag = TagString
		n.Str = []byte{v.CharOf.Str[v.CharAt]}
	case TagQueue:
		n.Queue = make([]*Value, len(v.Queue))
		for i, e := range v.Queue {
			n.Queue[i] = e.Copy(reg)
		}
	case TagMap:
		n.Map = make(map[string]*Value, len(v.Map))
		for k, e := range v.Map {
			n.Map[k] = e.Copy(reg)
		}
	case TagFile:
		f := *v.File
		n.File = &f
	case TagFunction:
		n.Fn = v.Fn
	case TagPointer:
		v.Ptr.Retain()
		n.Ptr = v.Ptr
	}
	if reg != nil {
		reg.track(n)
	}
	return n
}

// MarkConst transitively marks v and its contents constant, per invariant
// I3 and the Con opcode.
func (v *Value) MarkConst() {
	v.Const = true
	switch v.Tag {
	case TagQueue:
		for _, e := range v.Queue {
			e.MarkConst()
		}
	case TagMap:
		for _, e := range v.Map {
			e.MarkConst()
		}
	}
}

// Byte returns the character a Char value borrows.
func (v *Value) Byte() byte { return v.CharOf.Str[v.CharAt] }

// SameType reports whether a and b carry the same Tag, used by the
// comparison opcodes' same-type rule.
func SameType(a, b *Value) bool { return a.Tag == b.Tag }

// PrintFormatted renders v the way the "%" String-format operator does: a
// width of -1 means 0 (no padding), a precision of -1 means 5 decimal
// digits. Only Number (width.precision) and String (width, unquoted) honor
// either; every other type renders exactly as Print(true, 0) does.
func (v *Value) PrintFormatted(width, preci int) string {
	if width == -1 {
		width = 0
	}
	if preci == -1 {
		preci = 5
	}
	switch v.Tag {
	case TagNumber:
		return fmt.Sprintf("%*.*f", width, preci, v.Num)
	case TagString:
		return fmt.Sprintf("%*s", width, string(v.Str))
	default:
		return v.Print(true, 0)
	}
}

// Print renders v in the canonical pretty-print form of §6. top is false
// when v is nested inside a container (Strings/Chars are quoted there).
func (v *Value) Print(top bool, indent int) string {
	switch v.Tag {
	case TagNumber:
		return fmt.Sprintf("%f", v.Num)
	case TagBool:
		if v.Bln {
			return "true"
		}
		return "false"
	case TagNull:
		return "null"
	case TagString:
		if top {
			return string(v.Str)
		}
		return fmt.Sprintf("%q", string(v.Str))
	case TagChar:
		c := v.Byte()
		if top {
			return string(c)
		}
		return fmt.Sprintf("%q", string(c))
	case TagQueue:
		if len(v.Queue) == 0 {
			return "[\n]"
		}
		pad := strings.Repeat(" ", (indent+1)*4)
		var b strings.Builder
		b.WriteString("[\n")
		for i, e := range v.Queue {
			b.WriteString(pad)
			b.WriteString(e.Print(false, indent+1))
			if i < len(v.Queue)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString(strings.Repeat(" ", indent*4))
		b.WriteString("]")
		return b.String()
	case TagMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) == 0 {
			return "{\n}"
		}
		pad := strings.Repeat(" ", (indent+1)*4)
		var b strings.Builder
		b.WriteString("{\n")
		for i, k := range keys {
			b.WriteString(pad)
			b.WriteString(fmt.Sprintf("%q : %s", k, v.Map[k].Print(false, indent+1)))
			if i < len(keys)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString(strings.Repeat(" ", indent*4))
		b.WriteString("}")
		return b.String()
	case TagFile:
		return fmt.Sprintf("<%q, %q, %p>", v.File.Path, v.File.Mode, v.File)
	case TagFunction:
		return fmt.Sprintf("<%s, %d, %d>", v.Fn.Name, v.Fn.Arity, v.Fn.Addr)
	case TagPointer:
		return fmt.Sprintf("%p", v.Ptr)
	}
	return "?"
}
