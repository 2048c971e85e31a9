package vm

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/roman2/rr/module"
)

// step decodes and executes one instruction, per §4.3's opcode catalogue.
func (m *Machine) step(op Op, operand int64) error {
	switch op {

	// --- Stack and flow ---
	case OpPsh:
		m.push(m.data[operand].Copy(m.reg))
	case OpPop:
		for i := int64(0); i < operand; i++ {
			m.kill(m.pop())
		}
	case OpSpd:
		m.spd += int(operand)
	case OpCal:
		m.frames = append(m.frames, Frame{RetPC: m.pc, SP: len(m.stack) - m.spd, Addr: int(operand)})
		m.spd = 0
		m.pc = int(operand)
	case OpRet:
		f := m.pop_frame()
		m.pc = f.RetPC
	case OpSav:
		v := m.pop()
		if m.retReg != nil {
			m.kill(m.retReg)
		}
		v.Retain()
		m.retReg = v
	case OpLod:
		v := m.retReg
		if v == nil {
			v = NewNull()
			m.track(v)
		}
		m.retReg = nil
		m.push(v)
	case OpFls:
		f := m.curFrame()
		for len(m.stack) > f.SP {
			m.kill(m.pop())
		}
		m.frames = m.frames[:len(m.frames)-1]
		m.pc = f.RetPC
	case OpEnd:
		if m.retReg == nil || m.retReg.Tag != TagNumber {
			return m.fail(errors.New("End requires a Number in the return register"))
		}
		m.retN = int(m.retReg.Num)
		m.done = true
	case OpJmp:
		m.pc = int(operand)
	case OpBrf:
		v := m.pop()
		b, err := m.requireBool(v)
		m.kill(v)
		if err != nil {
			return m.fail(err)
		}
		if !b {
			m.pc = int(operand)
		}

	// --- Memory and globals ---
	case OpGlb:
		v := m.stack[operand]
		v.Retain()
		m.push(v)
	case OpLoc:
		v := m.stack[m.curFrame().SP+int(operand)]
		v.Retain()
		m.push(v)
	case OpGar:
		m.gc.Check(m.stack)

	// --- Assignment ---
	case OpMov:
		if err := m.assign(); err != nil {
			return m.fail(err)
		}

	// --- Arithmetic ---
	case OpAdd:
		if err := m.binaryAdd(); err != nil {
			return m.fail(err)
		}
	case OpSub:
		if err := m.binarySub(); err != nil {
			return m.fail(err)
		}
	case OpMod:
		if err := m.binaryMod(); err != nil {
			return m.fail(err)
		}
	case OpMul, OpDiv, OpPow, OpIdv, OpImd:
		if err := m.binaryMath(op); err != nil {
			return m.fail(err)
		}

	// --- Unary math ---
	case OpAbs, OpSin, OpCos, OpTan, OpAsi, OpAco, OpAta, OpLog, OpSqr, OpCel, OpFlr:
		if err := m.unaryMath(op); err != nil {
			return m.fail(err)
		}

	// --- Comparison and logic ---
	case OpEql, OpNeq, OpLst, OpLte, OpGrt, OpGte:
		if err := m.compare(op); err != nil {
			return m.fail(err)
		}
	case OpAnd, OpLor:
		if err := m.logical(op); err != nil {
			return m.fail(err)
		}
	case OpNot:
		v := m.pop()
		b, err := m.requireBool(v)
		m.kill(v)
		if err != nil {
			return m.fail(err)
		}
		m.pushFresh(NewBool(!b))
	case OpMem:
		b := m.pop()
		a := m.pop()
		same := a == b
		m.kill(a)
		m.kill(b)
		m.pushFresh(NewBool(same))
	case OpAll, OpAny:
		if err := m.quantify(op); err != nil {
			return m.fail(err)
		}

	// --- Containers ---
	case OpPsb, OpPsf:
		if err := m.containerPush(op); err != nil {
			return m.fail(err)
		}
	case OpGet:
		if err := m.containerGet(); err != nil {
			return m.fail(err)
		}
	case OpIns:
		if err := m.containerIns(); err != nil {
			return m.fail(err)
		}
	case OpDel:
		if err := m.containerDel(); err != nil {
			return m.fail(err)
		}
	case OpLen:
		v := m.pop()
		n, err := m.length(v)
		m.kill(v)
		if err != nil {
			return m.fail(err)
		}
		m.pushFresh(NewNumber(float64(n)))
	case OpKey:
		if err := m.mapKeys(); err != nil {
			return m.fail(err)
		}
	case OpExi:
		if err := m.mapExists(); err != nil {
			return m.fail(err)
		}
	case OpSlc:
		if err := m.slice(); err != nil {
			return m.fail(err)
		}
	case OpBsr:
		if err := m.binarySearch(); err != nil {
			return m.fail(err)
		}
	case OpQso:
		if err := m.quicksort(); err != nil {
			return m.fail(err)
		}

	// --- Meta ---
	case OpCop:
		v := m.pop()
		c := v.Copy(m.reg)
		m.kill(v)
		m.push(c)
	case OpPtr:
		v := m.pop()
		m.pushFresh(NewPointer(v))
		v.Release()
	case OpDrf:
		v := m.pop()
		if v.Tag != TagPointer {
			m.kill(v)
			return m.fail(m.typeErr("Pointer", v))
		}
		target := v.Ptr
		target.Retain()
		m.kill(v)
		m.push(target)
	case OpTyp:
		v := m.pop()
		t := strings.ToUpper(v.Tag.String())
		m.kill(v)
		m.pushFresh(NewString(t))
	case OpRef:
		v := m.pop()
		n := v.Refs
		m.kill(v)
		m.pushFresh(NewNumber(float64(n)))
	case OpCon:
		m.top().MarkConst()
	case OpVal:
		v := m.pop()
		if v.Tag != TagString {
			m.kill(v)
			return m.fail(m.typeErr("String", v))
		}
		parsed, err := ParseLiteral(string(v.Str))
		m.kill(v)
		if err != nil {
			return m.fail(err)
		}
		m.pushFresh(parsed)
	case OpPrt:
		v := m.pop()
		s := v.Print(true, 0)
		fmt.Fprintln(m.stdout, s)
		m.kill(v)
		m.pushFresh(NewNumber(float64(len(s))))

	// --- I/O ---
	case OpOpn:
		if err := m.fileOpen(); err != nil {
			return m.fail(err)
		}
	case OpGod:
		v := m.pop()
		ok := v.Tag == TagFile && v.File != nil && v.File.F != nil
		m.kill(v)
		m.pushFresh(NewBool(ok))
	case OpRed:
		if err := m.fileRead(); err != nil {
			return m.fail(err)
		}
	case OpWrt:
		if err := m.fileWrite(); err != nil {
			return m.fail(err)
		}
	case OpTim:
		m.pushFresh(NewNumber(float64(microUptime())))
	case OpSrd:
		v := m.pop()
		seed, err := m.requireNumber(v)
		m.kill(v)
		if err != nil {
			return m.fail(err)
		}
		m.reseed(int64(seed))
	case OpRan:
		m.pushFresh(NewNumber(m.rng.Float64()))
	case OpAsr:
		v := m.pop()
		b, err := m.requireBool(v)
		m.kill(v)
		if err != nil {
			return m.fail(err)
		}
		if !b {
			return m.fail(errors.New("assertion failed"))
		}
	case OpExt:
		v := m.pop()
		n, err := m.requireNumber(v)
		m.kill(v)
		if err != nil {
			return m.fail(err)
		}
		os.Exit(int(n))
	case OpDll:
		if err := m.dllCall(); err != nil {
			return m.fail(err)
		}

	// --- Indirect call ---
	case OpVrt:
		if err := m.indirectCall(); err != nil {
			return m.fail(err)
		}
	case OpTrv:
		fn := m.pop()
		m.kill(fn)
		v := m.retReg
		if v == nil {
			v = NewNull()
			m.track(v)
		}
		m.retReg = nil
		m.push(v)

	default:
		return m.fail(errors.Errorf("unimplemented opcode %s", op.Mnemonic()))
	}
	return nil
}

// charOverwrite implements the canonical implementation's CharCopy: it
// overwrites a's parent string starting at a's byte offset with src's
// bytes, stopping at whichever of the two runs out first.
func charOverwrite(a *Value, src []byte) {
	dst := a.CharOf.Str[a.CharAt:]
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	copy(dst[:n], src[:n])
}

// assign implements Mov (the "=" operator): mutate the lvalue a in place
// to hold (a copy of) rhs's value, leaving a on the stack as the
// expression's result, per the canonical VM_Mov.
func (m *Machine) assign() error {
	b := m.pop()
	a := m.top()
	if err := m.requireConstOK(a); err != nil {
		m.kill(b)
		return err
	}
	if a != b {
		switch {
		case a.Tag == TagChar && b.Tag == TagString:
			charOverwrite(a, b.Str)
		case a.Tag == TagChar && b.Tag == TagChar:
			a.CharOf.Str[a.CharAt] = b.Byte()
		default:
			a.overwrite(b, m.reg)
		}
	}
	m.kill(b)
	return nil
}

// pop_frame pops the frame stack (Ret never unwinds the operand stack
// itself; Fls does that separately).
func (m *Machine) pop_frame() Frame {
	f := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	return f
}

// kill implements the "pop kills the top" lifecycle rule of §3: Release
// decrements if the value has outstanding durable references, or destroys
// it outright when it doesn't.
func (m *Machine) kill(v *Value) { v.Release() }

// pushFresh tracks and pushes a newly constructed transient value.
func (m *Machine) pushFresh(v *Value) {
	m.track(v)
	m.push(v)
}

func numVal(f float64) *Value { return NewNumber(f) }

// binaryAdd implements Add's overloads: Number+Number, String/Char
// concatenation, Queue append/concat, Map merge, per §4.3.
func (m *Machine) binaryAdd() error {
	b := m.pop()
	a := m.top()
	if err := m.requireConstOK(a); err != nil {
		m.kill(b)
		return err
	}
	switch a.Tag {
	case TagNumber:
		n, err := m.requireNumber(b)
		if err != nil {
			m.kill(b)
			return err
		}
		a.Num += n
	case TagString:
		switch b.Tag {
		case TagString:
			a.Str = append(a.Str, b.Str...)
		case TagChar:
			a.Str = append(a.Str, b.Byte())
		default:
			m.kill(b)
			return errors.Errorf("cannot Add %s to String", b.Tag)
		}
	case TagQueue:
		if b.Tag != TagQueue {
			a.Queue = append(a.Queue, b.Copy(m.reg))
			m.kill(b)
			return nil
		}
		for _, e := range b.Queue {
			a.Queue = append(a.Queue, e.Copy(m.reg))
		}
	case TagMap:
		if b.Tag != TagMap {
			m.kill(b)
			return errors.Errorf("cannot Add %s to Map", b.Tag)
		}
		for k, v := range b.Map {
			if old, ok := a.Map[k]; ok {
				old.Release()
			}
			a.Map[k] = v.Copy(m.reg)
		}
	default:
		m.kill(b)
		return errors.Errorf("Add not defined for %s", a.Tag)
	}
	m.kill(b)
	return nil
}

// binarySub implements Sub's overloads: Number subtraction, Queue
// push-front, and String/Char strcmp-style comparison.
func (m *Machine) binarySub() error {
	b := m.pop()
	a := m.top()
	if err := m.requireConstOK(a); err != nil {
		m.kill(b)
		return err
	}
	switch a.Tag {
	case TagNumber:
		n, err := m.requireNumber(b)
		if err != nil {
			m.kill(b)
			return err
		}
		a.Num -= n
	case TagQueue:
		if b.Tag != TagQueue {
			a.Queue = append([]*Value{b.Copy(m.reg)}, a.Queue...)
			m.kill(b)
			return nil
		}
		front := make([]*Value, len(b.Queue))
		for i, e := range b.Queue {
			front[i] = e.Copy(m.reg)
		}
		a.Queue = append(front, a.Queue...)
	case TagString, TagChar:
		var as, bs string
		if a.Tag == TagString {
			as = string(a.Str)
		} else {
			as = string(a.Byte())
		}
		switch b.Tag {
		case TagString:
			bs = string(b.Str)
		case TagChar:
			bs = string(b.Byte())
		default:
			m.kill(b)
			return errors.Errorf("cannot Sub %s from %s", b.Tag, a.Tag)
		}
		cmp := 0
		if as < bs {
			cmp = -1
		} else if as > bs {
			cmp = 1
		}
		if a.Tag == TagChar {
			a.CharOf.Release()
		}
		*a = Value{Tag: TagNumber, Num: float64(cmp), Refs: a.Refs, Const: a.Const}
	default:
		m.kill(b)
		return errors.Errorf("Sub not defined for %s", a.Tag)
	}
	m.kill(b)
	return nil
}

// binaryMod implements Mod's two forms: Number % Number is fmod, and
// String % Queue is positional format substitution, per VM_Mod.
func (m *Machine) binaryMod() error {
	b := m.pop()
	a := m.top()
	if err := m.requireConstOK(a); err != nil {
		m.kill(b)
		return err
	}
	switch {
	case a.Tag == TagNumber && b.Tag == TagNumber:
		y := b.Num
		m.kill(b)
		a.Num = math.Mod(a.Num, y)
	case a.Tag == TagString && b.Tag == TagQueue:
		formatted, err := formatString(string(a.Str), b.Queue)
		m.kill(b)
		if err != nil {
			return err
		}
		a.Str = []byte(formatted)
	default:
		bt := b.Tag
		m.kill(b)
		return errors.Errorf("type %s and type %s not supported with modulus %% operator", a.Tag, bt)
	}
	return nil
}

// formatString substitutes each "{...}" placeholder in s with the next
// element of items, rendered with the placeholder's width/precision spec,
// per VM_Mod's format loop: "{" only opens a placeholder while items remain,
// otherwise it and everything after it is copied out literally.
func formatString(s string, items []*Value) (string, error) {
	var out strings.Builder
	index := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '{' && index < len(items) {
			j := i + 1
			for j < len(s) && s[j] != '}' {
				if module.IsWhitespace(s[j]) {
					return "", errors.New("spaces may not be inserted between { and } with formatted printing")
				}
				j++
			}
			if j >= len(s) {
				return "", errors.New("unterminated { in format string")
			}
			width, preci := parseFormatSpec(s[i+1 : j])
			out.WriteString(items[index].PrintFormatted(width, preci))
			index++
			i = j
			continue
		}
		out.WriteByte(c)
	}
	return out.String(), nil
}

// parseFormatSpec parses a placeholder's inner text as "W.P", ".P", or "W",
// mirroring VM_Mod's sscanf("%ld.%ld") then sscanf(".%ld") fallback: an
// empty or unparseable spec (bare "{}") leaves both at -1 (format defaults).
func parseFormatSpec(spec string) (width, preci int) {
	width, preci = -1, -1
	if n, _ := fmt.Sscanf(spec, "%d.%d", &width, &preci); n == 0 {
		width = -1
		fmt.Sscanf(spec, ".%d", &preci)
	}
	return width, preci
}

func (m *Machine) binaryMath(op Op) error {
	b := m.pop()
	a := m.top()
	if err := m.requireConstOK(a); err != nil {
		m.kill(b)
		return err
	}
	x, err := m.requireNumber(a)
	if err != nil {
		m.kill(b)
		return err
	}
	y, err := m.requireNumber(b)
	m.kill(b)
	if err != nil {
		return err
	}
	switch op {
	case OpMul:
		a.Num = x * y
	case OpDiv:
		a.Num = x / y
	case OpPow:
		a.Num = math.Pow(x, y)
	case OpIdv:
		a.Num = math.Trunc(x / y)
	case OpImd:
		a.Num = float64(int64(x) % int64(y))
	}
	return nil
}

func (m *Machine) unaryMath(op Op) error {
	v := m.pop()
	x, err := m.requireNumber(v)
	m.kill(v)
	if err != nil {
		return err
	}
	var r float64
	switch op {
	case OpAbs:
		r = math.Abs(x)
	case OpSin:
		r = math.Sin(x)
	case OpCos:
		r = math.Cos(x)
	case OpTan:
		r = math.Tan(x)
	case OpAsi:
		r = math.Asin(x)
	case OpAco:
		r = math.Acos(x)
	case OpAta:
		r = math.Atan(x)
	case OpLog:
		r = math.Log(x)
	case OpSqr:
		r = math.Sqrt(x)
	case OpCel:
		r = math.Ceil(x)
	case OpFlr:
		r = math.Floor(x)
	}
	m.pushFresh(numVal(r))
	return nil
}

// compare implements the six comparison opcodes. Per §4.3: ordered
// comparisons are false across differing types; equality is false across
// types except Char/String where a single character equals a length-1
// string with the same byte.
func (m *Machine) compare(op Op) error {
	b := m.pop()
	a := m.pop()
	defer func() { m.kill(a); m.kill(b) }()

	if op == OpEql || op == OpNeq {
		eq := valuesEqual(a, b)
		if op == OpNeq {
			eq = !eq
		}
		m.pushFresh(NewBool(eq))
		return nil
	}
	if a.Tag != b.Tag || a.Tag != TagNumber {
		m.pushFresh(NewBool(false))
		return nil
	}
	var r bool
	switch op {
	case OpLst:
		r = a.Num < b.Num
	case OpLte:
		r = a.Num <= b.Num
	case OpGrt:
		r = a.Num > b.Num
	case OpGte:
		r = a.Num >= b.Num
	}
	m.pushFresh(NewBool(r))
	return nil
}

func asByteString(v *Value) (string, bool) {
	switch v.Tag {
	case TagString:
		return string(v.Str), true
	case TagChar:
		return string(v.Byte()), true
	}
	return "", false
}

func valuesEqual(a, b *Value) bool {
	if as, ok := asByteString(a); ok {
		if bs, ok := asByteString(b); ok {
			return as == bs
		}
	}
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case TagNumber:
		return a.Num == b.Num
	case TagBool:
		return a.Bln == b.Bln
	case TagNull:
		return true
	default:
		return a == b
	}
}

func (m *Machine) logical(op Op) error {
	b := m.pop()
	a := m.top()
	if err := m.requireConstOK(a); err != nil {
		m.kill(b)
		return err
	}
	x, err := m.requireBool(a)
	if err != nil {
		m.kill(b)
		return err
	}
	y, err := m.requireBool(b)
	m.kill(b)
	if err != nil {
		return err
	}
	switch op {
	case OpAnd:
		a.Bln = x && y
	case OpLor:
		a.Bln = x || y
	}
	return nil
}

func (m *Machine) quantify(op Op) error {
	v := m.pop()
	if v.Tag != TagQueue {
		m.kill(v)
		return m.typeErr("Queue", v)
	}
	result := op == OpAll
	for _, e := range v.Queue {
		b, err := m.requireBool(e)
		if err != nil {
			m.kill(v)
			return err
		}
		if op == OpAll && !b {
			result = false
			break
		}
		if op == OpAny && b {
			result = true
			break
		}
	}
	m.kill(v)
	m.pushFresh(NewBool(result))
	return nil
}

func (m *Machine) length(v *Value) (int, error) {
	switch v.Tag {
	case TagQueue:
		return len(v.Queue), nil
	case TagMap:
		return len(v.Map), nil
	case TagString:
		return len(v.Str), nil
	}
	return 0, m.typeErr("Queue, Map, or String", v)
}

// containerPush implements Psb/Psf: append/prepend a copy of the value to
// a Queue.
func (m *Machine) containerPush(op Op) error {
	v := m.pop()
	q := m.top()
	if q.Tag != TagQueue {
		m.kill(v)
		return m.typeErr("Queue", q)
	}
	if err := m.requireConstOK(q); err != nil {
		m.kill(v)
		return err
	}
	c := v.Copy(m.reg)
	m.kill(v)
	if op == OpPsb {
		q.Queue = append(q.Queue, c)
	} else {
		q.Queue = append([]*Value{c}, q.Queue...)
	}
	return nil
}

func queueIndex(size, i int) (int, bool) {
	if i < 0 {
		i += size
	}
	if i < 0 || i >= size {
		return 0, false
	}
	return i, true
}

// containerGet implements Get: Queue[Number], String[Number]->Char,
// Map[String|Char]->value-or-Null.
func (m *Machine) containerGet() error {
	key := m.pop()
	c := m.pop()
	defer m.kill(c)
	switch c.Tag {
	case TagQueue:
		n, err := m.requireNumber(key)
		m.kill(key)
		if err != nil {
			return err
		}
		idx, ok := queueIndex(len(c.Queue), int(n))
		if !ok {
			return errors.Errorf("index %d out of bounds for Queue of size %d", int(n), len(c.Queue))
		}
		e := c.Queue[idx]
		e.Retain()
		m.push(e)
	case TagString:
		n, err := m.requireNumber(key)
		m.kill(key)
		if err != nil {
			return err
		}
		idx, ok := queueIndex(len(c.Str), int(n))
		if !ok {
			return errors.Errorf("index %d out of bounds for String of length %d", int(n), len(c.Str))
		}
		m.pushFresh(NewChar(c, idx))
	case TagMap:
		ks, ok := asByteString(key)
		m.kill(key)
		if !ok {
			return m.typeErr("String or Char", key)
		}
		if e, ok := c.Map[ks]; ok {
			e.Retain()
			m.push(e)
		} else {
			m.pushFresh(NewNull())
		}
	default:
		m.kill(key)
		return m.typeErr("Queue, String, or Map", c)
	}
	return nil
}

// containerIns implements Ins: Map[key] := value.
func (m *Machine) containerIns() error {
	val := m.pop()
	key := m.pop()
	c := m.pop()
	if c.Tag != TagMap {
		m.kill(val)
		m.kill(key)
		m.kill(c)
		return m.typeErr("Map", c)
	}
	if err := m.requireConstOK(c); err != nil {
		m.kill(val)
		m.kill(key)
		m.kill(c)
		return err
	}
	ks, ok := asByteString(key)
	m.kill(key)
	if !ok {
		m.kill(val)
		m.kill(c)
		return m.typeErr("String or Char", key)
	}
	if old, ok := c.Map[ks]; ok {
		old.Release()
	}
	c.Map[ks] = val.Copy(m.reg)
	m.kill(val)
	m.push(c)
	return nil
}

// containerDel implements Del: Queue/String index removal, or Map key
// removal.
func (m *Machine) containerDel() error {
	key := m.pop()
	c := m.pop()
	if err := m.requireConstOK(c); err != nil {
		m.kill(key)
		m.kill(c)
		return err
	}
	switch c.Tag {
	case TagQueue:
		n, err := m.requireNumber(key)
		m.kill(key)
		if err != nil {
			m.kill(c)
			return err
		}
		idx, ok := queueIndex(len(c.Queue), int(n))
		if !ok {
			m.kill(c)
			return errors.New("Del index out of bounds")
		}
		c.Queue[idx].Release()
		c.Queue = append(c.Queue[:idx], c.Queue[idx+1:]...)
	case TagString:
		n, err := m.requireNumber(key)
		m.kill(key)
		if err != nil {
			m.kill(c)
			return err
		}
		idx, ok := queueIndex(len(c.Str), int(n))
		if !ok {
			m.kill(c)
			return errors.New("Del index out of bounds")
		}
		c.Str = append(c.Str[:idx], c.Str[idx+1:]...)
	case TagMap:
		ks, ok := asByteString(key)
		m.kill(key)
		if !ok {
			m.kill(c)
			return m.typeErr("String or Char", key)
		}
		if old, ok := c.Map[ks]; ok {
			old.Release()
			delete(c.Map, ks)
		}
	default:
		m.kill(key)
		m.kill(c)
		return m.typeErr("Queue, String, or Map", c)
	}
	m.push(c)
	return nil
}

// mapKeys implements Key: a new Queue of a Map's keys, sorted ascending.
func (m *Machine) mapKeys() error {
	v := m.pop()
	if v.Tag != TagMap {
		m.kill(v)
		return m.typeErr("Map", v)
	}
	keys := make([]string, 0, len(v.Map))
	for k := range v.Map {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m.kill(v)
	q := NewQueue()
	for _, k := range keys {
		q.Queue = append(q.Queue, NewString(k))
	}
	m.pushFresh(q)
	return nil
}

func (m *Machine) mapExists() error {
	key := m.pop()
	c := m.pop()
	if c.Tag != TagMap {
		m.kill(key)
		m.kill(c)
		return m.typeErr("Map", c)
	}
	ks, ok := asByteString(key)
	m.kill(key)
	if !ok {
		m.kill(c)
		return m.typeErr("String or Char", key)
	}
	_, exists := c.Map[ks]
	m.kill(c)
	m.pushFresh(NewBool(exists))
	return nil
}

// slice implements Slc for Queue/String (by [lo:hi], negative-index
// rewritten, returning a copy) and Map (by [keyLo:keyHi] over sorted key
// order).
func (m *Machine) slice() error {
	hi := m.pop()
	lo := m.pop()
	c := m.pop()
	switch c.Tag {
	case TagQueue, TagString:
		loN, err := m.requireNumber(lo)
		m.kill(lo)
		if err != nil {
			m.kill(hi)
			m.kill(c)
			return err
		}
		hiN, err := m.requireNumber(hi)
		m.kill(hi)
		if err != nil {
			m.kill(c)
			return err
		}
		size := len(c.Queue)
		if c.Tag == TagString {
			size = len(c.Str)
		}
		a, aok := queueIndex(size, int(loN))
		b, bok := queueIndex(size, int(hiN))
		if !aok || !bok || a > b {
			m.kill(c)
			return errors.Errorf("bad slice bounds [%v:%v]", loN, hiN)
		}
		if c.Tag == TagQueue {
			r := NewQueue()
			for _, e := range c.Queue[a:b] {
				r.Queue = append(r.Queue, e.Copy(m.reg))
			}
			m.kill(c)
			m.pushFresh(r)
		} else {
			m.kill(c)
			m.pushFresh(NewString(string(c.Str[a:b])))
		}
	case TagMap:
		loS, ok := asByteString(lo)
		m.kill(lo)
		if !ok {
			m.kill(hi)
			m.kill(c)
			return m.typeErr("String", lo)
		}
		hiS, ok := asByteString(hi)
		m.kill(hi)
		if !ok {
			m.kill(c)
			return m.typeErr("String", hi)
		}
		r := NewMap()
		for k, v := range c.Map {
			if k >= loS && k < hiS {
				r.Map[k] = v.Copy(m.reg)
			}
		}
		m.kill(c)
		m.pushFresh(r)
	default:
		m.kill(lo)
		m.kill(hi)
		m.kill(c)
		return m.typeErr("Queue, String, or Map", c)
	}
	return nil
}
