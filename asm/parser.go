package asm

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/roman2/rr/compiler"
	"github.com/roman2/rr/vm"
)

// labelSite holds a (file, line) position for a label. Neither pass fills
// it in; errors name the label and pc instead.
type labelSite struct {
	file string
	line int
}

// label holds one label's resolved address: pass 1 records it at the
// label's definition, and labelPC records -1 for a name that is referenced
// but never defined. The labelSite and uses fields are not filled in by
// either pass.
type label struct {
	labelSite
	pc   int
	uses []int // indices into assembler.stubPC needing this label's address
}

// assembler holds both passes' working state.
type assembler struct {
	out    compiler.Output
	code   []vm.Word
	data   []*vm.Value
	debug  []compiler.DebugRecord
	labels map[string]*label
	dedup  map[string]int // literal operand text -> data segment index
	stubPC []int          // PC assigned to each non-label stub, parallel to out.Stubs
}

func newAssembler(out compiler.Output) *assembler {
	return &assembler{
		out:    out,
		labels: make(map[string]*label),
		dedup:  make(map[string]int),
		stubPC: make([]int, len(out.Stubs)),
	}
}

// pass1 walks the stub stream assigning each tab-prefixed stub a monotonic
// PC and recording each "NAME:" stub in the label map; duplicate labels
// are fatal, per §4.2.
func (a *assembler) pass1() error {
	pc := 0
	for i, s := range a.out.Stubs {
		if s.IsLabel {
			if existing, ok := a.labels[s.Label]; ok && existing.pc != -1 {
				return errors.Errorf("duplicate label %q", s.Label)
			}
			if l, ok := a.labels[s.Label]; ok {
				l.pc = pc
			} else {
				a.labels[s.Label] = &label{pc: pc}
			}
			continue
		}
		a.stubPC[i] = pc
		pc++
	}
	return nil
}

func (a *assembler) labelPC(name string) (int, error) {
	l, ok := a.labels[name]
	if !ok || l.pc == -1 {
		l = &label{pc: -1}
		a.labels[name] = l
		return 0, errors.Errorf("undefined label %q", name)
	}
	return l.pc, nil
}

// pass2 encodes every instruction stub into a Word, resolving label and
// literal operands, per §4.2's operand-encoding-by-family rules.
func (a *assembler) pass2() error {
	debugIdx := 0
	for i, s := range a.out.Stubs {
		if s.IsLabel {
			continue
		}
		op, ok := vm.LookupMnemonic(s.Mnem)
		if !ok {
			return errors.Errorf("unknown mnemonic %q", s.Mnem)
		}
		operand, err := a.encodeOperand(op, s.Operand)
		if err != nil {
			return errors.Wrapf(err, "at pc %d", a.stubPC[i])
		}
		a.code = append(a.code, vm.Encode(op, operand))
		a.debug = append(a.debug, a.out.Debug[debugIdx])
		debugIdx++
	}
	return nil
}

func (a *assembler) encodeOperand(op vm.Op, text string) (int64, error) {
	switch op {
	case vm.OpPsh:
		idx, err := a.literalIndex(text)
		return int64(idx), err
	case vm.OpBrf, vm.OpCal, vm.OpJmp:
		pc, err := a.labelPC(text)
		return int64(pc), err
	case vm.OpGlb, vm.OpLoc, vm.OpPop, vm.OpSpd:
		if text == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "malformed numeric operand %q", text)
		}
		return n, nil
	default:
		return 0, nil
	}
}

// literalIndex returns text's data-segment index, parsing and inserting a
// fresh constant Value the first time a given literal text is seen;
// identical operand text always shares one slot (§3 "Data-dedup map").
func (a *assembler) literalIndex(text string) (int, error) {
	if idx, ok := a.dedup[text]; ok {
		return idx, nil
	}
	v, err := parseLiteral(text, a.labelPC)
	if err != nil {
		return 0, err
	}
	v.MarkConst()
	idx := len(a.data)
	a.data = append(a.data, v)
	a.dedup[text] = idx
	return idx, nil
}

// parseLiteral turns one Psh operand's textual form into a Value. The
// compiler only ever emits a handful of shapes here: a number, a quoted
// string, true/false/null, the empty map/queue literals "{}"/"[]", and a
// "@name,arity" function reference whose address is resolved via resolve.
func parseLiteral(text string, resolve func(string) (int, error)) (*vm.Value, error) {
	switch {
	case text == "true":
		return vm.NewBool(true), nil
	case text == "false":
		return vm.NewBool(false), nil
	case text == "null":
		return vm.NewNull(), nil
	case text == "{}":
		return vm.NewMap(), nil
	case text == "[]":
		return vm.NewQueue(), nil
	case strings.HasPrefix(text, "@"):
		name, arityText, ok := strings.Cut(text[1:], ",")
		if !ok {
			return nil, errors.Errorf("malformed function literal %q", text)
		}
		arity, err := strconv.Atoi(arityText)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed function literal %q", text)
		}
		addr, err := resolve(name)
		if err != nil {
			return nil, err
		}
		return vm.NewFunction(name, arity, addr), nil
	case len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"':
		s, err := unquoteRRString(text)
		if err != nil {
			return nil, err
		}
		return vm.NewString(s), nil
	default:
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed literal %q", text)
		}
		return vm.NewNumber(n), nil
	}
}

// unquoteRRString reverses compiler.quoteRRString's escaping.
func unquoteRRString(text string) (string, error) {
	body := text[1 : len(text)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", errors.Errorf("unterminated escape in %q", text)
		}
		switch body[i] {
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		default:
			return "", errors.Errorf("unknown escape char %q", body[i])
		}
	}
	return b.String(), nil
}

// addrs returns a PC-sorted flattening of the label map, used by the VM
// for stack-trace symbolication via binary search.
func (a *assembler) addrs() []vm.AddressRecord {
	recs := make([]vm.AddressRecord, 0, len(a.labels))
	for name, l := range a.labels {
		recs = append(recs, vm.AddressRecord{Label: name, PC: l.pc})
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].PC < recs[j].PC })
	return recs
}
