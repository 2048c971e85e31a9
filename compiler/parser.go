package compiler

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/roman2/rr/module"
)

// lexFrame is one entry in the include stack: a lexer plus the directory
// its module was read from, used to resolve relative "inc"/"lib" paths.
type lexFrame struct {
	lx  *Lexer
	dir string
}

// Compiler drives the recursive-descent compilation of one entry module
// (and, transitively, every module it includes) down to an Output: an
// assembly-stub stream plus parallel debug records, per §3.
type Compiler struct {
	frames   []*lexFrame
	syms     *SymbolTable
	em       emitter
	included map[string]bool

	globalSlot int
	labelSeq   int
	fc         *funcCtx

	lastFile string
	lastLine int
}

// NewCompiler opens entry and returns a Compiler ready to parse it.
func NewCompiler(entry string) (*Compiler, error) {
	c := &Compiler{
		syms:     NewSymbolTable(),
		included: make(map[string]bool),
	}
	if err := c.pushModule(entry); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Compiler) pushModule(path string) error {
	real, err := module.CanonicalPath(path)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", path)
	}
	if c.included[real] {
		return nil
	}
	c.included[real] = true
	r, err := module.Open(path)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, &lexFrame{lx: NewLexer(r), dir: filepath.Dir(real)})
	return nil
}

func (c *Compiler) cur() *lexFrame { return c.frames[len(c.frames)-1] }

// next returns the next token, transparently popping exhausted included
// modules off the include stack until the root module's EOF is reached.
func (c *Compiler) next() (Token, error) {
	for {
		t, err := c.cur().lx.Next()
		if err != nil {
			return Token{}, err
		}
		if t.Kind == TokEOF && len(c.frames) > 1 {
			c.cur().lx.r.Close()
			c.frames = c.frames[:len(c.frames)-1]
			continue
		}
		c.lastFile, c.lastLine = t.File, t.Line
		return t, nil
	}
}

func (c *Compiler) unget(t Token) { c.cur().lx.Unget(t) }

func (c *Compiler) peek() (Token, error) {
	t, err := c.next()
	if err != nil {
		return t, err
	}
	c.unget(t)
	return t, nil
}

// matchOp consumes the next token and requires it to be the operator or
// keyword text op.
func (c *Compiler) matchOp(op string) error {
	t, err := c.next()
	if err != nil {
		return err
	}
	if t.Text != op {
		return c.errorf("matched token %q but expected %q", t.Text, op)
	}
	return nil
}

// peekIs reports whether the next token's text equals s, without consuming it.
func (c *Compiler) peekIs(s string) bool {
	t, err := c.peek()
	return err == nil && t.Text == s
}

// ident reads a bare identifier-shaped token (keywords included: "const",
// "if", and the like are built the same way user identifiers are, and are
// only given special meaning by the caller comparing the text).
func (c *Compiler) ident() (string, error) {
	t, err := c.next()
	if err != nil {
		return "", err
	}
	if t.Kind != TokIdent && t.Kind != TokKeyword {
		return "", c.errorf("expected identifier, found %q", t.Text)
	}
	return t.Text, nil
}

func (c *Compiler) emit(mnem string, args ...interface{}) {
	operand := ""
	if len(args) > 0 {
		operand = fmt.Sprint(args...)
	}
	c.em.emit(mnem, operand, c.lastFile, c.lastLine)
}

func (c *Compiler) label(name string) { c.em.label(name) }

func (c *Compiler) newLabel() string {
	c.labelSeq++
	return fmt.Sprintf("@l%d", c.labelSeq)
}

// Compile parses the entry module (and everything it transitively
// includes) and returns the finished assembly Output.
func Compile(entry string) (Output, error) {
	c, err := NewCompiler(entry)
	if err != nil {
		return Output{}, err
	}
	if err := c.parseProgram(); err != nil {
		return Output{}, err
	}
	return c.em.out, nil
}

// parseProgram is the top-level production: a sequence of "const NAME",
// "inc", "lib", function, and bare global declarations, followed by the
// synthetic !start prologue.
func (c *Compiler) parseProgram() error {
	var start []string
	for {
		t, err := c.peek()
		if err != nil {
			return err
		}
		if t.Kind == TokEOF {
			break
		}
		ident, err := c.ident()
		if err != nil {
			return err
		}
		switch {
		case ident == "const":
			name, err := c.ident()
			if err != nil {
				return err
			}
			label, err := c.parseGlobal(name, true)
			if err != nil {
				return err
			}
			start = append(start, label)
		case ident == "inc":
			if err := c.parseInclude(); err != nil {
				return err
			}
		case ident == "lib":
			if err := c.parseLib(); err != nil {
				return err
			}
		case c.peekIs("("):
			if err := c.parseFunction(ident); err != nil {
				return err
			}
		case c.peekIs(":="):
			label, err := c.parseGlobal(ident, false)
			if err != nil {
				return err
			}
			start = append(start, label)
		default:
			return c.errorf("%s must either be a function or function prototype, a global value, or an include statement", ident)
		}
	}
	return c.parseSpool(start)
}

// parseSpool assembles the synthetic "!start" entry point: a Cal to every
// top-level global initializer in source order, then a Cal to Main, then
// End. It is prepended ahead of everything else so the assembler places it
// first regardless of declaration order in the source.
func (c *Compiler) parseSpool(start []string) error {
	if _, ok := c.syms.Lookup("Main"); !ok {
		return c.errorf("identifier Main not defined")
	}
	prologue := make([]Stub, 0, len(start)+3)
	debug := make([]DebugRecord, 0, len(start)+2)
	prologue = append(prologue, Stub{IsLabel: true, Label: "!start"})
	for _, label := range start {
		prologue = append(prologue, Stub{Mnem: "Cal", Operand: label})
		debug = append(debug, DebugRecord{})
	}
	prologue = append(prologue, Stub{Mnem: "Cal", Operand: "Main"}, Stub{Mnem: "End"})
	debug = append(debug, DebugRecord{}, DebugRecord{})

	stubs := make([]Stub, 0, len(prologue)+len(c.em.out.Stubs))
	stubs = append(stubs, prologue...)
	stubs = append(stubs, c.em.out.Stubs...)
	recs := make([]DebugRecord, 0, len(debug)+len(c.em.out.Debug))
	recs = append(recs, debug...)
	recs = append(recs, c.em.out.Debug...)
	c.em.out.Stubs, c.em.out.Debug = stubs, recs
	return nil
}

func (c *Compiler) parseInclude() error {
	name, err := c.ident()
	if err != nil {
		return err
	}
	rest, err := c.scanDotted(name)
	if err != nil {
		return err
	}
	if err := c.matchOp(";"); err != nil {
		return err
	}
	path := module.ResolveModule(c.cur().dir, rest)
	return c.pushModule(path)
}

// scanDotted consumes the remaining ".segment" pieces of a dotted module or
// library name following its first identifier segment.
func (c *Compiler) scanDotted(first string) (string, error) {
	dotted := first
	for c.peekIs(".") {
		c.next()
		seg, err := c.ident()
		if err != nil {
			return "", err
		}
		dotted += "." + seg
	}
	return dotted, nil
}

func (c *Compiler) parseLib() error {
	name, err := c.ident()
	if err != nil {
		return err
	}
	dotted, err := c.scanDotted(name)
	if err != nil {
		return err
	}
	soPath := module.ResolveLibrary(c.cur().dir, dotted)
	if err := c.matchOp("{"); err != nil {
		return err
	}
	for {
		if c.peekIs("}") {
			break
		}
		if err := c.parsePrototypeNative(soPath); err != nil {
			return err
		}
		if c.peekIs(";") {
			c.next()
			continue
		}
		break
	}
	return c.matchOp("}")
}

func (c *Compiler) parsePrototypeNative(soPath string) error {
	name, err := c.ident()
	if err != nil {
		return err
	}
	params, err := c.parseParamRoll()
	if err != nil {
		return err
	}
	return c.syms.Declare(name, ClassNativeProto, len(params), soPath)
}

func (c *Compiler) parseParamRoll() ([]string, error) {
	if err := c.matchOp("("); err != nil {
		return nil, err
	}
	var params []string
	for !c.peekIs(")") {
		name, err := c.ident()
		if err != nil {
			return nil, err
		}
		params = append(params, name)
		if c.peekIs(",") {
			c.next()
		}
	}
	if err := c.matchOp(")"); err != nil {
		return nil, err
	}
	return params, nil
}

func (c *Compiler) parseGlobal(ident string, constant bool) (string, error) {
	label := "!" + ident
	c.label(label)
	if err := c.parseAssign(); err != nil {
		return "", err
	}
	if err := c.matchOp(";"); err != nil {
		return "", err
	}
	if err := c.syms.Declare(ident, ClassGlobal, c.globalSlot, c.lastFile); err != nil {
		return "", err
	}
	if constant {
		c.emit("Con")
	}
	c.emit("Ret")
	c.globalSlot++
	return label, nil
}

// parseAssign compiles a ":=" right-hand side followed by a defensive copy,
// so that the new binding never aliases whatever storage the expression
// evaluated from.
func (c *Compiler) parseAssign() error {
	if err := c.matchOp(":="); err != nil {
		return err
	}
	if err := c.parseExpression(); err != nil {
		return err
	}
	c.emit("Cop")
	return nil
}

func (c *Compiler) parseConsumeExpression() error {
	if err := c.parseExpression(); err != nil {
		return err
	}
	c.emitPop(1)
	return nil
}

func (c *Compiler) emitPop(n int) {
	if n > 0 {
		c.emit("Pop", n)
	}
}

// parseAssignLocal compiles "IDENT := EXPR ;" as a local declaration: the
// value, a defensive copy, the new local's slot, and a Gar checkpoint that
// gives the collector an opportunity to run right after the stack grows.
func (c *Compiler) parseAssignLocal(ident string, constant bool) error {
	if err := c.parseAssign(); err != nil {
		return err
	}
	if err := c.matchOp(";"); err != nil {
		return err
	}
	slot := c.fc.declareLocal(ident)
	if err := c.syms.Declare(ident, ClassLocal, slot, c.lastFile); err != nil {
		return err
	}
	if constant {
		c.emit("Con")
	}
	c.emit("Gar")
	return nil
}

func (c *Compiler) parseFunction(ident string) error {
	params, err := c.parseParamRoll()
	if err != nil {
		return err
	}
	if c.peekIs("{") {
		c.fc = newFuncCtx()
		for _, p := range params {
			slot := c.fc.declareLocal(p)
			if err := c.syms.Declare(p, ClassLocal, slot, c.lastFile); err != nil {
				return err
			}
		}
		if err := c.syms.Declare(ident, ClassFunction, len(params), c.lastFile); err != nil {
			return err
		}
		c.label(ident)
		if err := c.parseBlock("", "", false); err != nil {
			return err
		}
		c.popFuncScope(params)
		c.emit("Psh", "null")
		c.emit("Sav")
		c.emit("Ret")
		c.fc = nil
		return nil
	}
	if err := c.matchOp(";"); err != nil {
		return err
	}
	return c.syms.Declare(ident, ClassFunctionProto, len(params), c.lastFile)
}

func (c *Compiler) popFuncScope(names []string) {
	locals := c.fc.popScope()
	c.emitPop(len(locals))
	for _, name := range names {
		c.syms.Remove(name)
	}
}

// parseBlock compiles "{ statement* }". head/tail are the enclosing loop's
// continue/break targets (ignored when loop is false).
func (c *Compiler) parseBlock(head, tail string, loop bool) error {
	if err := c.matchOp("{"); err != nil {
		return err
	}
	c.fc.pushScope()
	var pending *Token
	for {
		if pending == nil && c.peekIs("}") {
			break
		}
		var ident string
		if pending != nil {
			ident = pending.Text
			pending = nil
		} else {
			var err error
			ident, err = c.ident()
			if err != nil {
				return err
			}
		}
		switch {
		case ident == "if":
			rest, err := c.parseBranches(head, tail, loop)
			if err != nil {
				return err
			}
			pending = rest
			continue
		case ident == "elif":
			return c.errorf("keyword elif must follow an if or elif block")
		case ident == "else":
			return c.errorf("keyword else must follow an if or elif block")
		case ident == "while":
			if err := c.parseWhile(); err != nil {
				return err
			}
		case ident == "foreach":
			if err := c.parseForeach(); err != nil {
				return err
			}
		case ident == "for":
			if err := c.parseFor(); err != nil {
				return err
			}
		case ident == "ret":
			if err := c.parseRet(); err != nil {
				return err
			}
		case ident == "continue":
			if !loop {
				return c.errorf("the keyword continue can only be used within a while, for, or foreach loop")
			}
			if err := c.matchOp(";"); err != nil {
				return err
			}
			c.emitPop(c.fc.localsInScopes(c.fc.currentLoop().scopeDepth))
			c.emit("Jmp", head)
		case ident == "break":
			if !loop {
				return c.errorf("the keyword break can only be used within a while, for, or foreach loop")
			}
			if err := c.matchOp(";"); err != nil {
				return err
			}
			c.emitPop(c.fc.localsInScopes(c.fc.currentLoop().scopeDepth))
			c.emit("Jmp", tail)
		case ident == "const":
			name, err := c.ident()
			if err != nil {
				return err
			}
			if err := c.parseAssignLocal(name, true); err != nil {
				return err
			}
		case c.peekIs(":="):
			if err := c.parseAssignLocal(ident, false); err != nil {
				return err
			}
		default:
			c.unget(Token{Kind: TokIdent, Text: ident, File: c.lastFile, Line: c.lastLine})
			if err := c.parseConsumeExpression(); err != nil {
				return err
			}
			if err := c.matchOp(";"); err != nil {
				return err
			}
		}
	}
	if err := c.matchOp("}"); err != nil {
		return err
	}
	locals := c.fc.popScope()
	c.emitPop(len(locals))
	for _, name := range locals {
		c.syms.Remove(name)
	}
	return nil
}

// parseBranches compiles "if (expr) block (elif (expr) block)* (else block)?"
// and returns a held-back identifier token when the clause chain ends on a
// word that isn't elif/else (the block loop must still process it).
func (c *Compiler) parseBranches(head, tail string, loop bool) (*Token, error) {
	end := c.newLabel()
	if err := c.parseBranch(head, tail, end, loop); err != nil {
		return nil, err
	}
	word, err := c.ident()
	if err != nil {
		return nil, err
	}
	for word == "elif" {
		if err := c.parseBranch(head, tail, end, loop); err != nil {
			return nil, err
		}
		word, err = c.ident()
		if err != nil {
			return nil, err
		}
	}
	if word == "else" {
		if err := c.parseBlock(head, tail, loop); err != nil {
			return nil, err
		}
	}
	c.label(end)
	if word == "" || word == "elif" || word == "else" {
		return nil, nil
	}
	return &Token{Kind: TokIdent, Text: word, File: c.lastFile, Line: c.lastLine}, nil
}

func (c *Compiler) parseBranch(head, tail, end string, loop bool) error {
	next := c.newLabel()
	if err := c.matchOp("("); err != nil {
		return err
	}
	if err := c.parseExpression(); err != nil {
		return err
	}
	if err := c.matchOp(")"); err != nil {
		return err
	}
	c.emit("Brf", next)
	if err := c.parseBlock(head, tail, loop); err != nil {
		return err
	}
	c.emit("Jmp", end)
	c.label(next)
	return nil
}

func (c *Compiler) parseWhile() error {
	a, b := c.newLabel(), c.newLabel()
	c.label(a)
	if err := c.matchOp("("); err != nil {
		return err
	}
	if err := c.parseExpression(); err != nil {
		return err
	}
	c.emit("Brf", b)
	if err := c.matchOp(")"); err != nil {
		return err
	}
	c.fc.pushLoop(a, b)
	if err := c.parseBlock(a, b, true); err != nil {
		return err
	}
	c.fc.popLoop()
	c.emit("Jmp", a)
	c.label(b)
	return nil
}

// parseForeach desugars "foreach (item : queueExpr) block" into an
// index-driven while loop over three synthetic locals: the queue, the
// current index, and the item itself (pushed once as null, then popped and
// replaced by a Get at the top of every iteration, before the body runs).
func (c *Compiler) parseForeach() error {
	a, b, d := c.newLabel(), c.newLabel(), c.newLabel()
	c.fc.pushScope()
	loopDepth := len(c.fc.scopes)
	if err := c.matchOp("("); err != nil {
		return err
	}
	item, err := c.ident()
	if err != nil {
		return err
	}
	if err := c.matchOp(":"); err != nil {
		return err
	}
	if err := c.parseExpression(); err != nil {
		return err
	}
	if err := c.matchOp(")"); err != nil {
		return err
	}
	queueName := "!queue_" + item
	queueSlot := c.fc.declareLocal(queueName)
	if err := c.syms.Declare(queueName, ClassLocal, queueSlot, c.lastFile); err != nil {
		return err
	}
	c.emit("Psh", 0)
	indexName := "!index_" + item
	indexSlot := c.fc.declareLocal(indexName)
	if err := c.syms.Declare(indexName, ClassLocal, indexSlot, c.lastFile); err != nil {
		return err
	}
	c.emit("Psh", "null")
	itemSlot := c.fc.declareLocal(item)
	if err := c.syms.Declare(item, ClassLocal, itemSlot, c.lastFile); err != nil {
		return err
	}
	c.label(a)
	c.refLocal(queueSlot)
	c.emit("Len")
	c.refLocal(indexSlot)
	c.emit("Eql")
	c.emit("Not")
	c.emit("Brf", b)
	c.emitPop(1)
	c.refLocal(queueSlot)
	c.refLocal(indexSlot)
	c.emit("Get")
	c.fc.pushLoopAtDepth(d, b, loopDepth)
	if err := c.parseBlock(d, b, true); err != nil {
		return err
	}
	c.fc.popLoop()
	c.label(d)
	c.refLocal(indexSlot)
	c.emit("Psh", 1)
	c.emit("Add")
	c.emitPop(1)
	c.emit("Jmp", a)
	c.label(b)
	locals := c.fc.popScope()
	c.emitPop(len(locals))
	for _, name := range locals {
		c.syms.Remove(name)
	}
	return nil
}

func (c *Compiler) refLocal(slot int) { c.emit("Loc", slot) }

func (c *Compiler) parseFor() error {
	a, b, cc, d := c.newLabel(), c.newLabel(), c.newLabel(), c.newLabel()
	c.fc.pushScope()
	loopDepth := len(c.fc.scopes)
	if err := c.matchOp("("); err != nil {
		return err
	}
	ident, err := c.ident()
	if err != nil {
		return err
	}
	if err := c.parseAssignLocal(ident, false); err != nil {
		return err
	}
	c.label(a)
	if err := c.parseExpression(); err != nil {
		return err
	}
	if err := c.matchOp(";"); err != nil {
		return err
	}
	c.emit("Brf", d)
	c.emit("Jmp", cc)
	c.label(b)
	if err := c.parseConsumeExpression(); err != nil {
		return err
	}
	if err := c.matchOp(")"); err != nil {
		return err
	}
	c.emit("Jmp", a)
	c.label(cc)
	c.fc.pushLoopAtDepth(b, d, loopDepth)
	if err := c.parseBlock(b, d, true); err != nil {
		return err
	}
	c.fc.popLoop()
	c.emit("Jmp", b)
	c.label(d)
	locals := c.fc.popScope()
	c.emitPop(len(locals))
	for _, name := range locals {
		c.syms.Remove(name)
	}
	return nil
}

func (c *Compiler) parseRet() error {
	if c.peekIs(";") {
		c.emit("Psh", "null")
	} else if err := c.parseExpression(); err != nil {
		return err
	}
	c.emit("Sav")
	c.emit("Fls")
	return c.matchOp(";")
}

// parseExpression compiles the lowest-precedence binary operators:
// assignment, the two compound arithmetic assignments, the six
// comparisons, and the plain +/-/&& chain (left-associative; every other
// form is right-associative via direct recursion), per the operator table
// worked out from the compiler's CC_Expression production.
func (c *Compiler) parseExpression() error {
	if err := c.parseTerm(); err != nil {
		return err
	}
	for {
		t, err := c.peek()
		if err != nil {
			return err
		}
		if t.Kind != TokOp {
			return nil
		}
		switch t.Text {
		case "=", "+=", "-=", "==", "!=", ">", "<", ">=", "<=", "+", "-", "&&":
		default:
			return nil
		}
		c.next()
		switch t.Text {
		case "=":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Mov")
		case "+=":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Add")
		case "-=":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Sub")
		case "==":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Eql")
		case "!=":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Neq")
		case ">":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Grt")
		case "<":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Lst")
		case ">=":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Gte")
		case "<=":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Lte")
		case "+":
			c.emit("Cop")
			if err := c.parseTerm(); err != nil {
				return err
			}
			c.emit("Add")
		case "-":
			c.emit("Cop")
			if err := c.parseTerm(); err != nil {
				return err
			}
			c.emit("Sub")
		case "&&":
			c.emit("Cop")
			if err := c.parseTerm(); err != nil {
				return err
			}
			c.emit("And")
		}
	}
}

// parseTerm compiles the higher-precedence operators: the identity test
// "?", the six compound arithmetic assignments, and the plain
// */÷//%%%||** chain.
func (c *Compiler) parseTerm() error {
	if err := c.parseFactor(); err != nil {
		return err
	}
	for {
		t, err := c.peek()
		if err != nil {
			return err
		}
		if t.Kind != TokOp {
			return nil
		}
		switch t.Text {
		case "*=", "%%=", "//=", "/=", "%=", "**=", "?", "*", "/", "//", "%", "%%", "||", "**":
		default:
			return nil
		}
		c.next()
		switch t.Text {
		case "*=":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Mul")
		case "%%=":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Imd")
		case "//=":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Idv")
		case "/=":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Div")
		case "%=":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Mod")
		case "**=":
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.emit("Pow")
		case "?":
			if err := c.parseFactor(); err != nil {
				return err
			}
			c.emit("Mem")
		default:
			c.emit("Cop")
			if err := c.parseFactor(); err != nil {
				return err
			}
			switch t.Text {
			case "*":
				c.emit("Mul")
			case "/":
				c.emit("Div")
			case "//":
				c.emit("Idv")
			case "%":
				c.emit("Mod")
			case "%%":
				c.emit("Imd")
			case "||":
				c.emit("Lor")
			case "**":
				c.emit("Pow")
			}
		}
	}
}

// parseFactor compiles one factor and then always runs it through
// parseResolve, so every factor form participates in the postfix
// index/field/call chain.
func (c *Compiler) parseFactor() error {
	t, err := c.peek()
	if err != nil {
		return err
	}
	switch {
	case t.Kind == TokNumber:
		if err := c.parseDirect(false); err != nil {
			return err
		}
	case t.Kind == TokIdent || t.Kind == TokKeyword:
		if err := c.parseIdentifier(); err != nil {
			return err
		}
	case t.Kind == TokString:
		if err := c.parseStringLit(); err != nil {
			return err
		}
	case t.Text == "!":
		if err := c.parseNot(); err != nil {
			return err
		}
	case t.Text == "-":
		c.next()
		if err := c.parseDirect(true); err != nil {
			return err
		}
	case t.Text == "+":
		c.next()
		if err := c.parseDirect(false); err != nil {
			return err
		}
	case t.Text == "(":
		if err := c.parseForce(); err != nil {
			return err
		}
	case t.Text == "{":
		if err := c.parseMap(); err != nil {
			return err
		}
	case t.Text == "[":
		if err := c.parseQueueLit(); err != nil {
			return err
		}
	case t.Text == "*":
		if err := c.parseDerefFactor(); err != nil {
			return err
		}
	case t.Text == "&":
		if err := c.parsePointerFactor(); err != nil {
			return err
		}
	default:
		return c.errorf("an unknown factor starting with %q was encountered", t.Text)
	}
	return c.parseResolve()
}

func (c *Compiler) parseNot() error {
	if err := c.matchOp("!"); err != nil {
		return err
	}
	if err := c.parseFactor(); err != nil {
		return err
	}
	c.emit("Not")
	return nil
}

func (c *Compiler) parseDirect(negative bool) error {
	t, err := c.next()
	if err != nil {
		return err
	}
	if t.Kind != TokNumber {
		return c.errorf("expected a number, found %q", t.Text)
	}
	sign := ""
	if negative {
		sign = "-"
	}
	c.emit("Psh", sign+t.Text)
	return nil
}

func (c *Compiler) parseForce() error {
	if err := c.matchOp("("); err != nil {
		return err
	}
	if err := c.parseExpression(); err != nil {
		return err
	}
	return c.matchOp(")")
}

func (c *Compiler) parseDerefFactor() error {
	if err := c.matchOp("*"); err != nil {
		return err
	}
	if err := c.parseFactor(); err != nil {
		return err
	}
	c.emit("Drf")
	return nil
}

func (c *Compiler) parsePointerFactor() error {
	if err := c.matchOp("&"); err != nil {
		return err
	}
	if err := c.parseFactor(); err != nil {
		return err
	}
	c.emit("Ptr")
	return nil
}

func (c *Compiler) parseStringLit() error {
	t, err := c.next()
	if err != nil {
		return err
	}
	c.emit("Psh", quoteRRString(t.Text))
	return nil
}

func (c *Compiler) parseMap() error {
	c.emit("Psh", "{}")
	if err := c.matchOp("{"); err != nil {
		return err
	}
	for !c.peekIs("}") {
		if c.peekIs(".") {
			if err := c.parseDot(); err != nil {
				return err
			}
		} else if err := c.parseExpression(); err != nil {
			return err
		}
		if c.peekIs(":") {
			c.next()
			if err := c.parseExpression(); err != nil {
				return err
			}
		} else {
			c.emit("Psh", "true")
		}
		c.emit("Ins")
		if c.peekIs(",") {
			c.next()
		}
	}
	return c.matchOp("}")
}

func (c *Compiler) parseQueueLit() error {
	c.emit("Psh", "[]")
	if err := c.matchOp("["); err != nil {
		return err
	}
	for !c.peekIs("]") {
		if err := c.parseExpression(); err != nil {
			return err
		}
		c.emit("Psb")
		if c.peekIs(",") {
			c.next()
		}
	}
	return c.matchOp("]")
}

// parseResolve compiles the postfix chain of indirect calls, indexing,
// slicing, dotted field access, and pointer-field access that may follow
// any factor, including a trailing ":=" that turns the last accessor into
// a container insertion instead of a read.
func (c *Compiler) parseResolve() error {
	for {
		t, err := c.peek()
		if err != nil {
			return err
		}
		if t.Kind != TokOp {
			return nil
		}
		switch t.Text {
		case "(":
			if err := c.parseVrt(); err != nil {
				return err
			}
		case "[":
			if err := c.matchOp("["); err != nil {
				return err
			}
			if err := c.parseExpression(); err != nil {
				return err
			}
			slice := false
			if c.peekIs(":") {
				c.next()
				if err := c.parseExpression(); err != nil {
					return err
				}
				slice = true
			}
			if err := c.matchOp("]"); err != nil {
				return err
			}
			if err := c.finishResolve(slice); err != nil {
				return err
			}
		case ".":
			if err := c.parseDot(); err != nil {
				return err
			}
			if err := c.finishResolve(false); err != nil {
				return err
			}
		case "@":
			if err := c.parseAt(); err != nil {
				return err
			}
			if err := c.finishResolve(false); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (c *Compiler) finishResolve(slice bool) error {
	if c.peekIs(":=") {
		if err := c.parseAssign(); err != nil {
			return err
		}
		c.emit("Ins")
		return nil
	}
	if slice {
		c.emit("Slc")
	} else {
		c.emit("Get")
	}
	return nil
}

func (c *Compiler) parseVrt() error {
	n, err := c.parseArgs()
	if err != nil {
		return err
	}
	c.emit("Psh", n)
	c.emit("Vrt")
	c.emit("Trv")
	return nil
}

func (c *Compiler) parseDot() error {
	if err := c.matchOp("."); err != nil {
		return err
	}
	ident, err := c.ident()
	if err != nil {
		return err
	}
	c.emit("Psh", quoteRRString(ident))
	return nil
}

func (c *Compiler) parseAt() error {
	if err := c.matchOp("@"); err != nil {
		return err
	}
	ident, err := c.ident()
	if err != nil {
		return err
	}
	c.emit("Drf")
	c.emit("Psh", quoteRRString(ident))
	return nil
}

func (c *Compiler) parseArgs() (int, error) {
	if err := c.matchOp("("); err != nil {
		return 0, err
	}
	n := 0
	for !c.peekIs(")") {
		if err := c.parseExpression(); err != nil {
			return 0, err
		}
		if c.peekIs(",") {
			c.next()
		}
		n++
	}
	return n, c.matchOp(")")
}

// parseIdentifier compiles a bare identifier factor: the three reserved
// literals, a call (if immediately followed by "("), or a reference.
func (c *Compiler) parseIdentifier() error {
	ident, err := c.ident()
	if err != nil {
		return err
	}
	switch ident {
	case "true", "false", "null":
		c.emit("Psh", ident)
		return nil
	}
	if c.peekIs("(") {
		return c.parseCalling(ident)
	}
	return c.parseReferencing(ident)
}

func isFunctionClass(class Class) bool {
	return class == ClassFunction || class == ClassFunctionProto || class == ClassNativeProto
}

func isValueClass(class Class) bool {
	return class == ClassGlobal || class == ClassLocal
}

func (c *Compiler) emitRef(sym *Symbol) error {
	switch sym.Class {
	case ClassGlobal:
		c.emit("Glb", sym.Slot)
	case ClassLocal:
		c.emit("Loc", sym.Slot)
	default:
		return c.errorf("identifier %s cannot be referenced", sym.Name)
	}
	return nil
}

// parseCalling compiles an identifier immediately followed by "(": a
// direct call if it names a function, or just a reference (leaving the
// postfix chain in parseResolve to compile the indirect call) if it names
// a variable holding a Function value.
func (c *Compiler) parseCalling(ident string) error {
	sym, ok := c.syms.Lookup(ident)
	if !ok {
		return c.errorf("identifier %s not defined", ident)
	}
	switch {
	case isFunctionClass(sym.Class):
		return c.parseDirectCalling(ident, sym)
	case isValueClass(sym.Class):
		return c.emitRef(sym)
	default:
		return c.errorf("identifier %s is not callable", ident)
	}
}

func (c *Compiler) parseDirectCalling(ident string, sym *Symbol) error {
	n, err := c.parseArgs()
	if err != nil {
		return err
	}
	if n != sym.Slot {
		return c.errorf("function %s requires %d arguments", ident, sym.Slot)
	}
	if sym.Class == ClassNativeProto {
		if sym.Origin == builtinOrigin {
			return c.emitBuiltin(ident)
		}
		return c.emitNative(ident, sym)
	}
	c.emit("Spd", n)
	c.emit("Cal", ident)
	c.emit("Lod")
	return nil
}

// emitBuiltin compiles a call to a pre-seeded builtin keyword. Open is
// special-cased: the compiler pushes the calling module's own directory
// ahead of the opcode so relative paths resolve against the source file,
// not the process's working directory.
func (c *Compiler) emitBuiltin(ident string) error {
	b := builtins[ident]
	if ident == "Open" {
		c.emit("Psh", quoteRRString(c.cur().dir))
	}
	c.emit(b.mnemonic)
	return nil
}

func (c *Compiler) emitNative(ident string, sym *Symbol) error {
	c.emit("Psh", quoteRRString(sym.Origin))
	c.emit("Psh", quoteRRString(ident))
	c.emit("Psh", sym.Slot)
	c.emit("Dll")
	return nil
}

func (c *Compiler) parseReferencing(ident string) error {
	sym, ok := c.syms.Lookup(ident)
	if !ok {
		return c.errorf("identifier %s not defined", ident)
	}
	if isFunctionClass(sym.Class) {
		c.emit("Psh", fmt.Sprintf("@%s,%d", ident, sym.Slot))
		return nil
	}
	return c.emitRef(sym)
}

// quoteRRString renders s as an RR string literal operand, re-escaping the
// characters the lexer's ScanString expands.
func quoteRRString(s string) string {
	var sb []byte
	sb = append(sb, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			sb = append(sb, '\\', '"')
		case '\\':
			sb = append(sb, '\\', '\\')
		case '\b':
			sb = append(sb, '\\', 'b')
		case '\f':
			sb = append(sb, '\\', 'f')
		case '\n':
			sb = append(sb, '\\', 'n')
		case '\r':
			sb = append(sb, '\\', 'r')
		case '\t':
			sb = append(sb, '\\', 't')
		default:
			sb = append(sb, c)
		}
	}
	sb = append(sb, '"')
	return string(sb)
}
