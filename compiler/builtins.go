package compiler

// builtin describes a pre-seeded builtin keyword: the 3-letter assembly
// mnemonic it compiles a call to, and its fixed arity, per §4.1 "Builtin
// keywords... are pre-seeded with arity 0-3."
//
// The compiler never imports the vm package (it only ever emits textual
// mnemonics), so mnemonics are plain strings here; asm.Assemble is the
// single place that turns a mnemonic into an opcode number.
//
// Table and arities are the Keyword array of the canonical implementation,
// sorted by name.
type builtin struct {
	mnemonic string
	arity    int
}

var builtins = map[string]builtin{
	"Abs":     {"Abs", 1},
	"Acos":    {"Aco", 1},
	"All":     {"All", 1},
	"Any":     {"Any", 1},
	"Asin":    {"Asi", 1},
	"Assert":  {"Asr", 1},
	"Atan":    {"Ata", 1},
	"Bsearch": {"Bsr", 3},
	"Ceil":    {"Cel", 1},
	"Cos":     {"Cos", 1},
	"Del":     {"Del", 2},
	"Exists":  {"Exi", 2},
	"Exit":    {"Ext", 1},
	"Floor":   {"Flr", 1},
	"Good":    {"God", 1},
	"Keys":    {"Key", 1},
	"Len":     {"Len", 1},
	"Log":     {"Log", 1},
	"Max":     {"Max", 2},
	"Min":     {"Min", 2},
	"Open":    {"Opn", 2},
	"Pow":     {"Pow", 1},
	"Print":   {"Prt", 1},
	"Qsort":   {"Qso", 2},
	"Rand":    {"Ran", 0},
	"Read":    {"Red", 2},
	"Refs":    {"Ref", 1},
	"Sin":     {"Sin", 1},
	"Sqrt":    {"Sqr", 1},
	"Srand":   {"Srd", 1},
	"Tan":     {"Tan", 1},
	"Time":    {"Tim", 0},
	"Type":    {"Typ", 1},
	"Value":   {"Val", 1},
	"Write":   {"Wrt", 2},
}
