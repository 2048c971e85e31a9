package compiler

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/roman2/rr/module"
)

// Lexer tokenizes a single open module. Tokens handed back by Unget are
// kept on a pushback stack and returned again, last-ungot first, by the
// following calls to Next.
type Lexer struct {
	r    *module.Reader
	pend []Token
}

// NewLexer wraps an already-open module reader.
func NewLexer(r *module.Reader) *Lexer { return &Lexer{r: r} }

// Unget pushes t back so the next Next call returns it again. The parser
// relies on two levels: an identifier ungot after the token that followed
// it was peeked (and ungot) in turn.
func (l *Lexer) Unget(t Token) {
	l.pend = append(l.pend, t)
}

// Next returns the next token, draining the pushback stack first.
func (l *Lexer) Next() (Token, error) {
	if n := len(l.pend); n > 0 {
		t := l.pend[n-1]
		l.pend = l.pend[:n-1]
		return t, nil
	}
	module.SkipCommentsAndWhitespace(l.r)
	file, line := l.r.Name(), l.r.Line()
	c := l.r.Peek()
	switch {
	case c == 0:
		return Token{Kind: TokEOF, File: file, Line: line}, nil
	case module.IsIdentStart(c):
		ident := module.ScanIdentifier(l.r)
		return Token{Kind: classify(ident), Text: ident, File: file, Line: line}, nil
	case module.IsDigit(c):
		txt := module.ScanNumber(l.r)
		n, err := strconv.ParseFloat(txt, 64)
		if err != nil {
			return Token{}, errors.Wrapf(err, "%s:%d: malformed number %q", file, line, txt)
		}
		return Token{Kind: TokNumber, Text: txt, Num: n, File: file, Line: line}, nil
	case c == '"':
		l.r.Next()
		s, err := module.ScanString(l.r)
		if err != nil {
			return Token{}, errors.Wrapf(err, "%s:%d", file, line)
		}
		return Token{Kind: TokString, Text: s, File: file, Line: line}, nil
	case module.IsOperatorChar(c):
		op := l.scanOperator()
		return Token{Kind: TokOp, Text: op, File: file, Line: line}, nil
	default:
		return Token{}, errors.Errorf("%s:%d: unexpected character %q", file, line, c)
	}
}

// twoCharOps maps a first byte to the set of second bytes that extend it
// into a two-character operator.
var twoCharOps = map[byte]string{
	'=': "=", '!': "=", '<': "=", '>': "=",
	'&': "&", '|': "|",
	'+': "=", '-': "=", '*': "*=", '/': "/=", '%': "%=",
	':': "=",
}

// scanOperator performs maximal munch over punctuation using only the
// reader's one-byte lookahead: consume one byte, then repeatedly check
// whether the next unconsumed byte extends the token being built.
func (l *Lexer) scanOperator() string {
	var sb strings.Builder
	c1 := l.r.Next()
	sb.WriteByte(c1)
	ext, ok := twoCharOps[c1]
	if ok && strings.IndexByte(ext, l.r.Peek()) >= 0 {
		sb.WriteByte(l.r.Next())
	}
	// "**", "//", "%%" may further extend with a trailing '=' to form a
	// compound assignment operator.
	switch sb.String() {
	case "**", "//", "%%":
		if l.r.Peek() == '=' {
			sb.WriteByte(l.r.Next())
		}
	}
	return sb.String()
}
