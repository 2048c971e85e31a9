package vm

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// ParseLiteral implements the Val opcode: it parses s as a JSON-like
// literal (numbers, booleans, null, quoted strings with the compiler's
// escape set, queues "[...]", maps "{ \"k\" : v, ... }") and returns the
// resulting Value, per §4.3's round-trip law "Val(Prt-form(v)) == v".
func ParseLiteral(s string) (*Value, error) {
	p := &litParser{s: s}
	p.skipSpace()
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, errors.Errorf("trailing data after literal at offset %d", p.pos)
	}
	return v, nil
}

type litParser struct {
	s   string
	pos int
}

func (p *litParser) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *litParser) peek() (byte, bool) {
	if p.pos >= len(p.s) {
		return 0, false
	}
	return p.s[p.pos], true
}

func (p *litParser) parseValue() (*Value, error) {
	c, ok := p.peek()
	if !ok {
		return nil, errors.New("unexpected end of literal")
	}
	switch {
	case c == '"':
		s, err := p.parseQuoted()
		if err != nil {
			return nil, err
		}
		return NewString(s), nil
	case c == '[':
		return p.parseQueue()
	case c == '{':
		return p.parseMap()
	case strings.HasPrefix(p.s[p.pos:], "true"):
		p.pos += 4
		return NewBool(true), nil
	case strings.HasPrefix(p.s[p.pos:], "false"):
		p.pos += 5
		return NewBool(false), nil
	case strings.HasPrefix(p.s[p.pos:], "null"):
		p.pos += 4
		return NewNull(), nil
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return nil, errors.Errorf("unexpected character %q at offset %d", c, p.pos)
	}
}

func (p *litParser) parseNumber() (*Value, error) {
	start := p.pos
	if c, ok := p.peek(); ok && c == '-' {
		p.pos++
	}
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-' {
			p.pos++
			continue
		}
		break
	}
	f, err := strconv.ParseFloat(p.s[start:p.pos], 64)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed number at offset %d", start)
	}
	return NewNumber(f), nil
}

func (p *litParser) parseQuoted() (string, error) {
	if c, _ := p.peek(); c != '"' {
		return "", errors.New("expected '\"'")
	}
	p.pos++
	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == '"' {
			p.pos++
			return b.String(), nil
		}
		if c != '\\' {
			b.WriteByte(c)
			p.pos++
			continue
		}
		p.pos++
		if p.pos >= len(p.s) {
			break
		}
		switch p.s[p.pos] {
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		case '/':
			b.WriteByte('/')
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
		case 'u':
			if p.pos+4 >= len(p.s) {
				return "", errors.New("truncated \\u escape")
			}
			code, err := strconv.ParseUint(p.s[p.pos+1:p.pos+5], 16, 32)
			if err != nil {
				return "", errors.Wrap(err, "malformed \\u escape")
			}
			var buf [utf8.UTFMax]byte
			n := utf8.EncodeRune(buf[:], rune(code))
			b.Write(buf[:n])
			p.pos += 4
		default:
			return "", errors.Errorf("unknown escape %q", p.s[p.pos])
		}
		p.pos++
	}
	return "", errors.New("unterminated string literal")
}

func (p *litParser) expect(c byte) error {
	p.skipSpace()
	got, ok := p.peek()
	if !ok || got != c {
		return errors.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *litParser) parseQueue() (*Value, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	q := NewQueue()
	p.skipSpace()
	if c, ok := p.peek(); ok && c == ']' {
		p.pos++
		return q, nil
	}
	for {
		p.skipSpace()
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		q.Queue = append(q.Queue, v)
		p.skipSpace()
		c, ok := p.peek()
		if !ok {
			return nil, errors.New("unterminated queue literal")
		}
		if c == ',' {
			p.pos++
			continue
		}
		if c == ']' {
			p.pos++
			return q, nil
		}
		return nil, errors.Errorf("expected ',' or ']' at offset %d", p.pos)
	}
}

func (p *litParser) parseMap() (*Value, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	mp := NewMap()
	p.skipSpace()
	if c, ok := p.peek(); ok && c == '}' {
		p.pos++
		return mp, nil
	}
	for {
		p.skipSpace()
		key, err := p.parseQuoted()
		if err != nil {
			return nil, err
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		p.skipSpace()
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		mp.Map[key] = v
		p.skipSpace()
		c, ok := p.peek()
		if !ok {
			return nil, errors.New("unterminated map literal")
		}
		if c == ',' {
			p.pos++
			continue
		}
		if c == '}' {
			p.pos++
			return mp, nil
		}
		return nil, errors.Errorf("expected ',' or '}' at offset %d", p.pos)
	}
}
