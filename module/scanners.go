package module

import (
	"strings"

	"github.com/pkg/errors"
)

// SkipCommentsAndWhitespace advances past any run of whitespace and '#'
// line comments. Comments and whitespace are always skipped together
// before every token operation, per §4.1.
func SkipCommentsAndWhitespace(r *Reader) {
	for {
		for IsWhitespace(r.Peek()) {
			r.Next()
		}
		if r.Peek() == '#' {
			for r.Peek() != 0 && r.Peek() != '\n' {
				r.Next()
			}
			continue
		}
		return
	}
}

// ScanWhile consumes and returns the maximal run of bytes satisfying pred.
func ScanWhile(r *Reader, pred func(byte) bool) string {
	var sb strings.Builder
	for pred(r.Peek()) {
		sb.WriteByte(r.Next())
	}
	return sb.String()
}

// ScanIdentifier consumes an identifier: an ident-start byte followed by a
// maximal run of ident-continuation bytes.
func ScanIdentifier(r *Reader) string {
	if !IsIdentStart(r.Peek()) {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte(r.Next())
	for IsIdentCont(r.Peek()) {
		sb.WriteByte(r.Next())
	}
	return sb.String()
}

// ScanNumber consumes a numeric literal: digits, an optional '.' followed
// by digits, in each case maximal-munch.
func ScanNumber(r *Reader) string {
	var sb strings.Builder
	for IsDigit(r.Peek()) {
		sb.WriteByte(r.Next())
	}
	if r.Peek() == '.' {
		sb.WriteByte(r.Next())
		for IsDigit(r.Peek()) {
			sb.WriteByte(r.Next())
		}
	}
	return sb.String()
}

// escapeTable maps the escape character following a backslash to its
// expanded byte, per §4.1's accepted escape set.
var escapeTable = map[byte]byte{
	'"':  '"',
	'\\': '\\',
	'/':  '/',
	'b':  '\b',
	'f':  '\f',
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
}

// ScanString consumes a double-quoted, possibly-escaped string literal. The
// opening quote must already have been consumed by the caller; ScanString
// stops after consuming the closing quote and returns the expanded byte
// sequence.
func ScanString(r *Reader) (string, error) {
	var sb strings.Builder
	for {
		c := r.Peek()
		if c == 0 {
			return "", errors.New("unterminated string literal")
		}
		if c == '"' {
			r.Next()
			return sb.String(), nil
		}
		if c == '\\' {
			r.Next()
			e := r.Peek()
			expanded, ok := escapeTable[e]
			if !ok {
				return "", errors.Errorf("unknown escape char '\\%c' at %s:%d", e, r.Name(), r.Line())
			}
			r.Next()
			sb.WriteByte(expanded)
			continue
		}
		sb.WriteByte(r.Next())
	}
}
