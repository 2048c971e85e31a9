// Package module streams RR source files in fixed-size chunks and exposes
// the lexer primitives (character predicates, comment/whitespace skipping,
// and maximal-munch scanners) used by the compiler.
//
// The Reader design mirrors the teacher's assembler scanner in spirit (a
// single active source, one character of lookahead) but is hand-rolled
// rather than built on text/scanner: RR's escaped-string literals need raw
// byte-level control that text/scanner does not expose.
package module

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

const chunkSize = 4096

// Reader streams a single source file, tracking the current line and a
// one-byte lookahead.
type Reader struct {
	f    *os.File
	name string
	buf  [chunkSize]byte
	n    int // valid bytes in buf
	pos  int // read position in buf
	line int
	peek byte
	eof  bool
}

// Open opens path for reading and primes the one-byte lookahead.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open module %s", path)
	}
	r := &Reader{f: f, name: path, line: 1}
	if err := r.advance(); err != nil && err != io.EOF {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Name returns the source file path.
func (r *Reader) Name() string { return r.name }

// Line returns the current line number (1-based).
func (r *Reader) Line() int { return r.line }

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// Peek returns the current lookahead byte, or 0 at end of file.
func (r *Reader) Peek() byte { return r.peek }

// AtEOF reports whether the reader has been exhausted.
func (r *Reader) AtEOF() bool { return r.eof && r.peek == 0 }

func (r *Reader) fill() error {
	n, err := r.f.Read(r.buf[:])
	r.n, r.pos = n, 0
	if err != nil {
		if err == io.EOF {
			r.eof = true
		}
		return err
	}
	return nil
}

// advance consumes the current lookahead and loads the next one.
func (r *Reader) advance() error {
	if r.peek == '\n' {
		r.line++
	}
	if r.pos >= r.n {
		if r.eof {
			r.peek = 0
			return io.EOF
		}
		if err := r.fill(); err != nil && r.n == 0 {
			r.peek = 0
			return err
		}
	}
	if r.n == 0 {
		r.peek = 0
		return io.EOF
	}
	r.peek = r.buf[r.pos]
	r.pos++
	return nil
}

// Next consumes the lookahead byte and returns it, advancing to the one
// that follows. At end of file it returns 0.
func (r *Reader) Next() byte {
	b := r.peek
	r.advance()
	return b
}
