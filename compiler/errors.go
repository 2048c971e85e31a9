package compiler

import "github.com/pkg/errors"

// CompileError reports a failure at a specific (module, line), matching the
// diagnostics the teacher's assembler attaches to malformed input.
type CompileError struct {
	File string
	Line int
	Err  error
}

func (e *CompileError) Error() string {
	return errors.Wrapf(e.Err, "%s:%d", e.File, e.Line).Error()
}

func (e *CompileError) Unwrap() error { return e.Err }

func (c *Compiler) errorf(format string, args ...interface{}) error {
	return &CompileError{File: c.lastFile, Line: c.lastLine, Err: errors.Errorf(format, args...)}
}
