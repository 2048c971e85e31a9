// Package asm implements the two-pass assembler: it turns a
// compiler.Output stub stream into a Program — an encoded instruction
// array, a deduplicated literal data segment, and a sorted address table
// for stack-trace symbolication, per spec §4.2.
package asm

import (
	"github.com/roman2/rr/compiler"
	"github.com/roman2/rr/vm"
)

// Program is everything the VM needs to run: the encoded instruction
// words, the literal data segment they reference via Psh operands, and
// the address table.
type Program struct {
	Code  []vm.Word
	Data  []*vm.Value
	Debug []compiler.DebugRecord
	Addrs []vm.AddressRecord
}

// Assemble runs both passes over out and returns the finished Program.
func Assemble(out compiler.Output) (*Program, error) {
	a := newAssembler(out)
	if err := a.pass1(); err != nil {
		return nil, err
	}
	if err := a.pass2(); err != nil {
		return nil, err
	}
	return &Program{Code: a.code, Data: a.data, Debug: a.debug, Addrs: a.addrs()}, nil
}
