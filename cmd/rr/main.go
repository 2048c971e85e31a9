// Command rr compiles and runs a single RR entry module.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/roman2/rr/asm"
	"github.com/roman2/rr/compiler"
	"github.com/roman2/rr/internal/rrio"
	"github.com/roman2/rr/vm"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rr [-d] [-h] ENTRY.rr")
	flag.PrintDefaults()
}

func main() {
	dump := flag.Bool("d", false, "dump the assembly stub stream and data segment without running")
	help := flag.Bool("h", false, "print usage")
	flag.Usage = usage
	flag.Parse()

	if *help {
		usage()
		os.Exit(0)
	}
	if flag.NArg() != 1 {
		usage()
		os.Exit(0xFF)
	}

	out, err := compiler.Compile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(0xFF)
	}

	prog, err := asm.Assemble(out)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(0xFF)
	}

	if *dump {
		if err := dumpProgram(out, prog); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(0xFF)
		}
		return
	}

	m := vm.New(prog.Code, prog.Data, prog.Debug, prog.Addrs)
	if err := m.Run(); err != nil {
		reportRuntimeError(err)
		os.Exit(0xFF)
	}
	os.Exit(m.ExitCode())
}

// dumpProgram prints the stub stream the compiler emitted followed by the
// deduplicated literal data segment the assembler built from it, per the
// -d flag's "without running" contract.
func dumpProgram(out compiler.Output, prog *asm.Program) error {
	w := rrio.NewErrWriter(os.Stdout)
	for _, s := range out.Stubs {
		fmt.Fprintln(w, s.String())
	}
	for i, v := range prog.Data {
		fmt.Fprintf(w, "%d: %s\n", i, v.Print(true, 0))
	}
	return w.Err
}

// reportRuntimeError prints the failing instruction's (file, line), the
// error, and a symbolicated call-stack trace, per the fatal-error contract.
func reportRuntimeError(err error) {
	fmt.Fprintln(os.Stderr, err)
	rerr, ok := err.(*vm.RuntimeError)
	if !ok {
		return
	}
	for _, fn := range rerr.Trace {
		fmt.Fprintf(os.Stderr, "  in %s\n", fn)
	}
}
