package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeEntry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entry.rr")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// mnemonics returns the non-label mnemonics emitted, in order, for
// asserting on shape without pinning down every label name.
func mnemonics(out Output) []string {
	var ms []string
	for _, s := range out.Stubs {
		if !s.IsLabel {
			ms = append(ms, s.Mnem)
		}
	}
	return ms
}

func TestCompileStartPrologue(t *testing.T) {
	out, err := Compile(writeEntry(t, `Main() { ret 0; }`))
	require.NoError(t, err)
	require.True(t, out.Stubs[0].IsLabel)
	require.Equal(t, "!start", out.Stubs[0].Label)
	// !start calls Main then Ends, with no global initializers in between.
	require.Equal(t, Stub{Mnem: "Cal", Operand: "Main"}, out.Stubs[1])
	require.Equal(t, Stub{Mnem: "End"}, out.Stubs[2])
}

func TestCompileMissingMainFails(t *testing.T) {
	_, err := Compile(writeEntry(t, `foo() { ret 0; }`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Main")
}

func TestCompileGlobalInitBeforeMain(t *testing.T) {
	out, err := Compile(writeEntry(t, "count := 0;\nMain() { ret 0; }"))
	require.NoError(t, err)
	// !start calls the global's init label, then Main, then Ends.
	require.Equal(t, "Cal", out.Stubs[1].Mnem)
	require.NotEqual(t, "Main", out.Stubs[1].Operand)
	require.Equal(t, Stub{Mnem: "Cal", Operand: "Main"}, out.Stubs[2])
}

func TestCompileReturnEmitsSavFls(t *testing.T) {
	out, err := Compile(writeEntry(t, `Main() { ret 1; }`))
	require.NoError(t, err)
	ms := mnemonics(out)
	// the prologue's own Cal/End pair comes first, then Main's Psh/Sav/Fls
	// for its explicit return.
	require.Contains(t, ms, "Sav")
	require.Contains(t, ms, "Fls")
}

func TestCompileImplicitEpilogueDoesNotFls(t *testing.T) {
	out, err := Compile(writeEntry(t, `Main() { x := 1; }`))
	require.NoError(t, err)
	last := out.Stubs[len(out.Stubs)-1]
	require.Equal(t, "Ret", last.Mnem)
	// the implicit epilogue is Psh null; Sav; Ret -- never Fls.
	require.NotEqual(t, "Fls", out.Stubs[len(out.Stubs)-2].Mnem)
}

func TestCompileQueueLiteralEmitsPsb(t *testing.T) {
	out, err := Compile(writeEntry(t, `Main() { q := [1,2]; ret 0; }`))
	require.NoError(t, err)
	ms := mnemonics(out)
	count := 0
	for _, m := range ms {
		if m == "Psb" {
			count++
		}
	}
	require.Equal(t, 2, count)
}

func TestCompileConstEmitsCon(t *testing.T) {
	out, err := Compile(writeEntry(t, `Main() { const x := 1; ret 0; }`))
	require.NoError(t, err)
	require.Contains(t, mnemonics(out), "Con")
}

func TestCompileUnknownFactorFails(t *testing.T) {
	_, err := Compile(writeEntry(t, `Main() { x := ; ret 0; }`))
	require.Error(t, err)
}

func TestCompileErrorReportsFileAndLine(t *testing.T) {
	_, err := Compile(writeEntry(t, "Main() {\n\tx := ;\n\tret 0;\n}"))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, 2, cerr.Line)
}
