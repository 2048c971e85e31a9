package vm_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roman2/rr/asm"
	"github.com/roman2/rr/compiler"
	"github.com/roman2/rr/vm"
)

// run compiles, assembles, and executes src, returning its stdout and the
// error Run produced (nil on a normal End).
func run(t *testing.T, src string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entry.rr")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	out, err := compiler.Compile(path)
	require.NoError(t, err)
	prog, err := asm.Assemble(out)
	require.NoError(t, err)

	var stdout bytes.Buffer
	m := vm.New(prog.Code, prog.Data, prog.Debug, prog.Addrs, vm.Stdout(&stdout))
	runErr := m.Run()
	return stdout.String(), runErr
}

// The six concrete scenarios are the canonical input/output/exit-code
// fixtures: they exercise the compiler, assembler, and VM together end to
// end, the way the teacher's example_test.go drives its vm.Instance.

func TestScenarioBareReturn(t *testing.T) {
	out, err := run(t, `Main() { ret 0; }`)
	require.NoError(t, err)
	require.Equal(t, "", out)
}

func TestScenarioPrintHello(t *testing.T) {
	out, err := run(t, `Main() { Print("hello"); ret 0; }`)
	require.NoError(t, err)
	require.Equal(t, "hello\n", out)
}

func TestScenarioFibonacci(t *testing.T) {
	out, err := run(t, `
fib(n) { if(n < 2) { ret n; } ret fib(n-1) + fib(n-2); }
Main() { Print(fib(10)); ret 0; }
`)
	require.NoError(t, err)
	require.Equal(t, "55.000000\n", out)
}

func TestScenarioQsort(t *testing.T) {
	out, err := run(t, `
less(a,b) { ret a < b; }
Main() { q := [3,1,2]; Qsort(q, &less); Print(q); ret 0; }
`)
	require.NoError(t, err)
	require.Equal(t, "[\n    1.000000,\n    2.000000,\n    3.000000\n]\n", out)
}

func TestScenarioMapKeys(t *testing.T) {
	out, err := run(t, `Main() { m := {.a: 1, .b: 2}; Print(Keys(m)); ret 0; }`)
	require.NoError(t, err)
	require.Equal(t, "[\n    \"a\",\n    \"b\"\n]\n", out)
}

func TestScenarioConstAssignFails(t *testing.T) {
	_, err := run(t, `Main() { const x := 1; x = 2; ret 0; }`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot modify (=) const values")
	var rerr *vm.RuntimeError
	require.ErrorAs(t, err, &rerr)
}

func TestExitCodeIsMainsReturnValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entry.rr")
	require.NoError(t, os.WriteFile(path, []byte(`Main() { ret 7; }`), 0644))
	out, err := compiler.Compile(path)
	require.NoError(t, err)
	prog, err := asm.Assemble(out)
	require.NoError(t, err)
	m := vm.New(prog.Code, prog.Data, prog.Debug, prog.Addrs, vm.Stdout(bytes.NewBuffer(nil)))
	require.NoError(t, m.Run())
	require.Equal(t, 7, m.ExitCode())
}
