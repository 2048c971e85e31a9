package asm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roman2/rr/compiler"
	"github.com/roman2/rr/vm"
)

func stub(mnem, operand string) compiler.Stub {
	return compiler.Stub{Mnem: mnem, Operand: operand}
}

func debugFor(stubs []compiler.Stub) []compiler.DebugRecord {
	n := 0
	for _, s := range stubs {
		if !s.IsLabel {
			n++
		}
	}
	return make([]compiler.DebugRecord, n)
}

func TestAssembleDedupsIdenticalLiterals(t *testing.T) {
	stubs := []compiler.Stub{
		stub("Psh", `"hi"`),
		stub("Psh", `"hi"`),
		stub("Pop", "2"),
		stub("End", ""),
	}
	out := compiler.Output{Stubs: stubs, Debug: debugFor(stubs)}
	prog, err := Assemble(out)
	require.NoError(t, err)
	require.Len(t, prog.Data, 1)

	op0, operand0 := prog.Code[0].Decode()
	op1, operand1 := prog.Code[1].Decode()
	require.Equal(t, vm.OpPsh, op0)
	require.Equal(t, vm.OpPsh, op1)
	require.Equal(t, operand0, operand1)
}

func TestAssembleResolvesForwardLabel(t *testing.T) {
	stubs := []compiler.Stub{
		stub("Jmp", "done"),
		stub("Psh", "1"),
		{IsLabel: true, Label: "done"},
		stub("End", ""),
	}
	out := compiler.Output{Stubs: stubs, Debug: debugFor(stubs)}
	prog, err := Assemble(out)
	require.NoError(t, err)

	_, target := prog.Code[0].Decode()
	require.Equal(t, int64(2), target) // "done" labels End, the third non-label stub, pc 2
}

func TestAssembleUndefinedLabelFails(t *testing.T) {
	stubs := []compiler.Stub{stub("Jmp", "nowhere"), stub("End", "")}
	out := compiler.Output{Stubs: stubs, Debug: debugFor(stubs)}
	_, err := Assemble(out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "nowhere")
}

func TestAssembleDuplicateLabelFails(t *testing.T) {
	stubs := []compiler.Stub{
		{IsLabel: true, Label: "l"},
		stub("End", ""),
		{IsLabel: true, Label: "l"},
	}
	out := compiler.Output{Stubs: stubs, Debug: debugFor(stubs)}
	_, err := Assemble(out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate label")
}

func TestAssembleUnknownMnemonicFails(t *testing.T) {
	stubs := []compiler.Stub{stub("Bogus", "")}
	out := compiler.Output{Stubs: stubs, Debug: debugFor(stubs)}
	_, err := Assemble(out)
	require.Error(t, err)
}

func TestAssembleNumericOperandsRoundTrip(t *testing.T) {
	stubs := []compiler.Stub{
		stub("Glb", "3"),
		stub("Loc", "5"),
		stub("Spd", "2"),
		stub("End", ""),
	}
	out := compiler.Output{Stubs: stubs, Debug: debugFor(stubs)}
	prog, err := Assemble(out)
	require.NoError(t, err)
	for i, want := range []int64{3, 5, 2} {
		op, operand := prog.Code[i].Decode()
		require.Equal(t, want, operand)
		_ = op
	}
}
