package vm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestMarshalArgsNumberAndBool(t *testing.T) {
	words, _, err := marshalArgs([]*Value{NewNumber(7), NewBool(true), NewBool(false)})
	require.NoError(t, err)
	require.Equal(t, uintptr(7), words[0])
	require.Equal(t, uintptr(1), words[1])
	require.Equal(t, uintptr(0), words[2])
}

func TestMarshalArgsStringIsNulTerminated(t *testing.T) {
	words, keepalive, err := marshalArgs([]*Value{NewString("hi")})
	require.NoError(t, err)
	require.Len(t, keepalive, 1)
	require.Equal(t, []byte("hi\x00"), keepalive[0])
	require.Equal(t, unsafe.Pointer(&keepalive[0][0]), unsafe.Pointer(words[0]))
}

func TestMarshalArgsRejectsContainers(t *testing.T) {
	_, _, err := marshalArgs([]*Value{NewQueue()})
	require.Error(t, err)
}
