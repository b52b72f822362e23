package ctlproto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateReqRoundTrip(t *testing.T) {
	req := CreateReq{ID: 9999, Size: 4, Flags: 0}
	got, err := DecodeCreateReq(EncodeCreateReq(req))
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestInfoRecRoundTrip(t *testing.T) {
	rec := InfoRec{ID: 1, Size: 4096, UserRefs: 1, KernelRefs: 2}
	got, err := DecodeInfoRec(EncodeInfoRec(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRegisterReqRoundTrip(t *testing.T) {
	req := RegisterReq{
		ContainerName: "c",
		Vars: []VarDesc{
			{Name: "counter", TypeTag: 2, Capacity: 8},
			{Name: "label", TypeTag: 7, Capacity: 32},
		},
	}
	enc, err := EncodeRegisterReq(req)
	require.NoError(t, err)

	got, err := DecodeRegisterReq(enc)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestRegisterReqTooManyVars(t *testing.T) {
	vars := make([]VarDesc, MaxVarsPerContainer+1)
	_, err := EncodeRegisterReq(RegisterReq{ContainerName: "c", Vars: vars})
	assert.Error(t, err)
}

func TestRegisterReqNameTooLong(t *testing.T) {
	_, err := EncodeRegisterReq(RegisterReq{ContainerName: strings.Repeat("x", ContainerNameMax)})
	assert.Error(t, err)
}

func TestVarAccessRoundTrip(t *testing.T) {
	va := VarAccess{ContainerName: "c", VarName: "counter", BufSize: 8}
	enc, err := EncodeVarAccess(va)
	require.NoError(t, err)

	got, err := DecodeVarAccess(enc)
	require.NoError(t, err)
	assert.Equal(t, va, got)
}

func TestContainerNameRoundTrip(t *testing.T) {
	enc, err := EncodeContainerName("my-container")
	require.NoError(t, err)

	got, err := DecodeContainerName(enc)
	require.NoError(t, err)
	assert.Equal(t, "my-container", got)
}

func TestDecodeU64ShortBuffer(t *testing.T) {
	_, err := DecodeU64([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestOpName(t *testing.T) {
	name, ok := OpName(MagicKcont, OpKcontCreate)
	require.True(t, ok)
	assert.Equal(t, "kcont.create", name)

	_, ok = OpName(MagicVars, 0xff)
	assert.False(t, ok)
}
