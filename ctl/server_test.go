package ctl_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestybox/kconreg/ctl"
	"github.com/nestybox/kconreg/ctl/implementations"
	"github.com/nestybox/kconreg/ctlproto"
	"github.com/nestybox/kconreg/domain"
	"github.com/nestybox/kconreg/kcont"
	"github.com/nestybox/kconreg/region"
	"github.com/nestybox/kconreg/session"
	"github.com/nestybox/kconreg/vars"
)

// newTestStack wires one dispatch service and a session manager against real
// (non-mocked) kcont/vars registries, exactly what cmd/kcontd and
// cmd/varsd assemble at startup — the only difference is both magics share
// one dispatch tree here, since op names are already namespaced by magic.
func newTestStack(t *testing.T) (domain.OpDispatchServiceIface, domain.SessionManagerIface) {
	t.Helper()

	kcontReg := kcont.NewRegistry(region.NewFactory())
	varsReg := vars.NewRegistry()

	handlers := []domain.OpHandlerIface{
		implementations.Create_Handler,
		implementations.GetFd_Handler,
		implementations.Destroy_Handler,
		implementations.ForceDestroy_Handler,
		implementations.Info_Handler,
		implementations.Register_Handler,
		implementations.OpenContainer_Handler,
		implementations.CloseContainer_Handler,
		implementations.Get_Handler,
		implementations.Set_Handler,
		implementations.ListContainers_Handler,
	}
	for _, h := range handlers {
		h.Bind(kcontReg, varsReg, region.NewFactory())
	}

	dispatch := ctl.NewDispatchService()
	dispatch.Setup(handlers)

	return dispatch, session.NewManager(varsReg)
}

func startServer(t *testing.T, magic ctlproto.Magic, dispatch domain.OpDispatchServiceIface, sessions domain.SessionManagerIface) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), string(magic)+".sock")
	srv := ctl.NewServer(magic, path, dispatch, sessions)
	require.NoError(t, srv.Listen())

	go srv.Serve()
	t.Cleanup(func() { srv.Close() })

	return path
}

func dial(t *testing.T, path string) *net.UnixConn {
	t.Helper()
	var conn *net.UnixConn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestVarsRoundTrip covers spec.md §8 scenario 4: REGISTER, OPEN, SET,
// GET, CLOSE against a real, listening control channel.
func TestVarsRoundTrip(t *testing.T) {
	dispatch, sessions := newTestStack(t)
	path := startServer(t, ctlproto.MagicVars, dispatch, sessions)
	conn := dial(t, path)

	regBody, err := ctlproto.EncodeRegisterReq(ctlproto.RegisterReq{
		ContainerName: "c",
		Vars:          []ctlproto.VarDesc{{Name: "counter", TypeTag: uint8(domain.TypeI64), Capacity: 8}},
	})
	require.NoError(t, err)
	status := roundTrip(t, conn, ctlproto.MagicVars, ctlproto.OpVarsRegister, regBody, nil)
	assert.Equal(t, byte(0), status)

	nameBody, err := ctlproto.EncodeContainerName("c")
	require.NoError(t, err)
	status = roundTrip(t, conn, ctlproto.MagicVars, ctlproto.OpVarsOpenContainer, nameBody, nil)
	assert.Equal(t, byte(0), status)

	setBody, err := ctlproto.EncodeVarAccess(ctlproto.VarAccess{VarName: "counter", BufSize: 8})
	require.NoError(t, err)
	payload := ctlproto.EncodeU64(42)
	status = roundTrip(t, conn, ctlproto.MagicVars, ctlproto.OpVarsSet, setBody, payload)
	assert.Equal(t, byte(0), status)

	getBody, err := ctlproto.EncodeVarAccess(ctlproto.VarAccess{VarName: "counter", BufSize: 8})
	require.NoError(t, err)
	require.NoError(t, ctlproto.WriteRequest(conn, ctlproto.Request{Magic: ctlproto.MagicVars, Op: ctlproto.OpVarsGet, Body: getBody}))
	resp, err := ctlproto.ReadResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, byte(0), resp.Status)
	got, err := ctlproto.DecodeU64(resp.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)

	status = roundTrip(t, conn, ctlproto.MagicVars, ctlproto.OpVarsCloseContainer, nil, nil)
	assert.Equal(t, byte(0), status)
}

// TestVarsWrongSizeBufferLeavesStorageUnchanged covers spec.md §8 scenario
// 5 over the wire: GET with an undersized buffer fails invalid-argument and
// the stored value is unchanged.
func TestVarsWrongSizeBufferLeavesStorageUnchanged(t *testing.T) {
	dispatch, sessions := newTestStack(t)
	path := startServer(t, ctlproto.MagicVars, dispatch, sessions)
	conn := dial(t, path)

	regBody, _ := ctlproto.EncodeRegisterReq(ctlproto.RegisterReq{
		ContainerName: "c",
		Vars:          []ctlproto.VarDesc{{Name: "v", TypeTag: uint8(domain.TypeU64), Capacity: 8}},
	})
	roundTrip(t, conn, ctlproto.MagicVars, ctlproto.OpVarsRegister, regBody, nil)
	nameBody, _ := ctlproto.EncodeContainerName("c")
	roundTrip(t, conn, ctlproto.MagicVars, ctlproto.OpVarsOpenContainer, nameBody, nil)

	fullBody, _ := ctlproto.EncodeVarAccess(ctlproto.VarAccess{VarName: "v", BufSize: 8})
	status := roundTrip(t, conn, ctlproto.MagicVars, ctlproto.OpVarsSet, fullBody, ctlproto.EncodeU64(7))
	require.Equal(t, byte(0), status)

	getBody, _ := ctlproto.EncodeVarAccess(ctlproto.VarAccess{VarName: "v", BufSize: 4})
	require.NoError(t, ctlproto.WriteRequest(conn, ctlproto.Request{Magic: ctlproto.MagicVars, Op: ctlproto.OpVarsGet, Body: getBody}))
	resp, err := ctlproto.ReadResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, domain.WireStatus(3), resp.Status) // InvalidArgument, SPEC_FULL.md §7

	// A full-size GET afterwards still reads the value stored before.
	require.NoError(t, ctlproto.WriteRequest(conn, ctlproto.Request{Magic: ctlproto.MagicVars, Op: ctlproto.OpVarsGet, Body: fullBody}))
	resp, err = ctlproto.ReadResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, byte(0), resp.Status)
	got, err := ctlproto.DecodeU64(resp.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got)
}

// TestKcontCreateGetFdInfoDestroy exercises KCONT end to end, including
// SCM_RIGHTS fd passing on GET_FD.
func TestKcontCreateGetFdInfoDestroy(t *testing.T) {
	dispatch, sessions := newTestStack(t)
	path := startServer(t, ctlproto.MagicKcont, dispatch, sessions)
	conn := dial(t, path)

	createBody := ctlproto.EncodeCreateReq(ctlproto.CreateReq{ID: 1, Size: 4096})
	status := roundTrip(t, conn, ctlproto.MagicKcont, ctlproto.OpKcontCreate, createBody, nil)
	assert.Equal(t, byte(0), status)

	require.NoError(t, ctlproto.WriteRequest(conn, ctlproto.Request{
		Magic: ctlproto.MagicKcont, Op: ctlproto.OpKcontGetFd, Body: ctlproto.EncodeU64(1),
	}))
	resp, fd, err := ctlproto.RecvFD(conn)
	require.NoError(t, err)
	assert.Equal(t, byte(0), resp.Status)
	assert.GreaterOrEqual(t, fd, 0)
	if fd >= 0 {
		defer func() { _ = closeFd(fd) }()
	}

	require.NoError(t, ctlproto.WriteRequest(conn, ctlproto.Request{
		Magic: ctlproto.MagicKcont, Op: ctlproto.OpKcontInfo, Body: ctlproto.EncodeU64(1),
	}))
	resp, err = ctlproto.ReadResponse(conn)
	require.NoError(t, err)
	require.Equal(t, byte(0), resp.Status)
	info, err := ctlproto.DecodeInfoRec(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.UserRefs)
	assert.Equal(t, uint64(2), info.KernelRefs)

	// Busy: a descriptor is still outstanding.
	status = roundTrip(t, conn, ctlproto.MagicKcont, ctlproto.OpKcontDestroy, ctlproto.EncodeU64(1), nil)
	assert.Equal(t, domain.WireStatus(4), status) // FailedPrecondition
}

func roundTrip(t *testing.T, conn *net.UnixConn, magic ctlproto.Magic, op byte, body, payload []byte) byte {
	t.Helper()
	require.NoError(t, ctlproto.WriteRequest(conn, ctlproto.Request{Magic: magic, Op: op, Body: body, Payload: payload}))
	resp, err := ctlproto.ReadResponse(conn)
	require.NoError(t, err)
	return resp.Status
}

func closeFd(fd int) error {
	return os.NewFile(uintptr(fd), "kcont-region").Close()
}
