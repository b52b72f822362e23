package vars

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestybox/kconreg/domain"
)

func TestRegisterOpenSetGetClose(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register("c", []domain.VarDesc{
		{Name: "counter", Type: domain.TypeI64, Capacity: 8},
	}))

	c, err := reg.OpenContainer("c")
	require.NoError(t, err)
	assert.Equal(t, 1, c.GlobalRef())

	v, ok := c.Lookup("counter")
	require.True(t, ok)

	in := make([]byte, 8)
	in[0] = 42
	require.NoError(t, v.Set(in))

	out := make([]byte, 8)
	require.NoError(t, v.Get(out))
	assert.Equal(t, in, out)

	require.NoError(t, reg.CloseContainer("c"))
	assert.Equal(t, 0, reg.Size())
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("c", nil))

	err := reg.Register("c", nil)
	assert.Equal(t, "AlreadyExists", domain.Code(err).String())
}

func TestOpenContainerNotFound(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.OpenContainer("missing")
	assert.Equal(t, "NotFound", domain.Code(err).String())
}

func TestGetWrongSizeBufferLeavesStorageUnchanged(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("c", []domain.VarDesc{
		{Name: "v", Type: domain.TypeBlob, Capacity: 8},
	}))
	c, err := reg.OpenContainer("c")
	require.NoError(t, err)
	v, _ := c.Lookup("v")

	full := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, v.Set(full))

	err = v.Get(make([]byte, 4))
	assert.Equal(t, "InvalidArgument", domain.Code(err).String())

	out := make([]byte, 8)
	require.NoError(t, v.Get(out))
	assert.Equal(t, full, out)
}

func TestDefaultCapacity(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("c", []domain.VarDesc{
		{Name: "s", Type: domain.TypeStr},
		{Name: "i", Type: domain.TypeI32},
	}))
	c, _ := reg.OpenContainer("c")

	s, _ := c.Lookup("s")
	assert.Equal(t, uint32(domain.DefaultBlobCapacity), s.Capacity())

	i, _ := c.Lookup("i")
	assert.Equal(t, uint32(4), i.Capacity())
}

func TestCloseContainerRequiresOpen(t *testing.T) {
	reg := NewRegistry()
	err := reg.CloseContainer("missing")
	assert.Equal(t, "NotFound", domain.Code(err).String())
}

func TestRegisterRoundTripLeavesNoResidue(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("c", nil))

	_, err := reg.OpenContainer("c")
	require.NoError(t, err)
	_, err = reg.OpenContainer("c")
	require.NoError(t, err)

	require.NoError(t, reg.CloseContainer("c"))
	assert.Equal(t, 1, reg.Size())
	require.NoError(t, reg.CloseContainer("c"))
	assert.Equal(t, 0, reg.Size())
	assert.Empty(t, reg.List())
}

func TestConcurrentVariableAccessIsLinearizablePerVariable(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("c", []domain.VarDesc{
		{Name: "counter", Type: domain.TypeU64, Capacity: 8},
	}))
	c, err := reg.OpenContainer("c")
	require.NoError(t, err)
	v, _ := c.Lookup("counter")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i byte) {
			defer wg.Done()
			buf := make([]byte, 8)
			buf[0] = i
			_ = v.Set(buf)
			out := make([]byte, 8)
			_ = v.Get(out)
		}(byte(i))
	}
	wg.Wait()
}
