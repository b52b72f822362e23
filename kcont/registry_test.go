package kcont

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestybox/kconreg/domain"
)

// fakeRegion and fakeFactory let the registry's refcount/locking
// discipline be tested without depending on memfd_create being available
// (registry.go never looks past the domain.RegionFactoryIface/RegionIface
// interfaces, so a fake is a faithful substitute here).
type fakeRegion struct {
	size   uint64
	dups   int
	closed bool
	mu     sync.Mutex
}

func (r *fakeRegion) Size() uint64 { return r.size }

func (r *fakeRegion) Dup() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dups++
	return 1000 + r.dups, nil
}

func (r *fakeRegion) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type failingRegion struct{ *fakeRegion }

func (r *failingRegion) Dup() (int, error) {
	return -1, domain.ErrResourceExhausted("no fd slots")
}

type fakeFactory struct {
	fail bool
	last *fakeRegion
}

func (f *fakeFactory) New(name string, size uint64) (domain.RegionIface, error) {
	if f.fail {
		return nil, domain.ErrNoMemory("fake alloc failure")
	}
	r := &fakeRegion{size: roundUpToPage(size)}
	f.last = r
	return r, nil
}

func roundUpToPage(size uint64) uint64 {
	const page = 4096
	if size == 0 {
		return page
	}
	return (size + page - 1) &^ (page - 1)
}

func TestCreateThenInfo(t *testing.T) {
	reg := NewRegistry(&fakeFactory{})

	require.NoError(t, reg.Create(9999, 4, 0))

	info, err := reg.Info(9999)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.Size, uint64(4))
	assert.Equal(t, uint64(1), info.KernelRefs)
	assert.Equal(t, uint64(0), info.UserRefs)
}

func TestCreateDuplicateFails(t *testing.T) {
	reg := NewRegistry(&fakeFactory{})
	require.NoError(t, reg.Create(7, 64, 0))

	err := reg.Create(7, 64, 0)
	assert.Equal(t, domain.Code(err).String(), "AlreadyExists")
}

func TestCreateZeroSizeFails(t *testing.T) {
	reg := NewRegistry(&fakeFactory{})
	err := reg.Create(1, 0, 0)
	assert.Equal(t, domain.Code(err).String(), "InvalidArgument")
}

func TestCreateAllocFailure(t *testing.T) {
	reg := NewRegistry(&fakeFactory{fail: true})
	err := reg.Create(1, 16, 0)
	assert.Equal(t, domain.Code(err).String(), "ResourceExhausted")
}

func TestGetFdIncrementsBothRefs(t *testing.T) {
	reg := NewRegistry(&fakeFactory{})
	require.NoError(t, reg.Create(1, 16, 0))

	fd, err := reg.GetFd(1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fd, 0)

	info, err := reg.Info(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.KernelRefs)
	assert.Equal(t, uint64(1), info.UserRefs)
}

func TestGetFdNotFound(t *testing.T) {
	reg := NewRegistry(&fakeFactory{})
	_, err := reg.GetFd(42)
	assert.Equal(t, domain.Code(err).String(), "NotFound")
}

// TestGetFdRollbackOnResourceExhaustion covers SPEC_FULL.md §9(b): a
// failed GET_FD must roll both counters back to their pre-call values.
func TestGetFdRollbackOnResourceExhaustion(t *testing.T) {
	ff := &fakeFactory{}
	reg := NewRegistry(ff)
	require.NoError(t, reg.Create(1, 16, 0))

	// Swap in a region whose Dup always fails, simulating descriptor
	// exhaustion, without touching the registry's locking.
	r := reg.(*registry)
	r.mu.Lock()
	obj, _, _ := r.find(1)
	obj.region = &failingRegion{ff.last}
	r.mu.Unlock()

	before, _ := reg.Info(1)

	_, err := reg.GetFd(1)
	assert.Equal(t, domain.Code(err).String(), "Unavailable")

	after, _ := reg.Info(1)
	assert.Equal(t, before, after)
}

func TestDestroyWhileMapped(t *testing.T) {
	reg := NewRegistry(&fakeFactory{})
	require.NoError(t, reg.Create(1, 4096, 0))

	_, err := reg.GetFd(1)
	require.NoError(t, err)

	err = reg.Destroy(1)
	assert.Equal(t, domain.Code(err).String(), "FailedPrecondition")

	r := reg.(*registry)
	r.mu.Lock()
	obj, _, _ := r.find(1)
	r.mu.Unlock()
	obj.Release()

	require.NoError(t, reg.Destroy(1))

	_, err = reg.Info(1)
	assert.Equal(t, domain.Code(err).String(), "NotFound")
}

func TestDestroyNotFound(t *testing.T) {
	reg := NewRegistry(&fakeFactory{})
	err := reg.Destroy(1)
	assert.Equal(t, domain.Code(err).String(), "NotFound")
}

func TestDestroyRoundTripIsNoop(t *testing.T) {
	reg := NewRegistry(&fakeFactory{})
	require.NoError(t, reg.Create(5, 16, 0))
	require.NoError(t, reg.Destroy(5))
	assert.Equal(t, 0, reg.Size())
}

func TestForceDestroyUnlinksImmediatelyMappingSurvives(t *testing.T) {
	ff := &fakeFactory{}
	reg := NewRegistry(ff)
	require.NoError(t, reg.Create(1, 4096, 0))

	_, err := reg.GetFd(1)
	require.NoError(t, err)

	require.NoError(t, reg.ForceDestroy(1))

	_, err = reg.Info(1)
	assert.Equal(t, domain.Code(err).String(), "NotFound")
	// The region isn't actually freed yet: a descriptor is still
	// outstanding.
	assert.False(t, ff.last.closed)
}

// TestConcurrentCreateRace covers spec.md §8 scenario 3: exactly one of
// two racing CREATE(id=7) calls succeeds.
func TestConcurrentCreateRace(t *testing.T) {
	reg := NewRegistry(&fakeFactory{})

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = reg.Create(7, 64, 0)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.Equal(t, domain.Code(err).String(), "AlreadyExists")
		}
	}
	assert.Equal(t, 1, successes)

	info, err := reg.Info(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(64), info.Size)
}

// TestConcurrentGetFdDestroyRace covers spec.md §9's "take the registry
// lock across the dereference" requirement: GetFd racing Destroy must
// never hand back a descriptor into a region that Destroy has already
// closed. Either GetFd wins (pins the object, so Destroy's probe then
// finds user_refs/kernel_refs still held and fails with Busy) or Destroy
// wins first and unlinks before GetFd's lookup, in which case GetFd must
// fail NotFound — it must never succeed with a fd from a closed region.
func TestConcurrentGetFdDestroyRace(t *testing.T) {
	for i := 0; i < 200; i++ {
		ff := &fakeFactory{}
		reg := NewRegistry(ff)
		require.NoError(t, reg.Create(1, 4096, 0))

		var wg sync.WaitGroup
		var fd int
		var getErr, destroyErr error

		wg.Add(2)
		go func() {
			defer wg.Done()
			fd, getErr = reg.GetFd(1)
		}()
		go func() {
			defer wg.Done()
			destroyErr = reg.Destroy(1)
		}()
		wg.Wait()

		if getErr == nil {
			// GetFd observed the object before Destroy unlinked it: the
			// region must still be open, and the fd must be a real
			// duplicate of it, not of something finalized out from
			// under the call.
			assert.GreaterOrEqual(t, fd, 0)
			assert.False(t, ff.last.closed)
			// Destroy must have seen the outstanding reference and
			// refused, since GetFd pinned the object before Destroy
			// could have unlinked it.
			if destroyErr != nil {
				assert.Equal(t, domain.Code(destroyErr).String(), "FailedPrecondition")
			}
		} else {
			// Destroy won the race and unlinked the object first:
			// GetFd must fail cleanly, never return a stale/reused fd.
			assert.Equal(t, domain.Code(getErr).String(), "NotFound")
			assert.Equal(t, -1, fd)
		}
	}
}
