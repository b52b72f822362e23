//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package kcont

import (
	"fmt"

	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/nestybox/kconreg/domain"
)

// minBuckets is the table's starting width; spec.md §3 requires a
// power-of-two size of at least 1024.
const minBuckets = 1024

// registry is the process-wide id→object table (spec.md §4.B). Unlike
// VARS, whose name counts are small enough for a linear list, KCONT ids
// are expected to churn at real workload scale, so the table is chained
// hash buckets rather than a single map — closer to the "bucket_link"
// intrusive-list shape spec.md §3 describes, and cheap to reason about
// under one coarse lock.
type registry struct {
	mu deadlock.Mutex

	buckets [][]*object
	mask    uint64
	count   int

	regionFactory domain.RegionFactoryIface
}

var _ domain.KcontRegistryIface = (*registry)(nil)

// NewRegistry constructs an empty KCONT registry backed by the given
// shared-region factory (spec.md §4.E).
func NewRegistry(regionFactory domain.RegionFactoryIface) domain.KcontRegistryIface {
	return &registry{
		buckets:       make([][]*object, minBuckets),
		mask:          minBuckets - 1,
		regionFactory: regionFactory,
	}
}

// bucketIndex mixes id into the table width (spec.md §4.B's "algorithmic
// notes"), using the standard 64-bit Fibonacci-hashing multiplier so that
// sequential ids (a common caller pattern) don't all land in the same
// bucket.
func (r *registry) bucketIndex(id uint64) uint64 {
	const fib64 = 0x9E3779B97F4A7C15
	return (id * fib64) & r.mask
}

func (r *registry) find(id uint64) (*object, int, int) {
	idx := r.bucketIndex(id)
	for pos, o := range r.buckets[idx] {
		if o.id == id {
			return o, int(idx), pos
		}
	}
	return nil, int(idx), -1
}

func (r *registry) Create(id uint64, size uint64, flags uint64) error {
	if size == 0 {
		return domain.ErrInvalidArgument("kcont create: size must be non-zero")
	}

	r.mu.Lock()

	if o, _, _ := r.find(id); o != nil {
		r.mu.Unlock()
		return domain.ErrAlreadyExists("kcont object %d already exists", id)
	}

	// Fully construct the object, including its backing region, before
	// linkage (spec.md §4.B: "publication uses insert-after-construction").
	// Region creation can allocate under the registry lock per spec.md §5
	// ("Allocations under the registry lock are permitted").
	region, err := r.regionFactory.New(fmt.Sprintf("kcont-%d", id), size)
	if err != nil {
		r.mu.Unlock()
		return domain.ErrNoMemory("kcont create %d: %v", id, err)
	}

	obj := newObject(id, size, region)
	idx := r.bucketIndex(id)
	r.buckets[idx] = append(r.buckets[idx], obj)
	r.count++

	r.mu.Unlock()
	return nil
}

func (r *registry) GetFd(id uint64) (int, error) {
	r.mu.Lock()
	obj, _, _ := r.find(id)
	if obj == nil {
		r.mu.Unlock()
		return -1, domain.ErrNotFound("kcont object %d not found", id)
	}

	// Pin the object with the registry lock still held (spec.md §9:
	// "take the registry lock across the dereference"). Destroy and
	// ForceDestroy also decrement kernel_refs while holding r.mu, so this
	// addRef is serialized against them — there is no window where they
	// can observe the object as unreferenced and unlink/finalize it
	// before this call has pinned it.
	obj.addRef()
	r.mu.Unlock()

	// The Dup syscall itself can block/fault, so it stays outside the
	// lock (spec.md §5: "registry lock MUST NOT be held across" such an
	// operation) — only the refcount bump that pins the object needs it.
	return obj.dupFd()
}

func (r *registry) Destroy(id uint64) error {
	r.mu.Lock()
	obj, idx, pos := r.find(id)
	if obj == nil {
		r.mu.Unlock()
		return domain.ErrNotFound("kcont object %d not found", id)
	}

	if obj.Info().UserRefs > 0 {
		r.mu.Unlock()
		return domain.ErrBusy("kcont object %d has %d outstanding user references", id, obj.Info().UserRefs)
	}

	// Decrement-and-test the registry's own kernel_refs. If it isn't the
	// last reference, undo and fail: the probe must be observation-only
	// (spec.md §4.B).
	if !obj.dropRegistryRef() {
		obj.restoreRegistryRef()
		r.mu.Unlock()
		return domain.ErrBusy("kcont object %d still referenced", id)
	}

	r.unlinkLocked(idx, pos)
	r.mu.Unlock()

	obj.finalize()
	return nil
}

func (r *registry) ForceDestroy(id uint64) error {
	r.mu.Lock()
	obj, idx, pos := r.find(id)
	if obj == nil {
		r.mu.Unlock()
		return domain.ErrNotFound("kcont object %d not found", id)
	}
	r.unlinkLocked(idx, pos)
	r.mu.Unlock()

	// Unlink unconditionally; deferred reclamation (here, the refcounted
	// finalize) releases the object once its last outstanding reference —
	// ours, or a descriptor still open in some client — goes away.
	if obj.dropRegistryRef() {
		obj.finalize()
	}
	return nil
}

func (r *registry) Info(id uint64) (domain.KcontInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, _, _ := r.find(id)
	if obj == nil {
		return domain.KcontInfo{}, domain.ErrNotFound("kcont object %d not found", id)
	}
	return obj.Info(), nil
}

func (r *registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// unlinkLocked removes the bucket entry at (idx, pos). Caller must hold
// r.mu.
func (r *registry) unlinkLocked(idx, pos int) {
	bucket := r.buckets[idx]
	r.buckets[idx] = append(bucket[:pos], bucket[pos+1:]...)
	r.count--
}
