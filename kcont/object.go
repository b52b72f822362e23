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

// Package kcont is the KCONT registry (spec.md §4.B): an id-addressed
// table of page-backed shared-memory objects with the dual kernel_refs /
// user_refs discipline of spec.md §3.
//
// Grounded on state/containerDB.go's idTable pattern (one process-wide
// mutex guarding a map, insert-after-construct, unlink-before-release) and
// state/container.go's per-object state.
package kcont

import (
	"sync"
	"sync/atomic"

	"github.com/nestybox/kconreg/domain"
)

// object is one KCONT object (spec.md §3). Its own refcount fields are
// touched with sync/atomic so that Release (called from a descriptor's
// close path, with no registry lock held) never races with a concurrent
// registry-locked operation snapshotting them for INFO.
type object struct {
	id   uint64
	size uint64

	region domain.RegionIface

	kernelRefs int64 // spec.md §3: kernel_refs, initialized to 1 at creation
	userRefs   int64 // spec.md §3: user_refs

	finalizeOnce sync.Once
}

var _ domain.KcontObjectIface = (*object)(nil)

func newObject(id, size uint64, region domain.RegionIface) *object {
	return &object{
		id:         id,
		size:       region.Size(),
		region:     region,
		kernelRefs: 1,
		userRefs:   0,
	}
}

func (o *object) ID() uint64   { return o.id }
func (o *object) Size() uint64 { return o.size }

// addRef pins the object against concurrent Destroy/ForceDestroy by
// incrementing both counters before a descriptor is published to a
// caller, exactly as spec.md §4.B requires ("the two reference counters
// are incremented before publication").
func (o *object) addRef() {
	atomic.AddInt64(&o.kernelRefs, 1)
	atomic.AddInt64(&o.userRefs, 1)
}

// undoRef reverses a prior addRef when publication failed downstream
// (e.g. RegionFd's Dup call hit a descriptor-table limit) — spec.md §9(b):
// both counters roll back together on a failed GET_FD.
func (o *object) undoRef() {
	o.dropRef()
}

// dropRef is the common decrement-and-maybe-finalize path shared by a
// descriptor close (RegionFd success, later released) and an addRef
// rollback. Only a kernel_refs transition to zero can finalize the
// region; finalizeOnce guarantees the region is closed exactly once no
// matter how many racing droppers observe the zero crossing.
func (o *object) dropRef() {
	atomic.AddInt64(&o.userRefs, -1)
	if atomic.AddInt64(&o.kernelRefs, -1) == 0 {
		o.finalizeOnce.Do(func() {
			o.region.Close()
		})
	}
}

// RegionFd installs a fresh descriptor against the region, bumping both
// refcounts first so the object cannot be freed out from under the Dup
// call (spec.md §9, "Registry lookup vs publication ordering"). The
// refcount bump must happen while the registry lock is still held across
// the lookup — see registry.GetFd, which calls addRef itself before
// releasing the lock and then calls dupFd here — otherwise a concurrent
// Destroy/ForceDestroy can unlink and finalize the object in the window
// between lookup and this bump.
func (o *object) RegionFd() (int, error) {
	o.addRef()
	return o.dupFd()
}

// dupFd installs a fresh descriptor against the region. The caller must
// already hold a pinning reference (via a prior addRef) before calling
// this; on failure that reference is rolled back.
func (o *object) dupFd() (int, error) {
	fd, err := o.region.Dup()
	if err != nil {
		o.undoRef()
		return -1, domain.ErrResourceExhausted("no descriptor slot available for kcont object %d: %v", o.id, err)
	}
	return fd, nil
}

// Release drops one kernel_refs/user_refs pair previously taken by
// RegionFd.
func (o *object) Release() {
	o.dropRef()
}

func (o *object) Info() domain.KcontInfo {
	return domain.KcontInfo{
		Size:       o.size,
		UserRefs:   uint64(atomic.LoadInt64(&o.userRefs)),
		KernelRefs: uint64(atomic.LoadInt64(&o.kernelRefs)),
	}
}

// dropRegistryRef decrements the registry's own kernel_refs reference
// (never user_refs, which the registry never holds). It reports whether
// this decrement was the one that took the count to zero, without
// rolling anything back — callers decide whether to finalize or restore.
func (o *object) dropRegistryRef() bool {
	return atomic.AddInt64(&o.kernelRefs, -1) == 0
}

// restoreRegistryRef undoes dropRegistryRef when DESTROY's probe finds
// the count didn't reach zero (spec.md §4.B: "the decrement is undone so
// the probe is observation-only").
func (o *object) restoreRegistryRef() {
	atomic.AddInt64(&o.kernelRefs, 1)
}

// finalize closes the underlying region exactly once. Called when a
// decrement (registry or descriptor) observes kernel_refs hit zero.
func (o *object) finalize() {
	o.finalizeOnce.Do(func() {
		o.region.Close()
	})
}
