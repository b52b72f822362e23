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

package domain

// KcontInfo is the read-only snapshot returned by INFO, taken under the
// registry lock (spec.md §4.B).
type KcontInfo struct {
	Size        uint64
	UserRefs    uint64
	KernelRefs  uint64
}

// KcontObjectIface is a single id-addressed, page-backed shared-memory
// object (spec.md §3, KCONT object).
type KcontObjectIface interface {
	ID() uint64
	Size() uint64

	// RegionFd returns a fresh, caller-owned duplicate of the descriptor
	// backing the region. Every call increments both kernel_refs and
	// user_refs; the caller is responsible for eventually calling Release.
	RegionFd() (int, error)

	// Release drops one kernel_refs/user_refs pair, as taken by a prior
	// RegionFd call. If kernel_refs then reaches zero and the object was
	// already unlinked, the region is freed.
	Release()

	Info() KcontInfo
}

// KcontRegistryIface is the process-wide id→object registry (spec.md §4.B).
type KcontRegistryIface interface {
	Create(id uint64, size uint64, flags uint64) error
	GetFd(id uint64) (int, error)
	Destroy(id uint64) error
	ForceDestroy(id uint64) error
	Info(id uint64) (KcontInfo, error)

	// Size returns the number of live (reachable) objects; exposed for
	// tests and diagnostics only, not part of the wire protocol.
	Size() int
}
