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

// RegionIface is a page-aligned, anonymous, shared-memory-mappable object
// (spec.md §4.E / Glossary "Region"). A region outlives any single
// descriptor handed out against it; its own descriptor is released only
// by Close.
type RegionIface interface {
	// Size is the page-rounded byte length of the region.
	Size() uint64

	// Dup installs a fresh, close-on-exec descriptor referencing the
	// region, suitable for handing to a caller (directly, or via
	// SCM_RIGHTS across a control connection). It does not itself touch
	// any refcount — callers account for the handed-out descriptor
	// themselves, as KCONT's GetFd does.
	Dup() (int, error)

	// Close releases the factory's own reference to the region. Mappings
	// already taken by callers remain valid; the underlying pages are
	// only actually freed once every descriptor referencing them,
	// including this one, has been closed by the kernel.
	Close() error
}

// RegionFactoryIface creates page-backed shared regions (spec.md §4.E).
type RegionFactoryIface interface {
	// New creates a new region sized to at least size bytes, rounded up
	// to the host page size.
	New(name string, size uint64) (RegionIface, error)
}
