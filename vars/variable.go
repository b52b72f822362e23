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

// Package vars is the VARS registry (spec.md §4.C): a name-addressed
// table of containers, each owning an ordered, append-only set of typed
// variables gated by a per-variable readers/writer lock.
//
// Grounded on state/containerDB.go (name-keyed map under one process-wide
// mutex) and state/container.go's intLock/extLock split, generalized from
// one lock per container to one lock per variable.
package vars

import (
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/nestybox/kconreg/domain"
)

// variable is one typed, bounded storage slot (spec.md §3, VARS variable).
type variable struct {
	name     string
	typeTag  domain.TypeTag
	capacity uint32
	storage  []byte

	rw deadlock.RWMutex // spec.md §3 "rw": many-readers-or-one-writer gate
}

var _ domain.VariableIface = (*variable)(nil)

func newVariable(desc domain.VarDesc) (*variable, error) {
	if !desc.Type.Valid() {
		return nil, domain.ErrInvalidArgument("variable %q: invalid type tag %d", desc.Name, desc.Type)
	}

	capacity := desc.Capacity
	if width, ok := desc.Type.NaturalWidth(); ok {
		// Fixed-width scalar types ignore the descriptor's capacity.
		capacity = uint32(width)
	} else if capacity == 0 {
		// TypeStr / TypeBlob: spec.md §9(c) treats the 8-byte
		// default as an interface contract, not an accident.
		capacity = domain.DefaultBlobCapacity
	}
	if (desc.Type == domain.TypeStr || desc.Type == domain.TypeBlob) && capacity == 0 {
		return nil, domain.ErrInvalidArgument("variable %q: string/blob capacity must be non-zero", desc.Name)
	}

	return &variable{
		name:     desc.Name,
		typeTag:  desc.Type,
		capacity: capacity,
		storage:  make([]byte, capacity),
	}, nil
}

func (v *variable) Name() string          { return v.name }
func (v *variable) Type() domain.TypeTag  { return v.typeTag }
func (v *variable) Capacity() uint32      { return v.capacity }

func (v *variable) Get(dst []byte) error {
	if dst == nil {
		return domain.ErrInvalidArgument("variable %q: nil destination buffer", v.name)
	}
	if uint32(len(dst)) < v.capacity {
		return domain.ErrInvalidArgument("variable %q: buffer of %d bytes smaller than capacity %d", v.name, len(dst), v.capacity)
	}

	v.rw.RLock()
	defer v.rw.RUnlock()
	copy(dst, v.storage)
	return nil
}

func (v *variable) Set(src []byte) error {
	if src == nil {
		return domain.ErrInvalidArgument("variable %q: nil source buffer", v.name)
	}
	if uint32(len(src)) < v.capacity {
		return domain.ErrInvalidArgument("variable %q: buffer of %d bytes smaller than capacity %d", v.name, len(src), v.capacity)
	}

	v.rw.Lock()
	defer v.rw.Unlock()
	copy(v.storage, src[:v.capacity])
	return nil
}
