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

package vars

import (
	"sync/atomic"

	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/nestybox/kconreg/domain"
)

// container is a named, ordered set of variables (spec.md §3, VARS
// container). The variable slice is append-only for the container's
// lifetime and only ever written during construction (REGISTER fully
// builds it before linkage), so Lookup after publication never needs the
// list mutex to race a structural mutation — exactly the property spec.md
// §4.C's locking discipline relies on ("the list is append-only while the
// container lives").
type container struct {
	name string

	listMu    deadlock.Mutex // spec.md §3: list_mutex
	variables []*variable
	byName    map[string]*variable

	globalRef int64 // spec.md §3: global_ref, touched only under the registry lock
}

var _ domain.ContainerIface = (*container)(nil)

func newContainer(name string, descs []domain.VarDesc) (*container, error) {
	c := &container{
		name:   name,
		byName: make(map[string]*variable, len(descs)),
	}

	for _, d := range descs {
		if _, dup := c.byName[d.Name]; dup {
			return nil, domain.ErrInvalidArgument("container %q: duplicate variable name %q", name, d.Name)
		}
		v, err := newVariable(d)
		if err != nil {
			return nil, err
		}
		c.variables = append(c.variables, v)
		c.byName[d.Name] = v
	}

	return c, nil
}

func (c *container) Name() string { return c.name }

func (c *container) Variables() []string {
	c.listMu.Lock()
	defer c.listMu.Unlock()

	names := make([]string, len(c.variables))
	for i, v := range c.variables {
		names[i] = v.name
	}
	return names
}

// Lookup walks the variable list under the list mutex, then returns the
// variable pointer with the mutex released (spec.md §4.C: "once a
// variable pointer has been captured the list mutex is released and the
// variable's own gate is taken"). The pointer stays valid afterward
// because the list never shrinks and the container itself cannot be
// freed while any session holds it bound (global_ref >= 1).
func (c *container) Lookup(varName string) (domain.VariableIface, bool) {
	c.listMu.Lock()
	v, ok := c.byName[varName]
	c.listMu.Unlock()

	if !ok {
		return nil, false
	}
	return v, true
}

func (c *container) GlobalRef() int {
	return int(atomic.LoadInt64(&c.globalRef))
}
