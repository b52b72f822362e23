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
	"github.com/sirupsen/logrus"

	"github.com/nestybox/kconreg/domain"
	"github.com/nestybox/sysbox-libs/formatter"
)

// registry is the process-wide name→container table (spec.md §4.C). Name
// counts are small (spec.md §3: "linear list is acceptable"), so a plain
// map guarded by one mutex — the direct generalization of
// state/containerDB.go's idTable — is preferred over a radix tree or
// anything more exotic.
type registry struct {
	mu deadlock.Mutex

	byName map[string]*container
	order  []string // insertion order, for a stable LIST_CONTAINERS
}

var _ domain.VarsRegistryIface = (*registry)(nil)

func NewRegistry() domain.VarsRegistryIface {
	return &registry{
		byName: make(map[string]*container),
	}
}

func (r *registry) Register(containerName string, descs []domain.VarDesc) error {
	if containerName == "" {
		return domain.ErrInvalidArgument("register: container name must not be empty")
	}
	if len(descs) > 0 {
		seen := make(map[string]struct{}, len(descs))
		for _, d := range descs {
			if d.Name == "" {
				return domain.ErrInvalidArgument("register %q: variable name must not be empty", containerName)
			}
			if _, dup := seen[d.Name]; dup {
				return domain.ErrInvalidArgument("register %q: duplicate variable name %q", containerName, d.Name)
			}
			seen[d.Name] = struct{}{}
		}
	}

	r.mu.Lock()

	if _, ok := r.byName[containerName]; ok {
		r.mu.Unlock()
		return domain.ErrAlreadyExists("container %q already registered", containerName)
	}

	// Fully build the container — every variable allocated and
	// initialized — before linking it into the table (spec.md §4.C).
	c, err := newContainer(containerName, descs)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	r.byName[containerName] = c
	r.order = append(r.order, containerName)

	r.mu.Unlock()

	logrus.Debugf("registered container %s with %d variables", formatter.ContainerID{containerName}, len(descs))
	return nil
}

func (r *registry) OpenContainer(containerName string) (domain.ContainerIface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byName[containerName]
	if !ok {
		return nil, domain.ErrNotFound("container %q not found", containerName)
	}

	atomic.AddInt64(&c.globalRef, 1)
	return c, nil
}

func (r *registry) CloseContainer(containerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byName[containerName]
	if !ok {
		return domain.ErrNotFound("container %q not found", containerName)
	}

	if atomic.AddInt64(&c.globalRef, -1) == 0 {
		delete(r.byName, containerName)
		r.removeFromOrderLocked(containerName)
		logrus.Debugf("unregistered container %s (global_ref reached zero)", formatter.ContainerID{containerName})
	}
	return nil
}

func (r *registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

func (r *registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}

func (r *registry) removeFromOrderLocked(name string) {
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
