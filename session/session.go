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

// Package session is the client session state (spec.md §4.D): the
// per-open-control-connection binding to at most one VARS container.
// KCONT calls are stateless and never touch a session.
//
// Grounded on state/container.go's initPidFd field and
// state/containerDB.go's unix.Close(int(cntr.InitPidFd())) teardown call;
// the teacher's private github.com/nestybox/sysbox-libs/pidfd wrapper is
// replaced with golang.org/x/sys/unix.PidfdOpen directly (see DESIGN.md).
package session

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/nestybox/kconreg/domain"
)

type session struct {
	id   uint64
	peer domain.PeerCred

	pidfd int // -1 if PidfdOpen failed or was never attempted

	mu      sync.Mutex
	bound   domain.ContainerIface
	varsReg domain.VarsRegistryIface

	closed bool
}

var _ domain.SessionIface = (*session)(nil)

func (s *session) ID() uint64            { return s.id }
func (s *session) Peer() domain.PeerCred { return s.peer }

func (s *session) Bind(c domain.ContainerIface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bound != nil {
		return domain.ErrInvalidArgument("session %d: already bound to container %q", s.id, s.bound.Name())
	}
	s.bound = c
	return nil
}

func (s *session) Bound() domain.ContainerIface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

func (s *session) Unbind() error {
	s.mu.Lock()
	c := s.bound
	if c == nil {
		s.mu.Unlock()
		return domain.ErrInvalidArgument("session %d: not bound to any container", s.id)
	}
	s.bound = nil
	s.mu.Unlock()

	return s.varsReg.CloseContainer(c.Name())
}

// Close tears the session down exactly once: it drops any outstanding
// VARS binding as if CLOSE_CONTAINER had been called — so that an
// abnormal client exit never leaks global_ref (spec.md §4.D) — then
// releases the peer's pidfd.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	c := s.bound
	s.bound = nil
	s.mu.Unlock()

	if c != nil {
		if err := s.varsReg.CloseContainer(c.Name()); err != nil {
			logrus.Warnf("session %d: error closing bound container %q during teardown: %v", s.id, c.Name(), err)
		}
	}

	if s.pidfd >= 0 {
		unix.Close(s.pidfd)
	}
	return nil
}
