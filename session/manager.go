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

package session

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/nestybox/kconreg/domain"
)

// manager owns the table of live sessions, one per open control
// connection (spec.md §4.D). Grounded on state/containerDB.go's idTable
// shape, keyed here by an opaque session id instead of a container id.
type manager struct {
	mu      sync.Mutex
	byID    map[uint64]*session
	nextID  uint64
	varsReg domain.VarsRegistryIface
}

var _ domain.SessionManagerIface = (*manager)(nil)

func NewManager(varsReg domain.VarsRegistryIface) domain.SessionManagerIface {
	return &manager{
		byID:    make(map[uint64]*session),
		varsReg: varsReg,
	}
}

func (m *manager) New(peer domain.PeerCred) (domain.SessionIface, error) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.mu.Unlock()

	// The session holds a pidfd for its peer until Close; nothing here
	// waits on it. Absence of pidfd support is not fatal to the session —
	// spec.md §4.D's teardown guarantee comes from the control server
	// closing the session when the connection's read loop ends.
	pidfd, err := unix.PidfdOpen(int(peer.Pid), 0)
	if err != nil {
		logrus.Debugf("session: pidfd_open(%d) failed, proceeding without it: %v", peer.Pid, err)
		pidfd = -1
	}

	s := &session{
		id:      id,
		peer:    peer,
		pidfd:   pidfd,
		varsReg: m.varsReg,
	}

	m.mu.Lock()
	m.byID[id] = s
	m.mu.Unlock()

	logrus.Debugf("session %d opened for pid=%d uid=%d gid=%d", id, peer.Pid, peer.Uid, peer.Gid)

	return s, nil
}

func (m *manager) Release(si domain.SessionIface) {
	s, ok := si.(*session)
	if !ok {
		return
	}

	m.mu.Lock()
	delete(m.byID, s.id)
	m.mu.Unlock()

	if err := s.Close(); err != nil {
		logrus.Warnf("session %d: error during teardown: %v", s.id, err)
	}
}

func (m *manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
