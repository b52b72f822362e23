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

// PeerCred is the credential of the process on the other end of a control
// connection, captured via SO_PEERCRED at accept time. Trimmed from the
// teacher's domain.ProcessIface down to the fields that still have meaning
// once namespace/procfs emulation is out of scope for this spec.
type PeerCred struct {
	Pid uint32
	Uid uint32
	Gid uint32
}

// SessionIface is the per-open-connection state described in spec.md §4.D:
// at most one VARS binding, stateless for KCONT.
type SessionIface interface {
	ID() uint64
	Peer() PeerCred

	// Bind associates the session with a VARS container. Fails
	// InvalidArgument if already bound.
	Bind(c ContainerIface) error

	// Bound returns the currently bound container, or nil if unbound.
	Bound() ContainerIface

	// Unbind releases the current binding (CLOSE_CONTAINER semantics or
	// abnormal-exit cleanup). Fails InvalidArgument if not bound.
	Unbind() error

	// Close tears the session down: drops any binding as if
	// CLOSE_CONTAINER had been called, then releases the peer's pidfd.
	Close() error
}

// SessionManagerIface owns the table of live sessions (one per open
// control connection) and guarantees Close() runs exactly once per
// session, whether the client exits cleanly or abnormally.
type SessionManagerIface interface {
	// New establishes a session for a newly-accepted connection, opening
	// a pidfd against peer.Pid that the session holds until Close.
	New(peer PeerCred) (SessionIface, error)

	// Release tears down and forgets the given session.
	Release(s SessionIface)

	Size() int
}
