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

package ctl

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/nestybox/kconreg/ctlproto"
	"github.com/nestybox/kconreg/domain"
)

// decodeBody fills opReq.Body (and, for SET, opReq.Payload) from the raw
// wire frame, dispatching on the op name the same way ctlproto.OpName
// resolved it. This is the one place frame bytes turn into the native Go
// values every handler in ctl/implementations expects.
func decodeBody(opName string, req ctlproto.Request, opReq *domain.OpRequest) error {
	switch opName {
	case "kcont.create":
		r, err := ctlproto.DecodeCreateReq(req.Body)
		if err != nil {
			return err
		}
		opReq.Body = r

	case "kcont.get_fd", "kcont.destroy", "kcont.force_destroy", "kcont.info":
		id, err := ctlproto.DecodeU64(req.Body)
		if err != nil {
			return err
		}
		opReq.Body = id

	case "vars.register":
		r, err := ctlproto.DecodeRegisterReq(req.Body)
		if err != nil {
			return err
		}
		opReq.Body = r

	case "vars.open_container":
		name, err := ctlproto.DecodeContainerName(req.Body)
		if err != nil {
			return err
		}
		opReq.Body = name

	case "vars.close_container", "vars.list_containers":
		// no argument

	case "vars.get", "vars.set":
		r, err := ctlproto.DecodeVarAccess(req.Body)
		if err != nil {
			return err
		}
		opReq.Body = r
		opReq.Payload = req.Payload

	default:
		return fmt.Errorf("unrecognized op %q", opName)
	}
	return nil
}

// peerCredOf captures the credential of the process on the other end of
// conn via SO_PEERCRED, the Go-native substitute for the teacher's
// domain.ProcessIface construction from a procfs walk (see DESIGN.md).
func peerCredOf(conn *net.UnixConn) (domain.PeerCred, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return domain.PeerCred{}, err
	}

	var ucred *unix.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return domain.PeerCred{}, err
	}
	if sockErr != nil {
		return domain.PeerCred{}, sockErr
	}

	return domain.PeerCred{
		Pid: uint32(ucred.Pid),
		Uid: ucred.Uid,
		Gid: ucred.Gid,
	}, nil
}

func isClosedErr(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}
