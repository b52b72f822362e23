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
	"io"
	"net"
	"os"

	"github.com/sirupsen/logrus"
	grpcCodes "google.golang.org/grpc/codes"
	"golang.org/x/sys/unix"

	"github.com/nestybox/kconreg/ctlproto"
	"github.com/nestybox/kconreg/domain"
)

// Server listens on the AF_UNIX control socket (the substitute for a /dev
// ioctl endpoint, SPEC_FULL.md §1), accepting one connection per client and
// serving it on its own goroutine until EOF or error — mirroring
// ipc.ipcService's Setup/Init split, generalized from a private gRPC
// transport to a plain net.Listener.
type Server struct {
	magic    ctlproto.Magic
	path     string
	listener *net.UnixListener

	dispatch domain.OpDispatchServiceIface
	sessions domain.SessionManagerIface
}

// NewServer builds a control server for one magic (KCONT or VARS); each
// runs its own listener, exactly as spec.md's two registries are
// independent devices.
func NewServer(magic ctlproto.Magic, socketPath string, dispatch domain.OpDispatchServiceIface, sessions domain.SessionManagerIface) *Server {
	return &Server{
		magic:    magic,
		path:     socketPath,
		dispatch: dispatch,
		sessions: sessions,
	}
}

// Listen creates the control socket, replacing any stale one left behind by
// a prior, uncleanly-terminated run.
func (s *Server) Listen() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}

	addr, err := net.ResolveUnixAddr("unix", s.path)
	if err != nil {
		return err
	}

	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		return err
	}
	s.listener = l

	logrus.Infof("control channel %q listening on %s", string(s.magic), s.path)
	return nil
}

// Serve accepts connections until the listener is closed. It never returns
// a non-nil error on ordinary shutdown (listener closed).
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			return err
		}
		go s.serveConn(conn)
	}
}

func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) serveConn(conn *net.UnixConn) {
	defer conn.Close()

	peer, err := peerCredOf(conn)
	if err != nil {
		logrus.Warnf("control channel %q: rejecting connection, SO_PEERCRED failed: %v", string(s.magic), err)
		return
	}

	sess, err := s.sessions.New(peer)
	if err != nil {
		logrus.Warnf("control channel %q: session setup failed for pid=%d: %v", string(s.magic), peer.Pid, err)
		return
	}
	defer s.sessions.Release(sess)

	logrus.Debugf("control channel %q: session %d opened for pid=%d", string(s.magic), sess.ID(), peer.Pid)

	for {
		req, err := ctlproto.ReadRequest(conn)
		if err != nil {
			if err != io.EOF {
				logrus.Debugf("control channel %q: session %d read error: %v", string(s.magic), sess.ID(), err)
			}
			return
		}

		if req.Magic != s.magic {
			writeFault(conn, "request magic %q does not match this control channel", string(req.Magic))
			continue
		}

		s.handle(conn, sess, req)
	}
}

// handle decodes one request, dispatches it, and writes the reply. Every
// branch produces exactly one response frame, even on a decode or dispatch
// failure — the control channel always gives a well-formed reply.
func (s *Server) handle(conn *net.UnixConn, sess domain.SessionIface, req ctlproto.Request) {
	name, ok := ctlproto.OpName(req.Magic, req.Op)
	if !ok {
		writeStatus(conn, domain.WireStatus(grpcCodes.Unimplemented), nil)
		return
	}

	handler, ok := s.dispatch.Lookup(name)
	if !ok {
		writeStatus(conn, domain.WireStatus(grpcCodes.Unimplemented), nil)
		return
	}

	opReq := &domain.OpRequest{Session: sess}
	if err := decodeBody(name, req, opReq); err != nil {
		writeFault(conn, "%v", err)
		return
	}

	result, err := handler.Invoke(opReq)
	if err != nil {
		writeStatus(conn, domain.WireStatus(domain.Code(err)), nil)
		return
	}

	s.writeResult(conn, name, result)
}

// writeResult encodes a handler's result the way each op's response shape
// demands: a bare status for void ops, an out-of-band fd for GET_FD, a
// fixed record for INFO, or a payload for GET/LIST_CONTAINERS.
func (s *Server) writeResult(conn *net.UnixConn, opName string, result interface{}) {
	switch opName {
	case "kcont.get_fd":
		fd := result.(int)
		if err := ctlproto.SendFD(conn, ctlproto.Response{Status: 0}, fd); err != nil {
			logrus.Warnf("control channel: sending fd for get_fd: %v", err)
		}
		unix.Close(fd) // server's own copy; the peer now owns its duplicate
		return

	case "kcont.info":
		info := result.(domain.KcontInfo)
		body := ctlproto.EncodeInfoRec(ctlproto.InfoRec{
			Size:       info.Size,
			UserRefs:   info.UserRefs,
			KernelRefs: info.KernelRefs,
		})
		writeStatus(conn, 0, body)
		return

	case "vars.get":
		payload := result.([]byte)
		ctlproto.WriteResponse(conn, ctlproto.Response{Status: 0, Payload: payload})
		return

	case "vars.list_containers":
		names := result.([]string)
		payload, truncated := ctlproto.EncodeListContainers(names)
		status := byte(0)
		if truncated {
			status |= domain.WireStatusTruncatedBit
		}
		ctlproto.WriteResponse(conn, ctlproto.Response{Status: status, Payload: payload})
		return

	default:
		writeStatus(conn, 0, nil)
	}
}

func writeStatus(conn *net.UnixConn, status byte, body []byte) {
	if err := ctlproto.WriteResponse(conn, ctlproto.Response{Status: status, Body: body}); err != nil {
		logrus.Warnf("control channel: writing response: %v", err)
	}
}

func writeFault(conn *net.UnixConn, format string, args ...interface{}) {
	logrus.Debugf("control channel: fault: "+format, args...)
	writeStatus(conn, domain.WireStatus(grpcCodes.DataLoss), nil)
}
