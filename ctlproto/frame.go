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

package ctlproto

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// Request is one client->server frame: a magic/opcode pair, the
// opcode-specific fixed body record, and (for SET) a trailing payload of
// raw variable bytes that would, on a real ioctl transport, have been
// copied in directly from the caller's buffer.
type Request struct {
	Magic   Magic
	Op      byte
	Body    []byte
	Payload []byte
}

// Response is one server->client frame: a one-byte wire status (domain.
// WireStatus) and the opcode-specific response record, plus (for GET and
// LIST_CONTAINERS) a trailing payload.
type Response struct {
	Status  byte
	Body    []byte
	Payload []byte
}

const maxFrameLen = 1 << 20 // 1 MiB; generous relative to the 4096-byte LIST_CONTAINERS cap

// WriteRequest marshals req onto w as one frame: the header, body and
// payload go out as consecutive writes.
func WriteRequest(w io.Writer, req Request) error {
	hdr := make([]byte, 10)
	hdr[0] = byte(req.Magic)
	hdr[1] = req.Op
	binary.LittleEndian.PutUint32(hdr[2:6], uint32(len(req.Body)))
	binary.LittleEndian.PutUint32(hdr[6:10], uint32(len(req.Payload)))
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("fault writing request header: %w", err)
	}
	if _, err := w.Write(req.Body); err != nil {
		return fmt.Errorf("fault writing request body: %w", err)
	}
	if len(req.Payload) > 0 {
		if _, err := w.Write(req.Payload); err != nil {
			return fmt.Errorf("fault writing request payload: %w", err)
		}
	}
	return nil
}

// ReadRequest reads one frame written by WriteRequest. A short or
// oversized read is reported as a fault error without any partial frame
// being handed back (spec.md §4.A).
func ReadRequest(r io.Reader) (Request, error) {
	hdr := make([]byte, 10)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Request{}, fmt.Errorf("fault reading request header: %w", err)
	}
	bodyLen := binary.LittleEndian.Uint32(hdr[2:6])
	payloadLen := binary.LittleEndian.Uint32(hdr[6:10])
	if bodyLen > maxFrameLen || payloadLen > maxFrameLen {
		return Request{}, fmt.Errorf("fault reading request: frame too large")
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Request{}, fmt.Errorf("fault reading request body: %w", err)
	}
	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return Request{}, fmt.Errorf("fault reading request payload: %w", err)
		}
	}
	return Request{Magic: Magic(hdr[0]), Op: hdr[1], Body: body, Payload: payload}, nil
}

// WriteResponse marshals resp onto w as one frame: the header, body and
// payload go out as consecutive writes.
func WriteResponse(w io.Writer, resp Response) error {
	hdr := make([]byte, 9)
	hdr[0] = resp.Status
	binary.LittleEndian.PutUint32(hdr[1:5], uint32(len(resp.Body)))
	binary.LittleEndian.PutUint32(hdr[5:9], uint32(len(resp.Payload)))
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("fault writing response header: %w", err)
	}
	if _, err := w.Write(resp.Body); err != nil {
		return fmt.Errorf("fault writing response body: %w", err)
	}
	if len(resp.Payload) > 0 {
		if _, err := w.Write(resp.Payload); err != nil {
			return fmt.Errorf("fault writing response payload: %w", err)
		}
	}
	return nil
}

func ReadResponse(r io.Reader) (Response, error) {
	hdr := make([]byte, 9)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Response{}, fmt.Errorf("fault reading response header: %w", err)
	}
	bodyLen := binary.LittleEndian.Uint32(hdr[1:5])
	payloadLen := binary.LittleEndian.Uint32(hdr[5:9])
	if bodyLen > maxFrameLen || payloadLen > maxFrameLen {
		return Response{}, fmt.Errorf("fault reading response: frame too large")
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Response{}, fmt.Errorf("fault reading response body: %w", err)
	}
	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return Response{}, fmt.Errorf("fault reading response payload: %w", err)
		}
	}
	return Response{Status: hdr[0], Body: body, Payload: payload}, nil
}

// SendFD writes resp on conn, passing fd as SCM_RIGHTS ancillary data. This
// is the idiomatic Go/Unix substitute for a kernel ioctl handler installing
// a new descriptor directly in the caller's fd table (SPEC_FULL.md §1); the
// fd value in resp.Body (if any) is meaningless to the peer on its own —
// the peer must recv the ancillary data to obtain a locally-valid fd.
func SendFD(conn *net.UnixConn, resp Response, fd int) error {
	hdr := make([]byte, 9)
	hdr[0] = resp.Status
	binary.LittleEndian.PutUint32(hdr[1:5], uint32(len(resp.Body)))
	binary.LittleEndian.PutUint32(hdr[5:9], uint32(len(resp.Payload)))
	buf := append(hdr, resp.Body...)
	buf = append(buf, resp.Payload...)
	rights := unix.UnixRights(fd)
	_, _, err := conn.WriteMsgUnix(buf, rights, nil)
	if err != nil {
		return fmt.Errorf("fault sending fd: %w", err)
	}
	return nil
}

// RecvFD reads one response frame from conn, along with any SCM_RIGHTS fd
// the server attached to it (GET_FD's success path). fd is -1 if none was
// attached.
func RecvFD(conn *net.UnixConn) (Response, int, error) {
	buf := make([]byte, maxFrameLen)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return Response{}, -1, fmt.Errorf("fault receiving response: %w", err)
	}
	if n < 9 {
		return Response{}, -1, fmt.Errorf("fault receiving response: short header")
	}
	bodyLen := binary.LittleEndian.Uint32(buf[1:5])
	payloadLen := binary.LittleEndian.Uint32(buf[5:9])
	if uint32(n) < 9+bodyLen+payloadLen {
		return Response{}, -1, fmt.Errorf("fault receiving response: short body")
	}
	resp := Response{
		Status:  buf[0],
		Body:    append([]byte(nil), buf[9:9+bodyLen]...),
		Payload: append([]byte(nil), buf[9+bodyLen:9+bodyLen+payloadLen]...),
	}
	fd := -1
	if oobn > 0 {
		cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err == nil && len(cmsgs) > 0 {
			fds, err := unix.ParseUnixRights(&cmsgs[0])
			if err == nil && len(fds) > 0 {
				fd = fds[0]
			}
		}
	}
	return resp, fd, nil
}
