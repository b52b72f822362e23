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
	"bytes"
	"encoding/binary"
	"fmt"
)

// --- on-the-wire (fixed-layout, packed) records, spec.md §6 -----------

// createReqWire is create_req { id:u64, size:u64, flags:u64 }.
type createReqWire struct {
	Id    uint64
	Size  uint64
	Flags uint64
}

// infoRecWire is info_rec { id:u64, size:u64, user_refs:u64, kernel_refs:u64 }.
type infoRecWire struct {
	Id         uint64
	Size       uint64
	UserRefs   uint64
	KernelRefs uint64
}

// varDescWire is var_desc { name[64], type_tag:u8, capacity:u32, _:3 }.
type varDescWire struct {
	Name     [VarNameMax]byte
	TypeTag  uint8
	Capacity uint32
	Reserved [3]byte
}

// registerReqWire is register_req { container_name[256], var_count:u32,
// _:4, vars[128] }.
type registerReqWire struct {
	ContainerName [ContainerNameMax]byte
	VarCount      uint32
	Reserved      [4]byte
	Vars          [MaxVarsPerContainer]varDescWire
}

// varAccessWire is var_access { container_name[256], var_name[64],
// buf_size:u32, _:4, user_buf:uptr }. user_buf has no meaning over the
// AF_UNIX transport (there is no "caller's address space" to fault into);
// it MUST be zero on the wire and the variable bytes instead travel as a
// trailing payload on the same frame (see frame.go) — the one deliberate,
// documented departure from a literal address-space-sharing ioctl, forced
// by there being no cgo/kernel boundary to copy_from_user across.
type varAccessWire struct {
	ContainerName [ContainerNameMax]byte
	VarName       [VarNameMax]byte
	BufSize       uint32
	Reserved      [4]byte
	UserBuf       uint64
}

func putString(dst []byte, s string) error {
	if len(s) >= len(dst) {
		return fmt.Errorf("string %q exceeds wire field width %d", s, len(dst)-1)
	}
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, s)
	return nil
}

func getString(src []byte) (string, error) {
	n := bytes.IndexByte(src, 0)
	if n < 0 {
		return "", fmt.Errorf("wire string field not NUL-terminated")
	}
	return string(src[:n]), nil
}

// --- decoded (Go-native) request/response bodies -----------------------

type CreateReq struct {
	ID    uint64
	Size  uint64
	Flags uint64
}

type InfoRec struct {
	ID         uint64
	Size       uint64
	UserRefs   uint64
	KernelRefs uint64
}

type VarDesc struct {
	Name     string
	TypeTag  uint8
	Capacity uint32
}

type RegisterReq struct {
	ContainerName string
	Vars          []VarDesc
}

type VarAccess struct {
	ContainerName string
	VarName       string
	BufSize       uint32
}

// --- Encode/Decode. Every function here copies its whole record as one
// atomic unit (spec.md §4.A): a short or malformed buffer is reported as a
// fault-class error and no partial record is ever handed to a caller. ---

func EncodeCreateReq(r CreateReq) []byte {
	w := createReqWire{Id: r.ID, Size: r.Size, Flags: r.Flags}
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, w)
	return buf.Bytes()
}

func DecodeCreateReq(b []byte) (CreateReq, error) {
	var w createReqWire
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &w); err != nil {
		return CreateReq{}, fmt.Errorf("fault decoding create_req: %w", err)
	}
	return CreateReq{ID: w.Id, Size: w.Size, Flags: w.Flags}, nil
}

func EncodeU64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func DecodeU64(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, fmt.Errorf("fault decoding u64: short buffer (%d bytes)", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

func EncodeInfoRec(r InfoRec) []byte {
	w := infoRecWire{Id: r.ID, Size: r.Size, UserRefs: r.UserRefs, KernelRefs: r.KernelRefs}
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, w)
	return buf.Bytes()
}

func DecodeInfoRec(b []byte) (InfoRec, error) {
	var w infoRecWire
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &w); err != nil {
		return InfoRec{}, fmt.Errorf("fault decoding info_rec: %w", err)
	}
	return InfoRec{ID: w.Id, Size: w.Size, UserRefs: w.UserRefs, KernelRefs: w.KernelRefs}, nil
}

func EncodeRegisterReq(r RegisterReq) ([]byte, error) {
	if len(r.Vars) > MaxVarsPerContainer {
		return nil, fmt.Errorf("invalid-argument: %d vars exceeds max %d", len(r.Vars), MaxVarsPerContainer)
	}
	var w registerReqWire
	if err := putString(w.ContainerName[:], r.ContainerName); err != nil {
		return nil, fmt.Errorf("invalid-argument: %w", err)
	}
	w.VarCount = uint32(len(r.Vars))
	for i, v := range r.Vars {
		if err := putString(w.Vars[i].Name[:], v.Name); err != nil {
			return nil, fmt.Errorf("invalid-argument: %w", err)
		}
		w.Vars[i].TypeTag = v.TypeTag
		w.Vars[i].Capacity = v.Capacity
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeRegisterReq(b []byte) (RegisterReq, error) {
	var w registerReqWire
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &w); err != nil {
		return RegisterReq{}, fmt.Errorf("fault decoding register_req: %w", err)
	}
	if w.VarCount > MaxVarsPerContainer {
		return RegisterReq{}, fmt.Errorf("invalid-argument: var_count %d exceeds max %d", w.VarCount, MaxVarsPerContainer)
	}
	if w.Reserved != [4]byte{} {
		return RegisterReq{}, fmt.Errorf("invalid-argument: reserved field must be zero")
	}
	name, err := getString(w.ContainerName[:])
	if err != nil {
		return RegisterReq{}, fmt.Errorf("invalid-argument: %w", err)
	}
	vars := make([]VarDesc, 0, w.VarCount)
	for i := uint32(0); i < w.VarCount; i++ {
		vw := w.Vars[i]
		if vw.Reserved != [3]byte{} {
			return RegisterReq{}, fmt.Errorf("invalid-argument: reserved field must be zero")
		}
		vname, err := getString(vw.Name[:])
		if err != nil {
			return RegisterReq{}, fmt.Errorf("invalid-argument: %w", err)
		}
		vars = append(vars, VarDesc{Name: vname, TypeTag: vw.TypeTag, Capacity: vw.Capacity})
	}
	return RegisterReq{ContainerName: name, Vars: vars}, nil
}

func EncodeVarAccess(r VarAccess) ([]byte, error) {
	var w varAccessWire
	if err := putString(w.ContainerName[:], r.ContainerName); err != nil {
		return nil, fmt.Errorf("invalid-argument: %w", err)
	}
	if err := putString(w.VarName[:], r.VarName); err != nil {
		return nil, fmt.Errorf("invalid-argument: %w", err)
	}
	w.BufSize = r.BufSize
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeVarAccess(b []byte) (VarAccess, error) {
	var w varAccessWire
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &w); err != nil {
		return VarAccess{}, fmt.Errorf("fault decoding var_access: %w", err)
	}
	if w.Reserved != [4]byte{} || w.UserBuf != 0 {
		return VarAccess{}, fmt.Errorf("invalid-argument: reserved/user_buf fields must be zero on this transport")
	}
	cname, err := getString(w.ContainerName[:])
	if err != nil {
		return VarAccess{}, fmt.Errorf("invalid-argument: %w", err)
	}
	vname, err := getString(w.VarName[:])
	if err != nil {
		return VarAccess{}, fmt.Errorf("invalid-argument: %w", err)
	}
	return VarAccess{ContainerName: cname, VarName: vname, BufSize: w.BufSize}, nil
}

// EncodeContainerName encodes a bare name[256] record, used by
// OPEN_CONTAINER.
func EncodeContainerName(name string) ([]byte, error) {
	var b [ContainerNameMax]byte
	if err := putString(b[:], name); err != nil {
		return nil, fmt.Errorf("invalid-argument: %w", err)
	}
	return b[:], nil
}

func DecodeContainerName(b []byte) (string, error) {
	if len(b) < ContainerNameMax {
		return "", fmt.Errorf("fault decoding container name: short buffer")
	}
	name, err := getString(b[:ContainerNameMax])
	if err != nil {
		return "", fmt.Errorf("invalid-argument: %w", err)
	}
	return name, nil
}

// EncodeListContainers fills a LIST_CONTAINERS out-buffer with as many
// whole, newline-terminated names as fit in ListContainersBufMax bytes —
// never truncating a name mid-string (SPEC_FULL.md §9(a), "truncate and
// report"). truncated is true if one or more names were dropped to make
// it fit.
func EncodeListContainers(names []string) (buf []byte, truncated bool) {
	buf = make([]byte, 0, ListContainersBufMax)
	for _, n := range names {
		entry := append([]byte(n), '\n')
		if len(buf)+len(entry) > ListContainersBufMax {
			return buf, true
		}
		buf = append(buf, entry...)
	}
	return buf, false
}
