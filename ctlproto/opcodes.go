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

// Package ctlproto is the control-channel codec (spec.md §4.A / §6):
// fixed-layout request/response records, ioctl-equivalent opcodes, and the
// framing used to carry them over the AF_UNIX substitute for a /dev ioctl
// endpoint (see SPEC_FULL.md §1).
package ctlproto

// Magic identifies which service a frame belongs to, mirroring the ioctl
// magic number of spec.md §6 ('K' / 'V').
type Magic byte

const (
	MagicKcont Magic = 'K'
	MagicVars  Magic = 'V'
)

// KCONT opcodes (magic MagicKcont).
const (
	OpKcontGetFd        byte = 1
	OpKcontCreate        byte = 2
	OpKcontDestroy       byte = 3
	OpKcontInfo          byte = 4
	OpKcontForceDestroy  byte = 5
)

// VARS opcodes (magic MagicVars).
const (
	OpVarsRegister        byte = 1
	OpVarsSet             byte = 2
	OpVarsGet              byte = 3
	OpVarsOpenContainer    byte = 4
	OpVarsCloseContainer   byte = 5
	OpVarsListContainers   byte = 6
)

// Field bounds fixed by spec.md §6. Reimplementations MUST preserve these
// because the wire record layout depends on them (spec.md §9).
const (
	ContainerNameMax = 256
	VarNameMax       = 64
	MaxVarsPerContainer = 128
	ListContainersBufMax = 4096
)

// OpName maps (magic, opcode) to the dispatch-table key used by
// domain.OpHandlerIface / ctl's radix-tree dispatcher.
func OpName(m Magic, op byte) (string, bool) {
	switch m {
	case MagicKcont:
		switch op {
		case OpKcontGetFd:
			return "kcont.get_fd", true
		case OpKcontCreate:
			return "kcont.create", true
		case OpKcontDestroy:
			return "kcont.destroy", true
		case OpKcontInfo:
			return "kcont.info", true
		case OpKcontForceDestroy:
			return "kcont.force_destroy", true
		}
	case MagicVars:
		switch op {
		case OpVarsRegister:
			return "vars.register", true
		case OpVarsSet:
			return "vars.set", true
		case OpVarsGet:
			return "vars.get", true
		case OpVarsOpenContainer:
			return "vars.open_container", true
		case OpVarsCloseContainer:
			return "vars.close_container", true
		case OpVarsListContainers:
			return "vars.list_containers", true
		}
	}
	return "", false
}
