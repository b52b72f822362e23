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

// OpRequest is what the control-channel server hands to an OpHandler once
// it has decoded a wire request record (ctlproto) and looked up (or
// created) the calling session.
type OpRequest struct {
	Session SessionIface
	// Body is the decoded, opcode-specific request record (e.g.
	// ctlproto.CreateReq, ctlproto.VarAccess, or a bare uint64/string for
	// the simpler ops). Handlers type-assert it.
	Body interface{}
	// Payload is the trailing raw byte payload carried alongside Body —
	// the SET value being written in, or unused on every other op.
	Payload []byte
}

// OpHandlerIface is one ioctl-equivalent operation (spec.md §6). Grounded
// on domain.HandlerIface in the teacher, generalized from a filesystem
// node handler to an opcode handler: every handler in ctl/implementations
// is a package-level singleton implementing this, registered into an
// OpDispatchServiceIface at Setup.
type OpHandlerIface interface {
	// Name is the dispatch key, e.g. "kcont.create", "vars.get".
	Name() string

	// Bind injects the registries the handler needs, mirroring
	// domain.HandlerIface's SetService(hs) — called once by the daemon
	// at startup, before the handler is passed to the dispatch service's
	// Setup and before it ever serves a request.
	Bind(kcontReg KcontRegistryIface, varsReg VarsRegistryIface, regionFactory RegionFactoryIface)

	// Invoke performs the operation and returns the opcode-specific
	// response body (or nil for void operations) and an error carrying a
	// grpc canonical code per domain/errors.go.
	Invoke(req *OpRequest) (interface{}, error)
}

// OpDispatchServiceIface is the radix-tree-backed registry of OpHandlers
// (grounded on domain.HandlerServiceIface / handler/handlerDB.go).
type OpDispatchServiceIface interface {
	Setup(handlers []OpHandlerIface)
	RegisterHandler(h OpHandlerIface) error
	Lookup(name string) (OpHandlerIface, bool)
}
