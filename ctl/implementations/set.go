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

package implementations

import (
	"github.com/nestybox/kconreg/ctlproto"
	"github.com/nestybox/kconreg/domain"
)

// SetHandler implements vars.set. The bytes being written travel as the
// frame's trailing payload (req.Payload) rather than in Body — there is no
// caller address space to copy_from_user across on this transport, so the
// payload is the substitute (see ctlproto.varAccessWire's doc comment).
type SetHandler struct {
	OpName string
}

func (h *SetHandler) Name() string { return h.OpName }

func (h *SetHandler) Bind(kcontReg domain.KcontRegistryIface, varsReg domain.VarsRegistryIface, regionFactory domain.RegionFactoryIface) {
}

func (h *SetHandler) Invoke(req *domain.OpRequest) (interface{}, error) {
	body, ok := req.Body.(ctlproto.VarAccess)
	if !ok {
		return nil, domain.ErrFault("set: unexpected body type %T", req.Body)
	}

	c := req.Session.Bound()
	if c == nil {
		return nil, domain.ErrNotFound("set %q: session is not bound to any container", body.VarName)
	}
	if body.ContainerName != "" && body.ContainerName != c.Name() {
		return nil, domain.ErrInvalidArgument("set %q: container name %q does not match bound container %q", body.VarName, body.ContainerName, c.Name())
	}

	v, ok := c.Lookup(body.VarName)
	if !ok {
		return nil, domain.ErrNotFound("set: variable %q not found in container %q", body.VarName, c.Name())
	}

	if uint32(len(req.Payload)) < v.Capacity() || body.BufSize < v.Capacity() {
		return nil, domain.ErrInvalidArgument("set %q: buffer of %d bytes smaller than capacity %d", body.VarName, len(req.Payload), v.Capacity())
	}

	return nil, v.Set(req.Payload)
}

var Set_Handler = &SetHandler{OpName: "vars.set"}
