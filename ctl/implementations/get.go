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

// GetHandler implements vars.get. Structural lookup happens under the
// container's list lock (vars.container.Lookup); the bytes are then copied
// under the variable's own shared gate, exactly as spec.md §4.C's locking
// discipline requires — the registry is never involved in this call at
// all, only the binding captured at OPEN_CONTAINER time.
type GetHandler struct {
	OpName string
}

func (h *GetHandler) Name() string { return h.OpName }

func (h *GetHandler) Bind(kcontReg domain.KcontRegistryIface, varsReg domain.VarsRegistryIface, regionFactory domain.RegionFactoryIface) {
}

func (h *GetHandler) Invoke(req *domain.OpRequest) (interface{}, error) {
	body, ok := req.Body.(ctlproto.VarAccess)
	if !ok {
		return nil, domain.ErrFault("get: unexpected body type %T", req.Body)
	}

	c := req.Session.Bound()
	if c == nil {
		return nil, domain.ErrNotFound("get %q: session is not bound to any container", body.VarName)
	}
	if body.ContainerName != "" && body.ContainerName != c.Name() {
		return nil, domain.ErrInvalidArgument("get %q: container name %q does not match bound container %q", body.VarName, body.ContainerName, c.Name())
	}

	v, ok := c.Lookup(body.VarName)
	if !ok {
		return nil, domain.ErrNotFound("get: variable %q not found in container %q", body.VarName, c.Name())
	}

	if body.BufSize < v.Capacity() {
		return nil, domain.ErrInvalidArgument("get %q: buffer of %d bytes smaller than capacity %d", body.VarName, body.BufSize, v.Capacity())
	}

	dst := make([]byte, v.Capacity())
	if err := v.Get(dst); err != nil {
		return nil, err
	}
	return dst, nil
}

var Get_Handler = &GetHandler{OpName: "vars.get"}
