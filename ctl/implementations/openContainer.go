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
	"github.com/nestybox/kconreg/domain"
)

// OpenContainerHandler implements vars.open_container: binds the calling
// session to the named container, as spec.md §4.C's
// "unbound -> bound(container)" transition requires.
type OpenContainerHandler struct {
	OpName  string
	VarsReg domain.VarsRegistryIface
}

func (h *OpenContainerHandler) Name() string { return h.OpName }

func (h *OpenContainerHandler) Bind(kcontReg domain.KcontRegistryIface, varsReg domain.VarsRegistryIface, regionFactory domain.RegionFactoryIface) {
	h.VarsReg = varsReg
}

func (h *OpenContainerHandler) Invoke(req *domain.OpRequest) (interface{}, error) {
	name, ok := req.Body.(string)
	if !ok {
		return nil, domain.ErrFault("open_container: unexpected body type %T", req.Body)
	}

	// Refuse an already-bound session before touching global_ref, so the
	// failure leaves the registry as it was.
	if bound := req.Session.Bound(); bound != nil {
		return nil, domain.ErrInvalidArgument("open_container %q: session already bound to container %q", name, bound.Name())
	}

	c, err := h.VarsReg.OpenContainer(name)
	if err != nil {
		return nil, err
	}

	if err := req.Session.Bind(c); err != nil {
		// The session was already bound: undo the OpenContainer ref bump
		// we just took, rather than leaking global_ref on this failure
		// path.
		_ = h.VarsReg.CloseContainer(name)
		return nil, err
	}
	return nil, nil
}

var OpenContainer_Handler = &OpenContainerHandler{OpName: "vars.open_container"}
