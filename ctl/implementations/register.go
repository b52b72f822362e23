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

type RegisterHandler struct {
	OpName  string
	VarsReg domain.VarsRegistryIface
}

func (h *RegisterHandler) Name() string { return h.OpName }

func (h *RegisterHandler) Bind(kcontReg domain.KcontRegistryIface, varsReg domain.VarsRegistryIface, regionFactory domain.RegionFactoryIface) {
	h.VarsReg = varsReg
}

func (h *RegisterHandler) Invoke(req *domain.OpRequest) (interface{}, error) {
	body, ok := req.Body.(ctlproto.RegisterReq)
	if !ok {
		return nil, domain.ErrFault("register: unexpected body type %T", req.Body)
	}

	descs := make([]domain.VarDesc, len(body.Vars))
	for i, v := range body.Vars {
		descs[i] = domain.VarDesc{
			Name:     v.Name,
			Type:     domain.TypeTag(v.TypeTag),
			Capacity: v.Capacity,
		}
	}

	return nil, h.VarsReg.Register(body.ContainerName, descs)
}

var Register_Handler = &RegisterHandler{OpName: "vars.register"}
