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

type DestroyHandler struct {
	OpName   string
	KcontReg domain.KcontRegistryIface
}

func (h *DestroyHandler) Name() string { return h.OpName }

func (h *DestroyHandler) Bind(kcontReg domain.KcontRegistryIface, varsReg domain.VarsRegistryIface, regionFactory domain.RegionFactoryIface) {
	h.KcontReg = kcontReg
}

func (h *DestroyHandler) Invoke(req *domain.OpRequest) (interface{}, error) {
	id, ok := req.Body.(uint64)
	if !ok {
		return nil, domain.ErrFault("destroy: unexpected body type %T", req.Body)
	}
	return nil, h.KcontReg.Destroy(id)
}

var Destroy_Handler = &DestroyHandler{OpName: "kcont.destroy"}
