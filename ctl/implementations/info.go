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

type InfoHandler struct {
	OpName   string
	KcontReg domain.KcontRegistryIface
}

func (h *InfoHandler) Name() string { return h.OpName }

func (h *InfoHandler) Bind(kcontReg domain.KcontRegistryIface, varsReg domain.VarsRegistryIface, regionFactory domain.RegionFactoryIface) {
	h.KcontReg = kcontReg
}

func (h *InfoHandler) Invoke(req *domain.OpRequest) (interface{}, error) {
	id, ok := req.Body.(uint64)
	if !ok {
		return nil, domain.ErrFault("info: unexpected body type %T", req.Body)
	}

	info, err := h.KcontReg.Info(id)
	if err != nil {
		return nil, err
	}
	return info, nil
}

var Info_Handler = &InfoHandler{OpName: "kcont.info"}
