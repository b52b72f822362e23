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

// Package implementations holds one file per ioctl-equivalent operation,
// following handler/implementations in the teacher: a package-level
// singleton per op, registered into the dispatch service at startup.
package implementations

import (
	"github.com/nestybox/kconreg/ctlproto"
	"github.com/nestybox/kconreg/domain"
)

type CreateHandler struct {
	OpName   string
	KcontReg domain.KcontRegistryIface
}

func (h *CreateHandler) Name() string { return h.OpName }

func (h *CreateHandler) Bind(kcontReg domain.KcontRegistryIface, varsReg domain.VarsRegistryIface, regionFactory domain.RegionFactoryIface) {
	h.KcontReg = kcontReg
}

func (h *CreateHandler) Invoke(req *domain.OpRequest) (interface{}, error) {
	body, ok := req.Body.(ctlproto.CreateReq)
	if !ok {
		return nil, domain.ErrFault("create: unexpected body type %T", req.Body)
	}

	if err := h.KcontReg.Create(body.ID, body.Size, body.Flags); err != nil {
		return nil, err
	}
	return nil, nil
}

var Create_Handler = &CreateHandler{OpName: "kcont.create"}
