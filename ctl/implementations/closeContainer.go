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

// CloseContainerHandler implements vars.close_container: unbinds the
// calling session, decrementing global_ref (spec.md §4.C). Takes no
// argument — the target is whatever the session is currently bound to.
type CloseContainerHandler struct {
	OpName string
}

func (h *CloseContainerHandler) Name() string { return h.OpName }

func (h *CloseContainerHandler) Bind(kcontReg domain.KcontRegistryIface, varsReg domain.VarsRegistryIface, regionFactory domain.RegionFactoryIface) {
}

func (h *CloseContainerHandler) Invoke(req *domain.OpRequest) (interface{}, error) {
	return nil, req.Session.Unbind()
}

var CloseContainer_Handler = &CloseContainerHandler{OpName: "vars.close_container"}
