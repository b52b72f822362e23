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

// ListContainersHandler implements vars.list_containers. It hands back the
// full, untruncated name set; truncate-and-report framing into the
// 4096-byte wire buffer (SPEC_FULL.md §9(a)) is ctl/server.go's job, since
// it owns the wire status byte that carries the truncated flag.
type ListContainersHandler struct {
	OpName  string
	VarsReg domain.VarsRegistryIface
}

func (h *ListContainersHandler) Name() string { return h.OpName }

func (h *ListContainersHandler) Bind(kcontReg domain.KcontRegistryIface, varsReg domain.VarsRegistryIface, regionFactory domain.RegionFactoryIface) {
	h.VarsReg = varsReg
}

func (h *ListContainersHandler) Invoke(req *domain.OpRequest) (interface{}, error) {
	return h.VarsReg.List(), nil
}

var ListContainers_Handler = &ListContainersHandler{OpName: "vars.list_containers"}
