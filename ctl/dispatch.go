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

// Package ctl is the control-channel server: it accepts connections on
// the AF_UNIX substitute for a /dev ioctl endpoint (SPEC_FULL.md §1),
// decodes frames with ctlproto, dispatches them through an opcode-keyed
// radix tree, and serializes the reply.
package ctl

import (
	"fmt"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/sirupsen/logrus"

	"github.com/nestybox/kconreg/domain"
)

// dispatchService is the opcode→handler registry, grounded on
// handler/handlerDB.go: a radix tree under one mutex, used here for
// op-name keys instead of filesystem paths.
type dispatchService struct {
	sync.RWMutex
	tree *iradix.Tree
}

var _ domain.OpDispatchServiceIface = (*dispatchService)(nil)

func NewDispatchService() domain.OpDispatchServiceIface {
	return &dispatchService{tree: iradix.New()}
}

func (ds *dispatchService) Setup(handlers []domain.OpHandlerIface) {
	ds.Lock()
	ds.tree = iradix.New()
	ds.Unlock()

	for _, h := range handlers {
		if err := ds.RegisterHandler(h); err != nil {
			logrus.Fatalf("op dispatch: %v", err)
		}
	}
}

func (ds *dispatchService) RegisterHandler(h domain.OpHandlerIface) error {
	ds.Lock()
	defer ds.Unlock()

	key := []byte(h.Name())
	if _, ok := ds.tree.Get(key); ok {
		return fmt.Errorf("op handler %q already registered", h.Name())
	}

	tree, _, _ := ds.tree.Insert(key, h)
	ds.tree = tree
	return nil
}

func (ds *dispatchService) Lookup(name string) (domain.OpHandlerIface, bool) {
	ds.RLock()
	defer ds.RUnlock()

	v, ok := ds.tree.Get([]byte(name))
	if !ok {
		return nil, false
	}
	return v.(domain.OpHandlerIface), true
}
