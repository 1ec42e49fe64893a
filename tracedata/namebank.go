//
// Copyright 2019 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS-IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
//

// Package tracedata holds the simulation's trace log and name-interning
// support: a bounded record of scheduling decisions and a compacted store
// for the often-repeated thread and thread-group names behind them.
package tracedata

import (
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NameID identifies a unique interned string in a NameBank.
type NameID int

// NameBank compacts a set of often-repeated strings, such as thread and
// thread-group names, by giving each unique string a small integer
// identifier. Unlike a simple append-only table, a NameBank bounds its
// retained set with an LRU so a long-running simulation that continuously
// creates and discards short-lived thread groups does not grow this table
// without bound; evicted names simply re-intern (and get a new NameID) the
// next time they're seen.
type NameBank struct {
	mu    sync.RWMutex
	cache *simplelru.LRU
	ids   map[string]NameID
	next  NameID
}

// NewNameBank constructs a NameBank retaining at most capacity distinct
// names.
func NewNameBank(capacity int) *NameBank {
	nb := &NameBank{ids: make(map[string]NameID)}
	cache, err := simplelru.NewLRU(capacity, nb.onEvict)
	if err != nil {
		// capacity <= 0: fall back to a single-entry cache rather than panic,
		// since a misconfigured bank should degrade, not crash a simulation run.
		cache, _ = simplelru.NewLRU(1, nb.onEvict)
	}
	nb.cache = cache
	return nb
}

func (nb *NameBank) onEvict(key, value interface{}) {
	delete(nb.ids, value.(string))
}

// Intern returns the NameID for name, assigning a fresh one if name was
// not already present (or had been evicted).
func (nb *NameBank) Intern(name string) NameID {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	if id, ok := nb.ids[name]; ok {
		nb.cache.Get(id) // refresh recency
		return id
	}

	id := nb.next
	nb.next++
	nb.ids[name] = id
	nb.cache.Add(id, name)
	return id
}

// Lookup returns the name associated with id, or an error if it is not
// currently resident (it may never have been interned, or may have been
// evicted).
func (nb *NameBank) Lookup(id NameID) (string, error) {
	nb.mu.RLock()
	defer nb.mu.RUnlock()

	v, ok := nb.cache.Get(id)
	if !ok {
		return "", status.Errorf(codes.NotFound, "name %d not resident in bank", id)
	}
	return v.(string), nil
}

// Len returns the number of names currently resident.
func (nb *NameBank) Len() int {
	nb.mu.RLock()
	defer nb.mu.RUnlock()
	return nb.cache.Len()
}
