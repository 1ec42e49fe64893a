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

package history

import (
	"github.com/Workiva/go-datastructures/augmentedtree"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// History indexes busy intervals for every CPU in a run, built
// incrementally as the scheduler dispatches and idles processors.
type History struct {
	treesByCPU map[int]augmentedtree.Tree
	openByCPU  map[int]*BusySpan
	nextID     uint64
}

// NewHistory constructs an empty History for a run of numCPUs processors.
func NewHistory(numCPUs int) *History {
	h := &History{
		treesByCPU: make(map[int]augmentedtree.Tree, numCPUs),
		openByCPU:  make(map[int]*BusySpan, numCPUs),
	}
	for cpu := 0; cpu < numCPUs; cpu++ {
		h.treesByCPU[cpu] = augmentedtree.New(1)
	}
	return h
}

// RecordDispatch closes any span currently open on cpu and opens a new one
// for threadID/threadName starting at timestampUs.
func (h *History) RecordDispatch(cpu int, threadID int, threadName string, timestampUs uint64) {
	h.closeOpenSpan(cpu, timestampUs)

	span := &BusySpan{
		id:         h.nextID,
		CPU:        cpu,
		ThreadID:   threadID,
		ThreadName: threadName,
		StartUs:    timestampUs,
	}
	h.nextID++
	h.openByCPU[cpu] = span
}

// RecordIdle closes any span currently open on cpu, recording that it went
// idle at timestampUs.
func (h *History) RecordIdle(cpu int, timestampUs uint64) {
	h.closeOpenSpan(cpu, timestampUs)
}

func (h *History) closeOpenSpan(cpu int, timestampUs uint64) {
	open, ok := h.openByCPU[cpu]
	if !ok {
		return
	}
	open.EndUs = timestampUs
	tree, ok := h.treesByCPU[cpu]
	if !ok {
		tree = augmentedtree.New(1)
		h.treesByCPU[cpu] = tree
	}
	tree.Add(open)
	delete(h.openByCPU, cpu)
}

// Query returns every closed span on cpu overlapping [startUs, endUs], or
// an error if cpu is unknown to this History.
func (h *History) Query(cpu int, startUs, endUs uint64) ([]*BusySpan, error) {
	tree, ok := h.treesByCPU[cpu]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "CPU %d not present in history", cpu)
	}
	q := &BusySpan{id: queryID, StartUs: startUs, EndUs: endUs}
	results := tree.Query(q)
	spans := make([]*BusySpan, 0, len(results))
	for _, iv := range results {
		spans = append(spans, iv.(*BusySpan))
	}
	return spans, nil
}

// ActiveAt returns the thread active on cpu at timestampUs, consulting
// both the closed-span index and any span still open (never closed because
// the CPU hasn't switched since). Returns ok=false if idle or cpu unknown.
func (h *History) ActiveAt(cpu int, timestampUs uint64) (*BusySpan, bool) {
	if open, ok := h.openByCPU[cpu]; ok && open.StartUs <= timestampUs {
		return open, true
	}
	spans, err := h.Query(cpu, timestampUs, timestampUs)
	if err != nil || len(spans) == 0 {
		return nil, false
	}
	return spans[0], true
}

// Finalize closes every still-open span as of timestampUs, making the full
// run queryable via Query. Call once the simulation run has ended.
func (h *History) Finalize(timestampUs uint64) {
	for cpu := range h.openByCPU {
		h.closeOpenSpan(cpu, timestampUs)
	}
}
