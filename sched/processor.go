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

package sched

import "fmt"

// ProcessorState is a processor's coarse dispatch state.
type ProcessorState int

const (
	ProcessorIdle ProcessorState = iota
	ProcessorDispatching
	ProcessorRunning
)

// Processor is a single CPU core in the simulation.
type Processor struct {
	ID             int
	State          ProcessorState
	ActiveThread   *Thread
	CurrentPri     int
	QuantumEnd     uint64
	FirstTimeslice bool
	StartingPri    int

	IdleTimeUs       int64
	BusyTimeUs       int64
	ContextSwitches  int64
	LastDispatchTime uint64
}

func newProcessor(id int) *Processor {
	return &Processor{
		ID:          id,
		State:       ProcessorIdle,
		CurrentPri:  NoPri,
		StartingPri: NoPri,
	}
}

// IsIdle reports whether the processor has no active thread.
func (p *Processor) IsIdle() bool {
	return p.State == ProcessorIdle || p.ActiveThread == nil
}

func (p *Processor) String() string {
	name := "idle"
	if p.ActiveThread != nil {
		name = p.ActiveThread.Name
	}
	return fmt.Sprintf("CPU%d(%s, pri=%d)", p.ID, name, p.CurrentPri)
}

// ProcessorSet is a set of processors sharing a ClutchRoot hierarchy and an
// RT runqueue, modeling one cluster of CPUs.
type ProcessorSet struct {
	ID             int
	Processors     []*Processor
	RTRunq         *RTQueue
	ClutchRoot     *ClutchRoot
	ProcessorCount int
}

// NewProcessorSet constructs a processor set of numCPUs processors sharing
// one Clutch hierarchy and RT runqueue.
func NewProcessorSet(id int, numCPUs int) *ProcessorSet {
	ps := &ProcessorSet{
		ID:             id,
		RTRunq:         NewRTQueue(),
		ClutchRoot:     newClutchRoot(id),
		ProcessorCount: numCPUs,
	}
	for i := 0; i < numCPUs; i++ {
		ps.Processors = append(ps.Processors, newProcessor(i))
	}
	return ps
}

// FindIdleProcessor returns an idle processor, if any.
func (ps *ProcessorSet) FindIdleProcessor() *Processor {
	for _, p := range ps.Processors {
		if p.IsIdle() {
			return p
		}
	}
	return nil
}

// FindLowestPriorityProcessor returns the processor running the
// lowest-priority thread, or nil if none are active.
func (ps *ProcessorSet) FindLowestPriorityProcessor() *Processor {
	var lowest *Processor
	lowestPri := 0x7FFFFFFF
	for _, p := range ps.Processors {
		if p.ActiveThread != nil && p.CurrentPri < lowestPri {
			lowestPri = p.CurrentPri
			lowest = p
		}
	}
	return lowest
}

func (ps *ProcessorSet) String() string {
	idle := 0
	for _, p := range ps.Processors {
		if p.IsIdle() {
			idle++
		}
	}
	return fmt.Sprintf("PSet(id=%d, cpus=%d, idle=%d, rt_count=%d)", ps.ID, ps.ProcessorCount, idle, ps.RTRunq.Count())
}
