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

package simulator

import (
	"container/heap"
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/google/clutchsched/history"
	"github.com/google/clutchsched/sched"
	"github.com/google/clutchsched/tracedata"
)

// Engine is a discrete-event simulation engine: it replays Events in
// timestamp order, driving Scheduler decisions and recording the
// resulting dispatch history and statistics. Ports SimulationEngine from
// the reference simulator.
type Engine struct {
	RunID uuid.UUID

	clock     uint64
	events    eventQueue
	eventSeq  int64

	Scheduler *sched.Scheduler
	PSet      *sched.ProcessorSet
	Stats     *Stats
	History   *history.History
	Trace     *tracedata.Log

	rng *rand.Rand

	threadBehaviors      map[sched.ThreadID]BehaviorProfile
	threadBlockDeadlines map[sched.ThreadID]uint64
}

// NewEngine constructs a simulation engine over numCPUs processors. seed
// controls the deterministic random source behind workload burst/block
// sampling.
func NewEngine(numCPUs int, seed int64) *Engine {
	pset := sched.NewProcessorSet(0, numCPUs)
	return &Engine{
		RunID:                uuid.New(),
		Scheduler:            sched.NewScheduler(pset, false),
		PSet:                 pset,
		Stats:                NewStats(numCPUs),
		History:              history.NewHistory(numCPUs),
		Trace:                tracedata.NewLog(100000),
		rng:                  rand.New(rand.NewSource(seed)),
		threadBehaviors:      make(map[sched.ThreadID]BehaviorProfile),
		threadBlockDeadlines: make(map[sched.ThreadID]uint64),
	}
}

// ScheduleEvent enqueues an event, stamping it with its type's priority
// and a monotonically increasing sequence number for stable ordering.
func (e *Engine) ScheduleEvent(ev Event) {
	ev.Priority = eventPriority[ev.Type]
	ev.seq = e.eventSeq
	e.eventSeq++
	heap.Push(&e.events, ev)
}

// AddThread registers a thread and its behavior with the engine and
// schedules its first activation.
func (e *Engine) AddThread(t *sched.Thread, behavior BehaviorProfile, startTimeUs uint64) {
	e.threadBehaviors[t.TID] = behavior
	e.Stats.RegisterThread(t)
	e.Trace.Record(startTimeUs, tracedata.EventThreadCreated, -1, t.Name, t.ThreadGroup.Name)

	if t.IsRealtime() {
		e.ScheduleEvent(Event{TimestampUs: startTimeUs, Type: EventRTPeriodStart, ThreadID: t.TID})
	} else {
		e.ScheduleEvent(Event{TimestampUs: startTimeUs, Type: EventThreadWakeup, ThreadID: t.TID})
	}
}

// AddWorkloads instantiates every profile in its own goroutine and
// registers the resulting threads with the engine. All profiles register
// their thread groups and threads with the same Scheduler, so the
// CreateWorkload calls are serialized by a mutex.
func (e *Engine) AddWorkloads(ctx context.Context, profiles []WorkloadProfile, startTimeUs uint64) ([]WorkloadResult, error) {
	results := make([]WorkloadResult, len(profiles))

	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	for i, profile := range profiles {
		i, profile := i, profile
		g.Go(func() error {
			mu.Lock()
			defer mu.Unlock()
			results[i] = CreateWorkload(e.Scheduler, profile)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, result := range results {
		for i, t := range result.Threads {
			e.AddThread(t, result.Behaviors[i], startTimeUs)
		}
	}
	return results, nil
}

// Run executes the simulation for durationUs simulated microseconds.
func (e *Engine) Run(durationUs uint64) {
	e.ScheduleEvent(Event{TimestampUs: durationUs, Type: EventSimulationEnd})

	for tick := uint64(sched.SchedTickIntervalUs); tick < durationUs; tick += sched.SchedTickIntervalUs {
		e.ScheduleEvent(Event{TimestampUs: tick, Type: EventSchedTick})
	}

	for e.events.Len() > 0 {
		ev := heap.Pop(&e.events).(Event)
		if ev.TimestampUs > durationUs {
			break
		}
		if ev.Type == EventSimulationEnd {
			e.clock = ev.TimestampUs
			break
		}

		e.clock = ev.TimestampUs
		e.handleEvent(ev)
	}

	for _, p := range e.PSet.Processors {
		if p.ActiveThread != nil && p.ActiveThread.ComputationEpoch > 0 {
			p.ActiveThread.TotalCPUUs += int64(e.clock) - p.ActiveThread.ComputationEpoch
			p.ActiveThread.ComputationEpoch = 0
		}
	}

	e.History.Finalize(e.clock)
	e.Stats.Finalize(e.Scheduler.AllThreads, e.clock)
}

func (e *Engine) handleEvent(ev Event) {
	switch ev.Type {
	case EventThreadWakeup:
		e.handleThreadWakeup(ev)
	case EventThreadBlock:
		e.handleThreadBlock(ev)
	case EventQuantumExpire:
		e.handleQuantumExpire(ev)
	case EventSchedTick:
		e.handleSchedTick(ev)
	case EventRTPeriodStart:
		e.handleRTPeriodStart(ev)
	}
}

func (e *Engine) findThread(tid sched.ThreadID) *sched.Thread {
	for _, t := range e.Scheduler.AllThreads {
		if t.TID == tid {
			return t
		}
	}
	return nil
}

func (e *Engine) findProcessorForThread(t *sched.Thread) *sched.Processor {
	for _, p := range e.PSet.Processors {
		if p.ActiveThread == t {
			return p
		}
	}
	return nil
}

func (e *Engine) handleThreadWakeup(ev Event) {
	t := e.findThread(ev.ThreadID)
	if t == nil || t.State == sched.ThreadTerminated {
		return
	}

	e.Stats.WakeupCount++
	e.Trace.Record(e.clock, tracedata.EventThreadWoken, -1, t.Name, "")
	if p := e.Scheduler.ThreadWakeup(t, e.clock); p != nil {
		e.handlePreemption(p)
	}
}

func (e *Engine) handleThreadBlock(ev Event) {
	t := e.findThread(ev.ThreadID)
	if t == nil {
		return
	}

	if expected, ok := e.threadBlockDeadlines[t.TID]; ok && ev.TimestampUs != expected {
		return
	}
	if t.State != sched.ThreadRunning {
		if expected, ok := e.threadBlockDeadlines[t.TID]; ok && ev.TimestampUs == expected {
			delete(e.threadBlockDeadlines, t.TID)
		}
		return
	}

	e.Stats.BlockCount++

	p := e.findProcessorForThread(t)
	if p == nil {
		return
	}
	delete(e.threadBlockDeadlines, t.TID)

	e.Trace.Record(e.clock, tracedata.EventThreadBlocked, p.ID, t.Name, "")
	newThread := e.Scheduler.ThreadBlock(t, p, e.clock)

	if newThread != nil {
		e.Stats.RecordDispatch(newThread, e.clock)
		e.Stats.RecordContextSwitch()
		e.History.RecordDispatch(p.ID, int(newThread.TID), newThread.Name, e.clock)
		e.Trace.Record(e.clock, tracedata.EventThreadDispatched, p.ID, newThread.Name, "after block")
		e.scheduleQuantumExpire(p, newThread)
		if !newThread.IsRealtime() {
			e.scheduleThreadBlock(newThread)
		}
	} else {
		e.History.RecordIdle(p.ID, e.clock)
	}

	if behavior, ok := e.threadBehaviors[t.TID]; ok && !t.IsRealtime() {
		blockDuration := behavior.SampleBlockDuration(e.rng)
		e.ScheduleEvent(Event{TimestampUs: e.clock + uint64(blockDuration), Type: EventThreadWakeup, ThreadID: t.TID})
	}
}

func (e *Engine) handleQuantumExpire(ev Event) {
	p := e.PSet.Processors[ev.ProcessorID]
	if p.ActiveThread == nil || p.ActiveThread.TID != ev.ThreadID || ev.TimestampUs != p.QuantumEnd {
		return
	}

	e.Stats.QuantumExpireCount++
	e.Trace.Record(e.clock, tracedata.EventQuantumExpired, p.ID, p.ActiveThread.Name, "")

	oldThread := p.ActiveThread
	newThread := e.Scheduler.ThreadQuantumExpire(p, e.clock)

	if newThread != nil && newThread != oldThread {
		e.Stats.RecordDispatch(newThread, e.clock)
		e.Stats.RecordContextSwitch()
		e.History.RecordDispatch(p.ID, int(newThread.TID), newThread.Name, e.clock)
		e.Trace.Record(e.clock, tracedata.EventThreadDispatched, p.ID, newThread.Name, "after quantum expiry")
		e.scheduleQuantumExpire(p, newThread)
		e.scheduleThreadBlock(oldThread)
	} else if p.ActiveThread != nil {
		e.scheduleQuantumExpire(p, p.ActiveThread)
	}
}

func (e *Engine) handleSchedTick(ev Event) {
	e.Stats.TickCount++
	e.Trace.Record(e.clock, tracedata.EventSchedTick, -1, "", "")
	e.Scheduler.SchedTick(e.clock)
}

func (e *Engine) handleRTPeriodStart(ev Event) {
	t := e.findThread(ev.ThreadID)
	if t == nil || t.State == sched.ThreadTerminated {
		return
	}

	behavior, ok := e.threadBehaviors[t.TID]
	if !ok {
		return
	}

	t.RTDeadline = e.clock + uint64(behavior.RTConstraintUs)

	if t.State == sched.ThreadWaiting {
		e.Stats.WakeupCount++
		e.Trace.Record(e.clock, tracedata.EventThreadEnqueued, -1, t.Name, "RT period start")
		if p := e.Scheduler.ThreadSetrun(t, e.clock, sched.OptPreempt|sched.OptTailQ); p != nil {
			e.handlePreemption(p)
		}
	}

	e.ScheduleEvent(Event{TimestampUs: e.clock + uint64(behavior.RTComputationUs), Type: EventThreadBlock, ThreadID: t.TID})

	if behavior.RTPeriodUs > 0 {
		e.ScheduleEvent(Event{TimestampUs: e.clock + uint64(behavior.RTPeriodUs), Type: EventRTPeriodStart, ThreadID: t.TID})
	}
}

// handlePreemption carries out a preemption signal on p: it accounts CPU
// time for the currently active thread, lets it compete in selection as
// the previous thread, and dispatches whichever thread actually wins.
// Matches XNU's select-then-dispatch flow: the old thread is not
// re-enqueued before selection.
func (e *Engine) handlePreemption(p *sched.Processor) {
	reason := e.Scheduler.ConsumePreemptionReason(p)

	if p.IsIdle() {
		e.tryDispatchIdle(p, fmt.Sprintf("preemption signal on idle CPU: %s", reason))
		return
	}

	oldThread := p.ActiveThread
	if oldThread == nil {
		e.tryDispatchIdle(p, fmt.Sprintf("preemption signal with no active thread: %s", reason))
		return
	}

	// keep_quantum is decided against the priority oldThread had as of its
	// last recompute, then its priority is refreshed before it competes in
	// selection as prevThread, matching XNU thread_select()'s ordering.
	e.Scheduler.PreemptionAccounting(p, oldThread, e.clock)
	e.Scheduler.RefreshTimeshare(oldThread)
	e.Stats.RecordPreemption()

	newThread, chosePrev := e.Scheduler.ThreadSelect(p, e.clock, oldThread)

	if chosePrev && newThread == oldThread {
		e.Scheduler.ThreadDispatch(p, oldThread, oldThread, e.clock,
			fmt.Sprintf("preemption requested (%s), but %s remained best eligible thread", reason, oldThread.Name))
		e.scheduleQuantumExpire(p, oldThread)
		return
	}

	if newThread != nil {
		e.Trace.Record(e.clock, tracedata.EventThreadPreempted, p.ID, oldThread.Name, reason)
		e.Scheduler.ThreadSetrun(oldThread, e.clock, sched.OptHeadQ)
		e.Scheduler.ThreadDispatch(p, oldThread, newThread, e.clock, fmt.Sprintf("preemption: %s", reason))
		e.History.RecordDispatch(p.ID, int(newThread.TID), newThread.Name, e.clock)
		e.Trace.Record(e.clock, tracedata.EventThreadDispatched, p.ID, newThread.Name, fmt.Sprintf("preemption: %s", reason))
		e.Stats.RecordDispatch(newThread, e.clock)
		e.Stats.RecordContextSwitch()
		e.scheduleQuantumExpire(p, newThread)
		if !newThread.IsRealtime() {
			e.scheduleThreadBlock(newThread)
		}
		return
	}

	e.Scheduler.ThreadDispatch(p, oldThread, oldThread, e.clock,
		fmt.Sprintf("preemption requested (%s), but no better runnable replacement was selected", reason))
	e.scheduleQuantumExpire(p, oldThread)
}

func (e *Engine) tryDispatchIdle(p *sched.Processor, reason string) {
	newThread, _ := e.Scheduler.ThreadSelect(p, e.clock, nil)
	if newThread == nil {
		return
	}
	e.Scheduler.ThreadDispatch(p, nil, newThread, e.clock, reason)
	e.History.RecordDispatch(p.ID, int(newThread.TID), newThread.Name, e.clock)
	e.Trace.Record(e.clock, tracedata.EventThreadDispatched, p.ID, newThread.Name, reason)
	e.Stats.RecordDispatch(newThread, e.clock)
	e.Stats.RecordContextSwitch()
	e.scheduleQuantumExpire(p, newThread)
	if !newThread.IsRealtime() {
		e.scheduleThreadBlock(newThread)
	}
}

// scheduleQuantumExpire arms the quantum-expiry event for t on p. By the
// time this runs, ThreadDispatch has already reset t's quantum if it had
// been exhausted, so QuantumRemaining here is always the budget for this
// dispatch.
func (e *Engine) scheduleQuantumExpire(p *sched.Processor, t *sched.Thread) {
	expireTime := e.clock + uint64(t.QuantumRemaining)
	p.QuantumEnd = expireTime

	e.ScheduleEvent(Event{TimestampUs: expireTime, Type: EventQuantumExpire, ThreadID: t.TID, ProcessorID: p.ID})
}

func (e *Engine) scheduleThreadBlock(t *sched.Thread) {
	behavior, ok := e.threadBehaviors[t.TID]
	if !ok || t.IsRealtime() {
		return
	}

	burst := behavior.SampleCPUBurst(e.rng)
	blockTime := e.clock + uint64(burst)
	e.threadBlockDeadlines[t.TID] = blockTime
	e.ScheduleEvent(Event{TimestampUs: blockTime, Type: EventThreadBlock, ThreadID: t.TID})
}
