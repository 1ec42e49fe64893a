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

// Package simulator drives the Clutch scheduler with a discrete-event loop:
// synthetic workloads generate wakeup, block, and RT period events, and the
// engine replays them in timestamp order against sched.Scheduler.
package simulator

import (
	"container/heap"
	"fmt"

	"github.com/google/clutchsched/sched"
)

// EventType classifies a simulation event.
type EventType int

const (
	EventThreadWakeup EventType = iota
	EventThreadBlock
	EventQuantumExpire
	EventSchedTick
	EventPreemptionCheck
	EventRTDeadline
	EventRTPeriodStart
	EventSimulationEnd
)

func (t EventType) String() string {
	switch t {
	case EventThreadWakeup:
		return "THREAD_WAKEUP"
	case EventThreadBlock:
		return "THREAD_BLOCK"
	case EventQuantumExpire:
		return "QUANTUM_EXPIRE"
	case EventSchedTick:
		return "SCHED_TICK"
	case EventPreemptionCheck:
		return "PREEMPTION_CHECK"
	case EventRTDeadline:
		return "RT_DEADLINE"
	case EventRTPeriodStart:
		return "RT_PERIOD_START"
	case EventSimulationEnd:
		return "SIMULATION_END"
	default:
		return "UNKNOWN"
	}
}

// eventPriority orders same-timestamp events; lower runs first. RT
// deadlines and wakeups must be observed before routine maintenance so a
// newly-runnable high-QoS thread preempts before a tick or quantum expiry
// is processed at the same instant.
var eventPriority = map[EventType]int{
	EventRTDeadline:      0,
	EventThreadWakeup:    1,
	EventRTPeriodStart:   2,
	EventPreemptionCheck: 3,
	EventQuantumExpire:   4,
	EventThreadBlock:     5,
	EventSchedTick:       6,
	EventSimulationEnd:   99,
}

// Event is a single simulation event, ordered by timestamp, then priority,
// then insertion sequence (so same-instant, same-priority events process
// in the order they were scheduled).
type Event struct {
	TimestampUs uint64
	Priority    int
	Type        EventType
	ThreadID    sched.ThreadID
	ProcessorID int
	seq         int64
}

func (e Event) String() string {
	return fmt.Sprintf("Event(%s, t=%d, thread=%d, cpu=%d)", e.Type, e.TimestampUs, e.ThreadID, e.ProcessorID)
}

// eventQueue is a min-heap of Events ordered by (timestamp, priority, seq).
type eventQueue []Event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].TimestampUs != q[j].TimestampUs {
		return q[i].TimestampUs < q[j].TimestampUs
	}
	if q[i].Priority != q[j].Priority {
		return q[i].Priority < q[j].Priority
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x interface{}) { *q = append(*q, x.(Event)) }

func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

var _ heap.Interface = (*eventQueue)(nil)
