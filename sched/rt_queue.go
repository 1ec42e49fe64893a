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

// RTQueue is a realtime runqueue with XNU-like priority/deadline behavior:
// primary ordering by RT priority band (higher sched_pri first), deadline
// ordering within a band, and an optional EDF override letting a
// lower-priority RT thread dequeue first when doing so cannot miss the
// higher-priority thread's constraint. Ports the RT runqueue policy from
// sched.h:281-293 and sched_prim.c's RT scheduling paths.
type RTQueue struct {
	queues          [NRTQS][]*Thread
	count           int
	earliestDeadline uint64
	constraint       uint64
	edIndex          int
	strictPriority   bool
	deadlineEpsilon  uint64
}

// NewRTQueue constructs an empty realtime runqueue.
func NewRTQueue() *RTQueue {
	return &RTQueue{
		earliestDeadline: RTDeadlineNone,
		constraint:       0xFFFFFFFF,
		edIndex:          -1,
		deadlineEpsilon:  100,
	}
}

// Count returns the number of enqueued RT threads.
func (q *RTQueue) Count() int { return q.count }

// Empty reports whether the queue holds no threads.
func (q *RTQueue) Empty() bool { return q.count == 0 }

func toIndex(pri int) int { return pri - BasePriRTQueues }

// refreshGlobalED recomputes the queue-wide earliest deadline, its
// constraint, and the priority-band index holding it. When deadlines tie
// across bands, the highest RT priority band wins, matching XNU's
// rt_runq_dequeue consistency walk.
func (q *RTQueue) refreshGlobalED() {
	earliest := RTDeadlineNone
	constraint := uint64(0xFFFFFFFF)
	edIndex := -1
	for i := len(q.queues) - 1; i >= 0; i-- {
		band := q.queues[i]
		if len(band) > 0 && band[0].RTDeadline < earliest {
			earliest = band[0].RTDeadline
			constraint = uint64(band[0].RTConstraint)
			edIndex = i
		}
	}
	q.earliestDeadline = earliest
	q.constraint = constraint
	q.edIndex = edIndex
}

func (q *RTQueue) highestPriIndex() int {
	for i := len(q.queues) - 1; i >= 0; i-- {
		if len(q.queues[i]) > 0 {
			return i
		}
	}
	return -1
}

// HighestPriority returns the highest RT priority currently enqueued, or
// -1 when empty.
func (q *RTQueue) HighestPriority() int {
	i := q.highestPriIndex()
	if i < 0 {
		return -1
	}
	return BasePriRTQueues + i
}

// PeekHighestPriority returns the first thread at the highest RT priority
// band without removing it.
func (q *RTQueue) PeekHighestPriority() *Thread {
	i := q.highestPriIndex()
	if i < 0 || len(q.queues[i]) == 0 {
		return nil
	}
	return q.queues[i][0]
}

// chooseIndexForDequeue picks the priority band to dequeue from: normally
// the highest RT priority band, but the earliest-deadline band may be
// chosen instead when doing so still leaves enough slack to meet the
// highest-priority thread's constraint. Ports the dequeue-time EDF
// override in sched_rt.c.
func (q *RTQueue) chooseIndexForDequeue() int {
	hiIndex := q.highestPriIndex()
	if hiIndex < 0 {
		return -1
	}

	chosen := hiIndex
	if !q.strictPriority && q.edIndex >= 0 && q.edIndex != hiIndex {
		edThread := q.queues[q.edIndex][0]
		hiThread := q.queues[hiIndex][0]
		if uint64(edThread.RTComputation)+uint64(hiThread.RTComputation)+q.deadlineEpsilon < uint64(hiThread.RTConstraint) {
			chosen = q.edIndex
		}
	}
	return chosen
}

// Enqueue inserts an RT thread ordered by deadline within its RT priority
// band. Returns true when the thread was inserted at the head of its band,
// matching rt_runq_enqueue's new-head-at-priority preemption signal.
func (q *RTQueue) Enqueue(t *Thread) bool {
	idx := toIndex(t.SchedPri)
	band := q.queues[idx]

	insertedHead := false
	if len(band) == 0 {
		q.queues[idx] = append(band, t)
		insertedHead = true
	} else {
		pos := len(band)
		for i, other := range band {
			if t.RTDeadline < other.RTDeadline {
				pos = i
				break
			}
		}
		q.queues[idx] = append(band[:pos], append([]*Thread{t}, band[pos:]...)...)
		insertedHead = pos == 0
	}

	q.count++
	q.refreshGlobalED()
	return insertedHead
}

// Dequeue removes and returns the next RT thread per the priority/EDF
// dequeue policy, or nil if empty.
func (q *RTQueue) Dequeue() *Thread {
	idx := q.chooseIndexForDequeue()
	if idx < 0 {
		return nil
	}
	band := q.queues[idx]
	t := band[0]
	q.queues[idx] = band[1:]
	q.count--
	q.refreshGlobalED()
	return t
}

// Peek returns the next RT thread per the dequeue policy without removing
// it.
func (q *RTQueue) Peek() *Thread {
	idx := q.chooseIndexForDequeue()
	if idx < 0 {
		return nil
	}
	return q.queues[idx][0]
}

// PeekDeadline returns the earliest RT deadline across all priority bands.
func (q *RTQueue) PeekDeadline() uint64 { return q.earliestDeadline }

// Remove deletes a specific thread from the queue, if present.
func (q *RTQueue) Remove(t *Thread) {
	pri := t.SchedPri
	if pri < BasePriRTQueues || pri > MaxPri {
		return
	}
	idx := toIndex(pri)
	band := q.queues[idx]
	for i, other := range band {
		if other == t {
			q.queues[idx] = append(band[:i], band[i+1:]...)
			q.count--
			q.refreshGlobalED()
			return
		}
	}
}
