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

import "container/heap"

// pqMaxEntry is one element of a priorityQueueMax heap.
type pqMaxEntry[T any] struct {
	pri   int
	seq   int
	item  T
}

type pqMaxHeap[T any] []pqMaxEntry[T]

func (h pqMaxHeap[T]) Len() int { return len(h) }
func (h pqMaxHeap[T]) Less(i, j int) bool {
	if h[i].pri != h[j].pri {
		return h[i].pri > h[j].pri
	}
	return h[i].seq < h[j].seq
}
func (h pqMaxHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pqMaxHeap[T]) Push(x interface{}) { *h = append(*h, x.(pqMaxEntry[T])) }
func (h *pqMaxHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PriorityQueueMax is a max-priority queue ordered by a caller-supplied
// projection from item to priority. Matches XNU's priority_queue_sched_max.
type PriorityQueueMax[T comparable] struct {
	h       pqMaxHeap[T]
	counter int
	key     func(T) int
}

// NewPriorityQueueMax constructs a max-priority queue using key to derive
// each item's priority.
func NewPriorityQueueMax[T comparable](key func(T) int) *PriorityQueueMax[T] {
	return &PriorityQueueMax[T]{key: key}
}

// Insert adds item, computing its priority via the queue's key function.
func (q *PriorityQueueMax[T]) Insert(item T) {
	q.counter++
	heap.Push(&q.h, pqMaxEntry[T]{pri: q.key(item), seq: q.counter, item: item})
}

// Remove deletes item by identity (equality), if present. O(n).
func (q *PriorityQueueMax[T]) Remove(item T) {
	for i, e := range q.h {
		if e.item == item {
			heap.Remove(&q.h, i)
			return
		}
	}
}

// PeekMax returns the highest-priority item without removing it.
func (q *PriorityQueueMax[T]) PeekMax() (T, bool) {
	var zero T
	if len(q.h) == 0 {
		return zero, false
	}
	return q.h[0].item, true
}

// PopMax removes and returns the highest-priority item.
func (q *PriorityQueueMax[T]) PopMax() (T, bool) {
	var zero T
	if len(q.h) == 0 {
		return zero, false
	}
	e := heap.Pop(&q.h).(pqMaxEntry[T])
	return e.item, true
}

// MaxPriority returns the priority of the top item, or -1 if empty.
func (q *PriorityQueueMax[T]) MaxPriority() int {
	if len(q.h) == 0 {
		return -1
	}
	return q.h[0].pri
}

// Empty reports whether the queue has no items.
func (q *PriorityQueueMax[T]) Empty() bool { return len(q.h) == 0 }

// Len returns the number of items in the queue.
func (q *PriorityQueueMax[T]) Len() int { return len(q.h) }

// UpdatePriority re-inserts item with its current priority.
func (q *PriorityQueueMax[T]) UpdatePriority(item T) {
	q.Remove(item)
	q.Insert(item)
}

// --------------------------------------------------------------------------
// PriorityQueueDeadlineMin
// --------------------------------------------------------------------------

type pqMinEntry[T any] struct {
	deadline uint64
	seq      int
	item     T
}

type pqMinHeap[T any] []pqMinEntry[T]

func (h pqMinHeap[T]) Len() int { return len(h) }
func (h pqMinHeap[T]) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h pqMinHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pqMinHeap[T]) Push(x interface{}) { *h = append(*h, x.(pqMinEntry[T])) }
func (h *pqMinHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PriorityQueueDeadlineMin is a min-deadline priority queue used for root
// bucket EDF scheduling. Matches XNU's priority_queue_deadline_min.
type PriorityQueueDeadlineMin[T comparable] struct {
	h        pqMinHeap[T]
	counter  int
	deadline func(T) uint64
}

// NewPriorityQueueDeadlineMin constructs a min-deadline queue using
// deadlineFn to read each item's current deadline.
func NewPriorityQueueDeadlineMin[T comparable](deadlineFn func(T) uint64) *PriorityQueueDeadlineMin[T] {
	return &PriorityQueueDeadlineMin[T]{deadline: deadlineFn}
}

// Insert adds item, reading its deadline via the queue's deadline function.
func (q *PriorityQueueDeadlineMin[T]) Insert(item T) {
	q.counter++
	heap.Push(&q.h, pqMinEntry[T]{deadline: q.deadline(item), seq: q.counter, item: item})
}

// Remove deletes item by identity, if present. O(n).
func (q *PriorityQueueDeadlineMin[T]) Remove(item T) {
	for i, e := range q.h {
		if e.item == item {
			heap.Remove(&q.h, i)
			return
		}
	}
}

// PeekMin returns the earliest-deadline item without removing it.
func (q *PriorityQueueDeadlineMin[T]) PeekMin() (T, bool) {
	var zero T
	if len(q.h) == 0 {
		return zero, false
	}
	return q.h[0].item, true
}

// PopMin removes and returns the earliest-deadline item.
func (q *PriorityQueueDeadlineMin[T]) PopMin() (T, bool) {
	var zero T
	if len(q.h) == 0 {
		return zero, false
	}
	e := heap.Pop(&q.h).(pqMinEntry[T])
	return e.item, true
}

// Empty reports whether the queue has no items.
func (q *PriorityQueueDeadlineMin[T]) Empty() bool { return len(q.h) == 0 }

// Len returns the number of items in the queue.
func (q *PriorityQueueDeadlineMin[T]) Len() int { return len(q.h) }

// UpdateDeadline re-inserts item with its current deadline.
func (q *PriorityQueueDeadlineMin[T]) UpdateDeadline(item T) {
	q.Remove(item)
	q.Insert(item)
}

// --------------------------------------------------------------------------
// StablePriorityQueue
// --------------------------------------------------------------------------

// stableEntry packs the ordering key described in spec §4.1: priority,
// preempted bit, and a stamp/sequence tiebreak.
type stableEntry[T any] struct {
	pri       int
	preempted bool
	stamp     int64
	seq       int
	item      T
}

type stableHeap[T any] []stableEntry[T]

func (h stableHeap[T]) Len() int { return len(h) }
func (h stableHeap[T]) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.pri != b.pri {
		return a.pri > b.pri
	}
	if a.preempted != b.preempted {
		// preempted entries outrank non-preempted entries at equal priority.
		return a.preempted
	}
	if a.preempted {
		// among preempted entries at equal stamp, most-recent-insertion-first.
		if a.stamp != b.stamp {
			return a.stamp > b.stamp
		}
		return a.seq > b.seq
	}
	// among non-preempted entries at equal stamp, older-first (stable FIFO).
	if a.stamp != b.stamp {
		return a.stamp < b.stamp
	}
	return a.seq < b.seq
}
func (h stableHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *stableHeap[T]) Push(x interface{}) { *h = append(*h, x.(stableEntry[T])) }
func (h *stableHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// StablePriorityQueue is the runqueue primitive: a max-priority queue with
// FIFO tiebreaking and preempted-first (HEADQ) semantics. Matches XNU's
// priority_queue_sched_stable_max, used for thread runqueues.
type StablePriorityQueue[T comparable] struct {
	h       stableHeap[T]
	counter int
	priFn   func(T) int
}

// NewStablePriorityQueue constructs a stable runqueue using priFn to read
// each item's current sched_pri.
func NewStablePriorityQueue[T comparable](priFn func(T) int) *StablePriorityQueue[T] {
	return &StablePriorityQueue[T]{priFn: priFn}
}

// Insert adds item with the given preempted bit and insertion stamp.
func (q *StablePriorityQueue[T]) Insert(item T, preempted bool, stamp int64) {
	q.counter++
	heap.Push(&q.h, stableEntry[T]{
		pri:       q.priFn(item),
		preempted: preempted,
		stamp:     stamp,
		seq:       q.counter,
		item:      item,
	})
}

// Remove deletes item by identity, if present. O(n).
func (q *StablePriorityQueue[T]) Remove(item T) {
	for i, e := range q.h {
		if e.item == item {
			heap.Remove(&q.h, i)
			return
		}
	}
}

// PeekMax returns the head of the queue without removing it.
func (q *StablePriorityQueue[T]) PeekMax() (T, bool) {
	var zero T
	if len(q.h) == 0 {
		return zero, false
	}
	return q.h[0].item, true
}

// PopMax removes and returns the head of the queue.
func (q *StablePriorityQueue[T]) PopMax() (T, bool) {
	var zero T
	if len(q.h) == 0 {
		return zero, false
	}
	e := heap.Pop(&q.h).(stableEntry[T])
	return e.item, true
}

// MaxPriority returns the priority of the head of the queue, or -1 if empty.
func (q *StablePriorityQueue[T]) MaxPriority() int {
	if len(q.h) == 0 {
		return -1
	}
	return q.h[0].pri
}

// Empty reports whether the queue has no items.
func (q *StablePriorityQueue[T]) Empty() bool { return len(q.h) == 0 }

// Len returns the number of items in the queue.
func (q *StablePriorityQueue[T]) Len() int { return len(q.h) }

// UpdatePriority removes and re-inserts item with a (possibly new) preempted
// bit and stamp.
func (q *StablePriorityQueue[T]) UpdatePriority(item T, preempted bool, stamp int64) {
	q.Remove(item)
	q.Insert(item, preempted, stamp)
}

// RefreshPriorities recomputes every entry's priority key from priFn while
// preserving each entry's preempted bit, stamp, and insertion sequence. Used
// by sched_tick after timeshare decay changes sched_pri underneath the
// queue.
func (q *StablePriorityQueue[T]) RefreshPriorities() {
	for i := range q.h {
		q.h[i].pri = q.priFn(q.h[i].item)
	}
	heap.Init(&q.h)
}

// --------------------------------------------------------------------------
// ClutchBucketRunqueue
// --------------------------------------------------------------------------

// ClutchBucketRunqueue is a bitmap-indexed set of per-priority circular
// queues, used to order clutch buckets within a root bucket. Matches XNU's
// sched_clutch_bucket_runq (sched_clutch.h:63-68).
type ClutchBucketRunqueue[T comparable] struct {
	highq  int
	count  int
	bitmap uint128
	queues [NRQSMax][]T
}

// uint128 is a 128-bit bitmap (NRQSMax == 128 priority levels), stored as
// two uint64 halves.
type uint128 struct {
	lo, hi uint64
}

func (b *uint128) set(i int) {
	if i < 64 {
		b.lo |= 1 << uint(i)
	} else {
		b.hi |= 1 << uint(i-64)
	}
}

func (b *uint128) clear(i int) {
	if i < 64 {
		b.lo &^= 1 << uint(i)
	} else {
		b.hi &^= 1 << uint(i-64)
	}
}

func (b uint128) test(i int) bool {
	if i < 64 {
		return b.lo&(1<<uint(i)) != 0
	}
	return b.hi&(1<<uint(i-64)) != 0
}

// highestSetBit returns the highest set bit index, or -1 if none set.
func (b uint128) highestSetBit() int {
	if b.hi != 0 {
		return 64 + bitsLen64(b.hi) - 1
	}
	if b.lo != 0 {
		return bitsLen64(b.lo) - 1
	}
	return -1
}

func bitsLen64(v uint64) int {
	n := 0
	for v != 0 {
		v >>= 1
		n++
	}
	return n
}

// NewClutchBucketRunqueue constructs an empty runqueue.
func NewClutchBucketRunqueue[T comparable]() *ClutchBucketRunqueue[T] {
	return &ClutchBucketRunqueue[T]{highq: -1}
}

// Empty reports whether no priority level has any queued item.
func (r *ClutchBucketRunqueue[T]) Empty() bool { return r.count == 0 }

// Count returns the total number of queued items across all levels.
func (r *ClutchBucketRunqueue[T]) Count() int { return r.count }

// HighestPriority returns the highest occupied priority level, or -1.
func (r *ClutchBucketRunqueue[T]) HighestPriority() int { return r.highq }

// Enqueue inserts item at priority, at the head if head is true else the
// tail of that level's circular queue.
func (r *ClutchBucketRunqueue[T]) Enqueue(item T, priority int, head bool) {
	if head {
		r.queues[priority] = append([]T{item}, r.queues[priority]...)
	} else {
		r.queues[priority] = append(r.queues[priority], item)
	}
	r.bitmap.set(priority)
	r.count++
	if priority > r.highq {
		r.highq = priority
	}
}

// Dequeue removes a specific item from priority level, by identity.
func (r *ClutchBucketRunqueue[T]) Dequeue(item T, priority int) {
	q := r.queues[priority]
	for i, v := range q {
		if v == item {
			r.queues[priority] = append(q[:i], q[i+1:]...)
			r.count--
			if len(r.queues[priority]) == 0 {
				r.bitmap.clear(priority)
				if priority == r.highq {
					r.highq = r.findNextLower(priority + 1)
				}
			}
			return
		}
	}
}

// findNextLower returns the highest set bit strictly below ceiling, or -1.
func (r *ClutchBucketRunqueue[T]) findNextLower(ceiling int) int {
	if ceiling <= 0 {
		return -1
	}
	masked := r.bitmap
	if ceiling < 64 {
		masked.lo &= (uint64(1) << uint(ceiling)) - 1
		masked.hi = 0
	} else if ceiling < 128 {
		masked.hi &= (uint64(1) << uint(ceiling-64)) - 1
	}
	return masked.highestSetBit()
}

// PeekHighest returns the first item at the highest occupied priority
// level.
func (r *ClutchBucketRunqueue[T]) PeekHighest() (T, bool) {
	var zero T
	if r.highq < 0 {
		return zero, false
	}
	q := r.queues[r.highq]
	if len(q) == 0 {
		return zero, false
	}
	return q[0], true
}

// RotateAt performs round-robin rotation at priority: move the head item to
// the tail.
func (r *ClutchBucketRunqueue[T]) RotateAt(priority int) {
	q := r.queues[priority]
	if len(q) > 1 {
		r.queues[priority] = append(q[1:], q[0])
	}
}
