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

import "testing"

func rtThread(tid ThreadID, pri int, deadline uint64, computation, constraint int64) *Thread {
	tg := NewThreadGroup(0, "rt-tg")
	th := NewThread(tid, tg, NewThreadParams{Mode: ModeRealtime, RTComputation: computation, RTConstraint: constraint})
	th.SchedPri = pri
	th.RTDeadline = deadline
	return th
}

func TestRTQueueDequeuesHighestPriorityBandFirst(t *testing.T) {
	q := NewRTQueue()
	low := rtThread(1, BasePriRTQueues, 1000, 100, 200)
	hi := rtThread(2, BasePriRTQueues+5, 2000, 100, 200)

	q.Enqueue(low)
	q.Enqueue(hi)

	got := q.Dequeue()
	if got != hi {
		t.Fatalf("Dequeue() = %v, want the higher-priority-band thread even with a later deadline", got.Name)
	}
}

func TestRTQueueOrdersWithinBandByDeadline(t *testing.T) {
	q := NewRTQueue()
	later := rtThread(1, BasePriRTQueues, 5000, 100, 200)
	earlier := rtThread(2, BasePriRTQueues, 1000, 100, 200)

	q.Enqueue(later)
	q.Enqueue(earlier)

	got := q.Dequeue()
	if got != earlier {
		t.Fatalf("Dequeue() = %v, want the earlier-deadline thread within the same priority band", got.Name)
	}
}

func TestRTQueueEnqueueReportsHeadInsertion(t *testing.T) {
	q := NewRTQueue()
	first := rtThread(1, BasePriRTQueues, 5000, 100, 200)
	if insertedHead := q.Enqueue(first); !insertedHead {
		t.Errorf("Enqueue() of the first thread in a band = %v, want true (head of band)", insertedHead)
	}

	later := rtThread(2, BasePriRTQueues, 9000, 100, 200)
	if insertedHead := q.Enqueue(later); insertedHead {
		t.Errorf("Enqueue() of a later-deadline thread = %v, want false (not head)", insertedHead)
	}
}

func TestRTQueueRemove(t *testing.T) {
	q := NewRTQueue()
	a := rtThread(1, BasePriRTQueues, 1000, 100, 200)
	b := rtThread(2, BasePriRTQueues, 2000, 100, 200)
	q.Enqueue(a)
	q.Enqueue(b)

	q.Remove(a)
	if q.Count() != 1 {
		t.Fatalf("Count() after removing a = %d, want 1", q.Count())
	}
	if got := q.Peek(); got != b {
		t.Fatalf("Peek() after removing a = %v, want b", got)
	}
}

func TestRTQueueHighestPriorityEmpty(t *testing.T) {
	q := NewRTQueue()
	if got := q.HighestPriority(); got != -1 {
		t.Errorf("HighestPriority() on empty queue = %d, want -1", got)
	}
	if got := q.Peek(); got != nil {
		t.Errorf("Peek() on empty queue = %v, want nil", got)
	}
}

func TestRTQueueDequeueEDFOverrideWhenSlackAllows(t *testing.T) {
	q := NewRTQueue()
	// hi has ample constraint slack, so the earlier-deadline lower-priority
	// thread may dequeue first without risking hi's constraint.
	hi := rtThread(1, BasePriRTQueues+5, 100000, 1000, 50000)
	lo := rtThread(2, BasePriRTQueues, 100, 1000, 5000)

	q.Enqueue(hi)
	q.Enqueue(lo)

	got := q.Dequeue()
	if got != lo {
		t.Fatalf("Dequeue() = %v, want the earlier-deadline lower-priority thread under the EDF slack override", got.Name)
	}
}

func TestRTQueueDequeueEDFOverrideDisabledByStrictPriority(t *testing.T) {
	q := NewRTQueue()
	q.strictPriority = true
	hi := rtThread(1, BasePriRTQueues+5, 100000, 1000, 50000)
	lo := rtThread(2, BasePriRTQueues, 100, 1000, 5000)

	q.Enqueue(hi)
	q.Enqueue(lo)

	got := q.Dequeue()
	if got != hi {
		t.Fatalf("Dequeue() with strictPriority = %v, want the higher-priority-band thread", got.Name)
	}
}

func TestRTQueuePeekDeadlineTracksEarliestAcrossBands(t *testing.T) {
	q := NewRTQueue()
	hi := rtThread(1, BasePriRTQueues+5, 9000, 100, 200)
	lo := rtThread(2, BasePriRTQueues, 1000, 100, 200)
	q.Enqueue(hi)
	q.Enqueue(lo)

	if got := q.PeekDeadline(); got != 1000 {
		t.Errorf("PeekDeadline() = %d, want 1000 (earliest across all bands)", got)
	}
}
