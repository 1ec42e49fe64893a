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
	"testing"
)

func TestEventQueueOrdersByTimestampThenPriority(t *testing.T) {
	q := &eventQueue{}
	heap.Init(q)

	heap.Push(q, Event{TimestampUs: 100, Priority: eventPriority[EventSchedTick], Type: EventSchedTick, seq: 0})
	heap.Push(q, Event{TimestampUs: 100, Priority: eventPriority[EventThreadWakeup], Type: EventThreadWakeup, seq: 1})
	heap.Push(q, Event{TimestampUs: 50, Priority: eventPriority[EventSchedTick], Type: EventSchedTick, seq: 2})

	first := heap.Pop(q).(Event)
	if first.TimestampUs != 50 {
		t.Fatalf("first popped event timestamp = %d, want 50 (earliest wins regardless of priority)", first.TimestampUs)
	}

	second := heap.Pop(q).(Event)
	if second.Type != EventThreadWakeup {
		t.Fatalf("second popped event type = %s, want THREAD_WAKEUP (lower priority value wins at same timestamp)", second.Type)
	}

	third := heap.Pop(q).(Event)
	if third.Type != EventSchedTick {
		t.Fatalf("third popped event type = %s, want SCHED_TICK", third.Type)
	}
}

func TestEventQueueStableOnTies(t *testing.T) {
	q := &eventQueue{}
	heap.Init(q)

	heap.Push(q, Event{TimestampUs: 10, Priority: 1, ThreadID: 1, seq: 5})
	heap.Push(q, Event{TimestampUs: 10, Priority: 1, ThreadID: 2, seq: 3})

	first := heap.Pop(q).(Event)
	if first.ThreadID != 2 {
		t.Fatalf("first popped event threadID = %d, want 2 (lower seq wins full ties)", first.ThreadID)
	}
}
