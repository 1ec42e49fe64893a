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

package tracedata

import "testing"

func TestLogUnboundedRetainsEverything(t *testing.T) {
	l := NewLog(0)
	for i := 0; i < 5; i++ {
		l.Append(Event{TimestampUs: uint64(i), Kind: EventSchedTick})
	}
	if got := len(l.Entries()); got != 5 {
		t.Fatalf("len(Entries()) = %d, want 5", got)
	}
	if l.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", l.Dropped())
	}
}

func TestLogCappedEvictsOldest(t *testing.T) {
	l := NewLog(3)
	for i := 0; i < 5; i++ {
		l.Append(Event{TimestampUs: uint64(i), Kind: EventSchedTick})
	}

	entries := l.Entries()
	if len(entries) != 3 {
		t.Fatalf("len(Entries()) = %d, want 3", len(entries))
	}
	want := []uint64{2, 3, 4}
	for i, e := range entries {
		if e.TimestampUs != want[i] {
			t.Errorf("Entries()[%d].TimestampUs = %d, want %d", i, e.TimestampUs, want[i])
		}
	}
	if l.Total() != 5 {
		t.Errorf("Total() = %d, want 5", l.Total())
	}
	if l.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", l.Dropped())
	}
}

func TestEventStringIncludesFields(t *testing.T) {
	e := Event{TimestampUs: 42, Kind: EventThreadDispatched, CPU: 1, ThreadName: "worker", Detail: "preempted idle"}
	s := e.String()
	for _, want := range []string{"42us", "THREAD_DISPATCHED", "CPU1", "worker", "preempted idle"} {
		if !contains(s, want) {
			t.Errorf("Event.String() = %q, want substring %q", s, want)
		}
	}
}

func TestRecordInternsThreadName(t *testing.T) {
	l := NewLog(0)
	l.Record(10, EventThreadDispatched, 0, "worker-1", "initial dispatch")
	l.Record(20, EventThreadBlocked, 0, "worker-1", "")

	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(entries))
	}
	if entries[0].ThreadNameID != entries[1].ThreadNameID {
		t.Errorf("ThreadNameID = %d and %d, want equal for the same name", entries[0].ThreadNameID, entries[1].ThreadNameID)
	}
	if got, err := l.Names.Lookup(entries[0].ThreadNameID); err != nil || got != "worker-1" {
		t.Errorf("Names.Lookup(%d) = (%q, %v), want (worker-1, nil)", entries[0].ThreadNameID, got, err)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
