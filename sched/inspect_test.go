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

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/google/clutchsched/testhelpers"
)

func TestProcessorsReflectsActiveThread(t *testing.T) {
	s := newTestScheduler(1)
	tg := s.NewThreadGroup("g")
	th := s.NewThread(tg, NewThreadParams{BasePri: BasePriDefault})

	p := s.ThreadSetrun(th, 0, OptTailQ)
	selected, _ := s.ThreadSelect(p, 0, nil)
	s.ThreadDispatch(p, nil, selected, 0, "start")

	snaps := s.Processors()
	if len(snaps) != 1 {
		t.Fatalf("len(Processors()) = %d, want 1", len(snaps))
	}
	if !snaps[0].HasActiveThread || snaps[0].ActiveThreadID != th.TID {
		t.Errorf("Processors()[0] = %+v, want active thread %d", snaps[0], th.TID)
	}
}

func TestThreadSnapshotByIDUnknown(t *testing.T) {
	s := newTestScheduler(1)
	if _, err := s.ThreadSnapshotByID(999); !testhelpers.ErrorContains(err, "unknown thread id 999") {
		t.Errorf("ThreadSnapshotByID(999) error = %v, want message containing %q", err, "unknown thread id 999")
	}
}

func TestClutchBucketGroupsCoverEveryBucket(t *testing.T) {
	s := newTestScheduler(1)
	tg := s.NewThreadGroup("g")

	snaps, err := s.ClutchBucketGroups(tg.ID)
	if err != nil {
		t.Fatalf("ClutchBucketGroups() error = %v", err)
	}
	if len(snaps) != SchedBucketMax {
		t.Fatalf("len(ClutchBucketGroups()) = %d, want %d", len(snaps), SchedBucketMax)
	}
	for _, snap := range snaps {
		if snap.InteractivityScore != initialInteractivity {
			t.Errorf("bucket %d InteractivityScore = %d, want %d (fresh group)", snap.Bucket, snap.InteractivityScore, initialInteractivity)
		}
	}
}

func TestClutchBucketGroupsUnknownThreadGroup(t *testing.T) {
	s := newTestScheduler(1)
	if _, err := s.ClutchBucketGroups(999); !testhelpers.ErrorContains(err, "unknown thread group id 999") {
		t.Errorf("ClutchBucketGroups(999) error = %v, want message containing %q", err, "unknown thread group id 999")
	}
}

func TestClutchBucketsReflectEnqueuedPriority(t *testing.T) {
	s := newTestScheduler(1)
	tg := s.NewThreadGroup("g")
	th := s.NewThread(tg, NewThreadParams{BasePri: BasePriForeground})
	s.ThreadSetrun(th, 0, OptTailQ)

	snaps, err := s.ClutchBuckets(tg.ID)
	if err != nil {
		t.Fatalf("ClutchBuckets() error = %v", err)
	}

	var found bool
	for _, snap := range snaps {
		if snap.Bucket == BucketFG {
			found = true
			if snap.ThreadCount != 1 {
				t.Errorf("FG bucket ThreadCount = %d, want 1", snap.ThreadCount)
			}
			if snap.Priority <= 0 {
				t.Errorf("FG bucket Priority = %d, want > 0 with one thread enqueued", snap.Priority)
			}
		}
	}
	if !found {
		t.Fatalf("ClutchBuckets() did not include bucket %d", BucketFG)
	}
}

func TestThreadsListsEveryRegisteredThread(t *testing.T) {
	s := newTestScheduler(1)
	tg := s.NewThreadGroup("g")
	a := s.NewThread(tg, NewThreadParams{Name: "a", BasePri: BasePriDefault})
	b := s.NewThread(tg, NewThreadParams{Name: "b", BasePri: BasePriForeground})

	want := []ThreadSnapshot{threadSnapshot(a), threadSnapshot(b)}
	got := s.Threads()

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Threads() mismatch (-want +got):\n%s", diff)
	}
}

func TestRootBucketsReportsRunnability(t *testing.T) {
	s := newTestScheduler(1)
	tg := s.NewThreadGroup("g")
	th := s.NewThread(tg, NewThreadParams{BasePri: BasePriForeground})
	s.ThreadSetrun(th, 0, OptTailQ)

	snaps := s.RootBuckets()

	var fgSnap *RootBucketSnapshot
	for i := range snaps {
		if snaps[i].Bucket == BucketFG && !snaps[i].Bound {
			fgSnap = &snaps[i]
		}
	}
	if fgSnap == nil {
		t.Fatalf("RootBuckets() missing unbound FG entry")
	}
	if !fgSnap.Runnable {
		t.Errorf("unbound FG root bucket Runnable = false, want true after enqueueing a thread")
	}
}
