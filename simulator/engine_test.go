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
	"context"
	"testing"

	"github.com/google/clutchsched/sched"
)

func TestEngineRunDispatchesWork(t *testing.T) {
	e := NewEngine(2, 1)

	result := CreateWorkload(e.Scheduler, WorkloadProfile{
		Name:            "worker",
		ThreadGroupName: "TestApp",
		NumThreads:      2,
		BasePri:         sched.BasePriDefault,
		Behavior:        DefaultBehaviorProfile(),
	})
	for i, th := range result.Threads {
		e.AddThread(th, result.Behaviors[i], 0)
	}

	e.Run(1_000_000)

	if e.Stats.TotalContextSwitches == 0 {
		t.Errorf("TotalContextSwitches = 0, want > 0 after a 1s run with runnable work")
	}
	if e.Stats.WakeupCount == 0 {
		t.Errorf("WakeupCount = 0, want > 0")
	}
	for _, th := range result.Threads {
		if th.TotalCPUUs == 0 {
			t.Errorf("thread %s accumulated no CPU time over a 1s run", th.Name)
		}
	}
}

func TestEngineRTWorkloadAccumulatesCPUTime(t *testing.T) {
	e := NewEngine(1, 2)

	rt := CreateWorkload(e.Scheduler, WorkloadProfile{
		Name:            "audio",
		ThreadGroupName: "RTApp",
		NumThreads:      1,
		SchedMode:       sched.ModeRealtime,
		BasePri:         sched.BasePriRealtime,
		Behavior: BehaviorProfile{
			RTPeriodUs:      10000,
			RTComputationUs: 2000,
			RTConstraintUs:  3000,
		},
	})
	for i, th := range rt.Threads {
		e.AddThread(th, rt.Behaviors[i], 0)
	}

	e.Run(200_000)

	thread := rt.Threads[0]
	if thread.TotalCPUUs == 0 {
		t.Fatalf("RT thread accumulated no CPU time")
	}
	if e.Stats.TotalPreemptions < 0 {
		t.Fatalf("TotalPreemptions went negative")
	}
}

func TestAddWorkloadsConcurrent(t *testing.T) {
	e := NewEngine(4, 3)

	profiles := MixedWorkload()
	results, err := e.AddWorkloads(context.Background(), profiles, 0)
	if err != nil {
		t.Fatalf("AddWorkloads: unexpected error %v", err)
	}
	if len(results) != len(profiles) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(profiles))
	}

	total := 0
	for i, r := range results {
		if len(r.Threads) != profiles[i].NumThreads {
			t.Errorf("profile %d: got %d threads, want %d", i, len(r.Threads), profiles[i].NumThreads)
		}
		total += len(r.Threads)
	}
	if len(e.Scheduler.AllThreads) != total {
		t.Errorf("scheduler registered %d threads, want %d", len(e.Scheduler.AllThreads), total)
	}
}
