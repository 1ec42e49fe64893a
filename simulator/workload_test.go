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
	"math/rand"
	"testing"

	"github.com/google/clutchsched/sched"
)

func TestCreateWorkloadAssignsBucketByMode(t *testing.T) {
	pset := sched.NewProcessorSet(0, 2)
	s := sched.NewScheduler(pset, false)

	result := CreateWorkload(s, WorkloadProfile{
		Name: "audio", ThreadGroupName: "DAW", NumThreads: 1,
		SchedMode: sched.ModeRealtime, BasePri: sched.BasePriRealtime,
		Behavior: BehaviorProfile{RTPeriodUs: 1000, RTComputationUs: 100, RTConstraintUs: 200},
	})

	if len(result.Threads) != 1 {
		t.Fatalf("len(Threads) = %d, want 1", len(result.Threads))
	}
	if got := result.Threads[0].SchedBucket; got != sched.BucketFixpri {
		t.Errorf("realtime thread bucket = %d, want BucketFixpri (%d)", got, sched.BucketFixpri)
	}
}

func TestSampleCPUBurstWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := BehaviorProfile{AvgCPUBurstUs: 1000, CPUBurstVariance: 0.2}

	for i := 0; i < 100; i++ {
		got := b.SampleCPUBurst(rng)
		if got < 700 || got > 1300 {
			t.Fatalf("SampleCPUBurst() = %d, want within [700, 1300]", got)
		}
	}
}

func TestScenariosRegistryNonEmpty(t *testing.T) {
	for name, ctor := range Scenarios {
		profiles := ctor()
		if len(profiles) == 0 {
			t.Errorf("scenario %q produced no workload profiles", name)
		}
	}
}
