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
// Command clutchsim runs a discrete-event Clutch scheduler simulation and
// optionally serves its scheduler snapshots, trace log and stats summary
// over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"

	log "github.com/golang/glog"

	"github.com/google/clutchsched/httpapi"
	"github.com/google/clutchsched/simulator"
)

var (
	numCPUs      = flag.Int("num_cpus", 4, "Number of processors in the simulated system.")
	durationUs   = flag.Uint64("duration_us", 1000000, "Simulated duration, in microseconds.")
	seed         = flag.Int64("seed", 1, "Seed for the workload behavior RNG.")
	workloadName = flag.String("workload", "desktop_day", "Built-in workload mix to run.")
	port         = flag.Int("port", 7403, "HTTP port to serve inspection routes on; 0 disables the server.")
)

var workloads = map[string]func() []simulator.WorkloadProfile{
	"interactive_app":     simulator.InteractiveAppWorkload,
	"background_compile":  simulator.BackgroundCompileWorkload,
	"media_playback":      simulator.MediaPlaybackWorkload,
	"mixed":               simulator.MixedWorkload,
	"starvation_test":     simulator.StarvationTestWorkload,
	"warp_demo":           simulator.WarpDemoWorkload,
	"desktop_day":         simulator.DesktopDayWorkload,
	"rt_studio":           simulator.RTStudioWorkload,
	"fixed_priority_service": simulator.FixedPriorityServiceWorkload,
	"cpu_storm":           simulator.CPUStormWorkload,
}

func runSimulation(ctx context.Context) (*simulator.Engine, error) {
	profiles, ok := workloads[*workloadName]
	if !ok {
		return nil, fmt.Errorf("unknown workload %q", *workloadName)
	}

	e := simulator.NewEngine(*numCPUs, *seed)
	if _, err := e.AddWorkloads(ctx, profiles(), 0); err != nil {
		return nil, fmt.Errorf("failed to instantiate workload %q: %s", *workloadName, err)
	}

	e.Run(*durationUs)
	return e, nil
}

func main() {
	flag.Parse()
	ctx := context.Background()

	e, err := runSimulation(ctx)
	if err != nil {
		log.Exit(err)
	}

	fmt.Println(e.Stats.Summary())

	if *port == 0 {
		return
	}

	r := httpapi.NewRouter(&httpapi.InspectionService{Engine: e})
	log.Infof("serving inspection routes on :%d", *port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", *port), r); err != nil {
		log.Exit(err)
	}
}
