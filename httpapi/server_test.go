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

package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/clutchsched/sched"
	"github.com/google/clutchsched/simulator"
)

func checkStatusCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status code = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

func checkContentType(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	if got := rec.Header().Get("Content-Type"); got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
}

func newTestEngine() *simulator.Engine {
	e := simulator.NewEngine(1, 1)
	tg := e.Scheduler.NewThreadGroup("g")
	th := e.Scheduler.NewThread(tg, sched.NewThreadParams{Name: "worker", BasePri: sched.BasePriForeground})
	e.Scheduler.ThreadSetrun(th, 0, sched.OptTailQ)
	return e
}

func TestGetProcessorsRoute(t *testing.T) {
	r := NewRouter(&InspectionService{Engine: newTestEngine()})
	req := httptest.NewRequest(http.MethodGet, "/api/processors", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	checkStatusCode(t, rec, http.StatusOK)
	checkContentType(t, rec, "application/json")

	var res ProcessorsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(res.Processors) != 1 {
		t.Errorf("len(Processors) = %d, want 1", len(res.Processors))
	}
}

func TestGetThreadRouteUnknownTID(t *testing.T) {
	r := NewRouter(&InspectionService{Engine: newTestEngine()})
	req := httptest.NewRequest(http.MethodGet, "/api/thread/999", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	checkStatusCode(t, rec, http.StatusNotFound)
}

func TestGetThreadRouteInvalidTID(t *testing.T) {
	r := NewRouter(&InspectionService{Engine: newTestEngine()})
	req := httptest.NewRequest(http.MethodGet, "/api/thread/not-a-number", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	checkStatusCode(t, rec, http.StatusBadRequest)
}

func TestGetClutchBucketsRouteFound(t *testing.T) {
	e := newTestEngine()
	tg := e.Scheduler.AllThreadGroups[0]

	r := NewRouter(&InspectionService{Engine: e})
	req := httptest.NewRequest(http.MethodGet, "/api/clutch_buckets/0", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	checkStatusCode(t, rec, http.StatusOK)

	var res ClutchBucketsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if res.ThreadGroupID != tg.ID {
		t.Errorf("ThreadGroupID = %d, want %d", res.ThreadGroupID, tg.ID)
	}
	if len(res.Buckets) != sched.SchedBucketMax {
		t.Errorf("len(Buckets) = %d, want %d", len(res.Buckets), sched.SchedBucketMax)
	}
}

func TestGetTraceRoute(t *testing.T) {
	e := newTestEngine()
	// The trace is written by the engine's event handlers, so register the
	// thread with the engine to give the run events to record.
	e.AddThread(e.Scheduler.AllThreads[0], simulator.DefaultBehaviorProfile(), 0)
	e.Run(5000)

	r := NewRouter(&InspectionService{Engine: e})
	req := httptest.NewRequest(http.MethodGet, "/api/trace", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	checkStatusCode(t, rec, http.StatusOK)

	var res TraceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(res.Entries) == 0 {
		t.Errorf("len(Entries) = 0, want events recorded from a 5000us run")
	}
}

func TestGetSummaryRoute(t *testing.T) {
	e := newTestEngine()
	e.Run(10000)

	r := NewRouter(&InspectionService{Engine: e})
	req := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	checkStatusCode(t, rec, http.StatusOK)

	var res SummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if res.SimulationDurationUs == 0 {
		t.Errorf("SimulationDurationUs = 0, want > 0 after Run(10000)")
	}
	if res.Summary == "" {
		t.Errorf("Summary = \"\", want a non-empty report")
	}
}
