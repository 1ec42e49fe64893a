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

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/clutchsched/testhelpers"
)

func TestErrUnknownTIDGRPCStatus(t *testing.T) {
	err := errUnknownTID(42)
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("status.FromError(%v) ok = false, want true", err)
	}
	if st.Code() != codes.NotFound {
		t.Errorf("code = %v, want codes.NotFound", st.Code())
	}
}

func TestErrIllegalTransitionGRPCStatus(t *testing.T) {
	err := errIllegalTransition("thread %d is not runnable", 7)
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("status.FromError(%v) ok = false, want true", err)
	}
	if st.Code() != codes.FailedPrecondition {
		t.Errorf("code = %v, want codes.FailedPrecondition", st.Code())
	}
}

func TestSchedulerLookupErrors(t *testing.T) {
	ps := NewProcessorSet(0, 1)
	s := NewScheduler(ps, false)

	if _, err := s.ThreadByID(999); !testhelpers.ErrorContains(err, "unknown thread id 999") {
		t.Errorf("ThreadByID(999) error = %v, want message containing %q", err, "unknown thread id 999")
	}
	if _, err := s.ProcessorByID(999); !testhelpers.ErrorContains(err, "unknown processor id 999") {
		t.Errorf("ProcessorByID(999) error = %v, want message containing %q", err, "unknown processor id 999")
	}

	tg := s.NewThreadGroup("tg")
	th := s.NewThread(tg, NewThreadParams{BasePri: BasePriDefault})
	got, err := s.ThreadByID(th.TID)
	if err != nil || got != th {
		t.Errorf("ThreadByID(%d) = %v, %v, want %v, nil", th.TID, got, err, th)
	}
}
