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
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies a core error per the taxonomy in spec §7.
type ErrorKind int

const (
	// ErrUnknownID means a TID or processor ID was not found in the
	// ProcessorSet.
	ErrUnknownID ErrorKind = iota
	// ErrIllegalTransition means the caller requested a state transition the
	// façade does not permit (e.g. thread_block on a non-owning processor).
	ErrIllegalTransition
)

// Error is the core's error type. It carries both a Kind for programmatic
// callers and a gRPC status code for callers that want to surface it over a
// transport, mirroring how analysis.Collection's public methods in the
// teacher package return status.Errorf-wrapped errors.
type Error struct {
	Kind ErrorKind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// GRPCStatus lets callers recover a *status.Status via status.FromError.
func (e *Error) GRPCStatus() *status.Status {
	switch e.Kind {
	case ErrUnknownID:
		return status.New(codes.NotFound, e.msg)
	case ErrIllegalTransition:
		return status.New(codes.FailedPrecondition, e.msg)
	default:
		return status.New(codes.Internal, e.msg)
	}
}

func errUnknownTID(tid ThreadID) error {
	return &Error{Kind: ErrUnknownID, msg: fmt.Sprintf("unknown thread id %d", tid)}
}

func errUnknownProcessor(id int) error {
	return &Error{Kind: ErrUnknownID, msg: fmt.Sprintf("unknown processor id %d", id)}
}

func errUnknownThreadGroup(id ThreadGroupID) error {
	return &Error{Kind: ErrUnknownID, msg: fmt.Sprintf("unknown thread group id %d", id)}
}

func errIllegalTransition(format string, args ...interface{}) error {
	return &Error{Kind: ErrIllegalTransition, msg: fmt.Sprintf(format, args...)}
}
