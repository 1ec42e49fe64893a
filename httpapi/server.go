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
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/clutchsched/sched"
)

const err500 = "Internal Server Error"

// gzipEnabledWriter wraps w in a gzip writer when the client advertises
// gzip support, returning a closing function that must run before the
// response is considered complete.
func gzipEnabledWriter(req *http.Request, w http.ResponseWriter) (io.Writer, func() error) {
	if strings.Contains(req.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
		gzw := gzip.NewWriter(w)
		return gzw, gzw.Close
	}
	return w, func() error { return nil }
}

func sendStructHTTPResponse(req *http.Request, res interface{}, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	writer, closer := gzipEnabledWriter(req, w)
	defer func() { _ = closer() }()
	if err := json.NewEncoder(writer).Encode(res); err != nil {
		http.Error(w, err500, http.StatusInternalServerError)
	}
}

// handler adapts an InspectionService to gorilla/mux routes. Every route
// is a GET: the service it wraps is read-only, so there is no upload or
// mutation surface to guard.
type handler struct {
	svc *InspectionService
}

// NewRouter builds a mux.Router exposing svc's inspection queries over
// HTTP, in the style of server.registerAPIService.
func NewRouter(svc *InspectionService) *mux.Router {
	h := &handler{svc: svc}
	r := mux.NewRouter()
	r.HandleFunc("/api/processors", h.handleGetProcessors).Methods(http.MethodGet)
	r.HandleFunc("/api/threads", h.handleGetThreads).Methods(http.MethodGet)
	r.HandleFunc("/api/thread/{tid}", h.handleGetThread).Methods(http.MethodGet)
	r.HandleFunc("/api/clutch_bucket_groups/{thread_group_id}", h.handleGetClutchBucketGroups).Methods(http.MethodGet)
	r.HandleFunc("/api/clutch_buckets/{thread_group_id}", h.handleGetClutchBuckets).Methods(http.MethodGet)
	r.HandleFunc("/api/root_buckets", h.handleGetRootBuckets).Methods(http.MethodGet)
	r.HandleFunc("/api/summary", h.handleGetSummary).Methods(http.MethodGet)
	r.HandleFunc("/api/trace", h.handleGetTrace).Methods(http.MethodGet)
	return r
}

func (h *handler) handleGetProcessors(w http.ResponseWriter, req *http.Request) {
	res, err := h.svc.GetProcessors(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendStructHTTPResponse(req, res, w)
}

func (h *handler) handleGetThreads(w http.ResponseWriter, req *http.Request) {
	res, err := h.svc.GetThreads(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendStructHTTPResponse(req, res, w)
}

func (h *handler) handleGetThread(w http.ResponseWriter, req *http.Request) {
	tid, err := strconv.Atoi(mux.Vars(req)["tid"])
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid tid: %s", err), http.StatusBadRequest)
		return
	}
	res, err := h.svc.GetThread(req.Context(), &ThreadRequest{TID: sched.ThreadID(tid)})
	if err != nil {
		writeLookupError(w, err)
		return
	}
	sendStructHTTPResponse(req, res, w)
}

func (h *handler) handleGetClutchBucketGroups(w http.ResponseWriter, req *http.Request) {
	tgID, err := strconv.Atoi(mux.Vars(req)["thread_group_id"])
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid thread_group_id: %s", err), http.StatusBadRequest)
		return
	}
	res, err := h.svc.GetClutchBucketGroups(req.Context(), &ThreadGroupRequest{ThreadGroupID: sched.ThreadGroupID(tgID)})
	if err != nil {
		writeLookupError(w, err)
		return
	}
	sendStructHTTPResponse(req, res, w)
}

func (h *handler) handleGetClutchBuckets(w http.ResponseWriter, req *http.Request) {
	tgID, err := strconv.Atoi(mux.Vars(req)["thread_group_id"])
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid thread_group_id: %s", err), http.StatusBadRequest)
		return
	}
	res, err := h.svc.GetClutchBuckets(req.Context(), &ThreadGroupRequest{ThreadGroupID: sched.ThreadGroupID(tgID)})
	if err != nil {
		writeLookupError(w, err)
		return
	}
	sendStructHTTPResponse(req, res, w)
}

func (h *handler) handleGetRootBuckets(w http.ResponseWriter, req *http.Request) {
	res, err := h.svc.GetRootBuckets(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendStructHTTPResponse(req, res, w)
}

func (h *handler) handleGetSummary(w http.ResponseWriter, req *http.Request) {
	res, err := h.svc.GetSummary(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendStructHTTPResponse(req, res, w)
}

func (h *handler) handleGetTrace(w http.ResponseWriter, req *http.Request) {
	res, err := h.svc.GetTrace(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendStructHTTPResponse(req, res, w)
}

// writeLookupError maps a sched lookup error's gRPC status code to the
// matching HTTP status, falling back to 500 for anything unrecognized.
func writeLookupError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.NotFound:
			code = http.StatusNotFound
		case codes.FailedPrecondition:
			code = http.StatusPreconditionFailed
		}
	}
	http.Error(w, err.Error(), code)
}
