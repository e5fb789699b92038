package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/assaf/reliable-msg/internal/config"
	"github.com/assaf/reliable-msg/internal/errs"
	"github.com/assaf/reliable-msg/internal/manager"
)

// Server exposes a *manager.Manager over HTTP+JSON, access-controlled
// by an allow/deny ACL.
type Server struct {
	mgr   *manager.Manager
	log   *slog.Logger
	acl   atomic.Pointer[config.ACL]
	trace bool
}

// NewServer builds a Server for mgr. acl may be nil, in which case
// every remote address is allowed (suitable for an in-process/loopback
// deployment with no explicit ACL configured).
func NewServer(mgr *manager.Manager, acl *config.ACL, log *slog.Logger, tracingEnabled bool) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{mgr: mgr, log: log, trace: tracingEnabled}
	s.acl.Store(acl)
	return s
}

// SetACL swaps the ACL consulted by withACL. Safe to call while the
// server is handling concurrent requests; callers never see a
// partially-updated ACL.
func (s *Server) SetACL(acl *config.ACL) {
	s.acl.Store(acl)
}

// Handler returns the server's http.Handler, wrapped in access
// logging, ACL enforcement, and (if enabled) tracing instrumentation.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/put", s.handlePut)
	mux.HandleFunc("/publish", s.handlePublish)
	mux.HandleFunc("/list", s.handleList)
	mux.HandleFunc("/dequeue", s.handleDequeue)
	mux.HandleFunc("/retrieve", s.handleRetrieve)
	mux.HandleFunc("/begin", s.handleBegin)
	mux.HandleFunc("/commit", s.handleCommit)
	mux.HandleFunc("/abort", s.handleAbort)
	mux.HandleFunc("/stats", s.handleStats)

	var h http.Handler = mux
	h = s.withACL(h)
	h = withAccessLog(s.log, h)
	if s.trace {
		h = otelhttp.NewHandler(h, "queuemgr")
	}
	return h
}

func (s *Server) withACL(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if acl := s.acl.Load(); acl != nil && !acl.Allowed(r.RemoteAddr) {
			s.log.Warn("acl_rejected", slog.String("remote_addr", r.RemoteAddr))
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := string(errs.KindInvalidArgument)
	if k, ok := errs.As(err); ok {
		kind = string(k)
	}
	status := http.StatusBadRequest
	switch kind {
	case string(errs.KindNoSuchTransaction):
		status = http.StatusNotFound
	case string(errs.KindStoreUnavailable), string(errs.KindStoreCorrupt), string(errs.KindTransactionAborted):
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorWire{Kind: kind, Detail: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// lowercaseDest lowercases destination names before use.
func lowercaseDest(s string) string { return strings.ToLower(s) }

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	var req putRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidArgument, err, "decode put request"))
		return
	}
	id, err := s.mgr.Put(lowercaseDest(req.Queue), req.Body, req.Headers, req.Tid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, putResponse{ID: id})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidArgument, err, "decode publish request"))
		return
	}
	id, err := s.mgr.Publish(lowercaseDest(req.Topic), req.Body, req.Headers, req.Tid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, publishResponse{ID: id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidArgument, err, "decode list request"))
		return
	}
	headers, err := s.mgr.List(lowercaseDest(req.Queue))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, listResponse{Headers: headers})
}

func (s *Server) handleDequeue(w http.ResponseWriter, r *http.Request) {
	var req dequeueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidArgument, err, "decode dequeue request"))
		return
	}
	sel, err := decodeSelector(req.Selector)
	if err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidArgument, err, "decode selector"))
		return
	}
	msg, err := s.mgr.Dequeue(lowercaseDest(req.Queue), sel, req.Tid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, dequeueResponse{Message: encodeMessage(msg)})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidArgument, err, "decode retrieve request"))
		return
	}
	sel, err := decodeSelector(req.Selector)
	if err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidArgument, err, "decode selector"))
		return
	}
	msg, err := s.mgr.Retrieve(lowercaseDest(req.Topic), req.SeenID, sel, req.Tid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, retrieveResponse{Message: encodeMessage(msg)})
}

func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidArgument, err, "decode begin request"))
		return
	}
	tid, err := s.mgr.Begin(time.Duration(req.TimeoutSec * float64(time.Second)))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, beginResponse{Tid: tid})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req tidRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidArgument, err, "decode commit request"))
		return
	}
	if err := s.mgr.Commit(req.Tid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, emptyResponse{})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	var req tidRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidArgument, err, "decode abort request"))
		return
	}
	if err := s.mgr.Abort(req.Tid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, emptyResponse{})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var req statsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidArgument, err, "decode stats request"))
		return
	}
	stats, err := s.mgr.Stats(req.Queues)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]queueStatsWire, len(stats))
	for i, st := range stats {
		out[i] = queueStatsWire{Queue: st.Queue, Ready: st.Ready, Locked: st.Locked, OldestAgeSec: st.OldestAgeSec}
	}
	writeJSON(w, statsResponse{Queues: out})
}
