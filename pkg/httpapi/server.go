// Package httpapi implements the management HTTP/JSON surface: cluster
// and host resources, membership, and rolling restart/upgrade
// initiation. Handlers mutate the KV store synchronously and never call
// back into the background workers except to enqueue or spawn work.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/commissaire/commissaire/pkg/clusterexec"
	"github.com/commissaire/commissaire/pkg/kv"
	"github.com/commissaire/commissaire/pkg/log"
	"github.com/commissaire/commissaire/pkg/metrics"
	"github.com/commissaire/commissaire/pkg/queue"
)

// Server is the management HTTP API.
type Server struct {
	store    kv.Store
	queue    *queue.InvestigateQueue
	execPool *clusterexec.Pool
	logger   zerolog.Logger
	router   *mux.Router
}

// New builds a Server and wires its routes.
func New(store kv.Store, q *queue.InvestigateQueue, execPool *clusterexec.Pool) *Server {
	s := &Server{
		store:    store,
		queue:    q,
		execPool: execPool,
		logger:   log.WithComponent("httpapi"),
	}
	s.router = s.newRouter()
	return s
}

// Router returns the http.Handler to mount, already wrapped with metrics
// instrumentation. Requests are not logged.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("http api listening")
	return server.ListenAndServe()
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrumentRoute)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/clusters", s.handleListClusters).Methods(http.MethodGet)
	r.HandleFunc("/cluster/{name}", s.handleGetCluster).Methods(http.MethodGet)
	r.HandleFunc("/cluster/{name}", s.handlePutCluster).Methods(http.MethodPut)
	r.HandleFunc("/cluster/{name}", s.handleDeleteCluster).Methods(http.MethodDelete)
	r.HandleFunc("/cluster/{name}/hosts", s.handleGetClusterHosts).Methods(http.MethodGet)
	r.HandleFunc("/cluster/{name}/hosts", s.handlePutClusterHosts).Methods(http.MethodPut)
	r.HandleFunc("/cluster/{name}/hosts/{address}", s.handleGetClusterHost).Methods(http.MethodGet)
	r.HandleFunc("/cluster/{name}/hosts/{address}", s.handlePutClusterHost).Methods(http.MethodPut)
	r.HandleFunc("/cluster/{name}/hosts/{address}", s.handleDeleteClusterHost).Methods(http.MethodDelete)
	r.HandleFunc("/cluster/{name}/restart", s.handleGetClusterRestart).Methods(http.MethodGet)
	r.HandleFunc("/cluster/{name}/restart", s.handlePutClusterRestart).Methods(http.MethodPut)
	r.HandleFunc("/cluster/{name}/upgrade", s.handleGetClusterUpgrade).Methods(http.MethodGet)
	r.HandleFunc("/cluster/{name}/upgrade", s.handlePutClusterUpgrade).Methods(http.MethodPut)

	r.HandleFunc("/hosts", s.handleListHosts).Methods(http.MethodGet)
	r.HandleFunc("/host/{address}", s.handleGetHost).Methods(http.MethodGet)
	r.HandleFunc("/host/{address}", s.handlePutHost).Methods(http.MethodPut)
	r.HandleFunc("/host/{address}", s.handleDeleteHost).Methods(http.MethodDelete)

	return r
}

// instrumentRoute records request count and latency per matched route
// template, so /cluster/{name} aggregates regardless of which cluster
// was named.
func (s *Server) instrumentRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeTemplate(r)
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		timer.ObserveDurationVec(metrics.HTTPRequestDuration, route)
		metrics.HTTPRequestsTotal.WithLabelValues(route, http.StatusText(rec.status)).Inc()
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the response body with the given status code.
// A nil v is encoded as null.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeEmpty writes status with an empty JSON object body, the
// convention this API uses for error responses and for successful
// responses that carry no record.
func writeEmpty(w http.ResponseWriter, status int) {
	writeJSON(w, status, map[string]string{})
}
