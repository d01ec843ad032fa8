package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gopherjs/smtrace/internal/cache"
	"github.com/gopherjs/smtrace/internal/document"
	"github.com/gopherjs/smtrace/internal/metrics"
	"github.com/gopherjs/smtrace/mappings"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/singleflight"
)

// traceServer answers trace queries over HTTP for the maps in a directory.
// Maps are loaded on first use and kept in memory.
type traceServer struct {
	dir     string
	cache   *cache.MapCache
	metrics *metrics.Metrics

	loads singleflight.Group
	mu    sync.RWMutex
	docs  map[string]*document.Document
}

func newTraceServer(dir string, mc *cache.MapCache, m *metrics.Metrics) *traceServer {
	return &traceServer{dir: dir, cache: mc, metrics: m, docs: map[string]*document.Document{}}
}

var errBadMapName = errors.New("invalid map name")

// document returns the loaded map called name, loading it if needed.
// Concurrent requests for the same map share one load.
func (s *traceServer) document(name string) (*document.Document, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", errBadMapName, name)
	}
	s.mu.RLock()
	d, ok := s.docs[name]
	s.mu.RUnlock()
	if ok {
		return d, nil
	}

	v, err, _ := s.loads.Do(name, func() (any, error) {
		start := time.Now()
		d, err := document.Load(filepath.Join(s.dir, name), s.cache)
		if err != nil {
			return nil, err
		}
		s.metrics.MapsDecoded.Inc()
		s.metrics.DecodeDuration.Observe(time.Since(start).Seconds())
		s.mu.Lock()
		s.docs[name] = d
		s.metrics.MapsLoaded.Set(float64(len(s.docs)))
		s.mu.Unlock()
		log.Infof("Loaded map %q: %d lines, %d segments.", name, d.Mappings.LineCount(), d.Mappings.SegmentCount())
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*document.Document), nil
}

// traceResponse is the JSON body of a /trace answer. Positions are 1-based.
type traceResponse struct {
	Found   bool   `json:"found"`
	Mapped  bool   `json:"mapped"`
	Source  string `json:"source,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Name    string `json:"name,omitempty"`
	Segment []int  `json:"segment,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *traceServer) handleTrace(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	line, err1 := strconv.Atoi(q.Get("line"))
	column, err2 := strconv.Atoi(q.Get("column"))
	if err := errors.Join(err1, err2); err != nil || line < 1 || column < 1 {
		s.metrics.TraceQueries.WithLabelValues(metrics.ResultError).Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "line and column must be positive integers"})
		return
	}

	d, err := s.document(q.Get("map"))
	if err != nil {
		s.metrics.TraceQueries.WithLabelValues(metrics.ResultError).Inc()
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, errBadMapName):
			status = http.StatusBadRequest
		case errors.Is(err, os.ErrNotExist):
			status = http.StatusNotFound
		case errors.Is(err, mappings.ErrMalformedMapping), errors.Is(err, document.ErrUnsupportedVersion):
			status = http.StatusUnprocessableEntity
		}
		log.Debugf("Trace request %q failed: %v", r.URL.RawQuery, err)
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	p, found := d.Trace(line-1, column-1)
	if !found {
		s.metrics.TraceQueries.WithLabelValues(metrics.ResultNotFound).Inc()
		writeJSON(w, http.StatusOK, traceResponse{})
		return
	}
	s.metrics.TraceQueries.WithLabelValues(metrics.ResultFound).Inc()
	resp := traceResponse{Found: true, Segment: p.Segment.Fields()}
	if p.Segment.Kind != mappings.Gap {
		resp.Mapped = true
		resp.Source = p.Source
		resp.Line = p.Line + 1
		resp.Column = p.Column + 1
		resp.Name = p.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warningf("Failed to write response: %v", err)
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// countRequests wraps h to record every request in the HTTP metrics.
func (s *traceServer) countRequests(path string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		s.metrics.HTTPRequests.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
	})
}

func (s *traceServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /trace", s.countRequests("/trace", http.HandlerFunc(s.handleTrace)))
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer trace queries over HTTP",
		Long: `serve starts an HTTP server answering

  GET /trace?map=NAME&line=LINE&column=COLUMN

for source map files named NAME in serve.mapsDir, with 1-based positions.
Prometheus metrics are exported at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newTraceServer(a.cfg.Serve.MapsDir, a.cache, metrics.New())
			srv := &http.Server{
				Addr:              a.cfg.Serve.Addr,
				Handler:           s.handler(),
				ReadHeaderTimeout: a.cfg.Serve.ReadTimeout,
				ReadTimeout:       a.cfg.Serve.ReadTimeout,
			}

			ctx := cmd.Context()
			errCh := make(chan error, 1)
			go func() {
				log.Infof("Serving maps from %s on http://%s.", a.cfg.Serve.MapsDir, a.cfg.Serve.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			log.Infof("Shutting down.")
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
