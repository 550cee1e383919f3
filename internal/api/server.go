// Package api serves read-only HTTP endpoints: metrics, the snapshot, parameter details and the
// write journal. Writes stay on the command line where they can be confirmed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/tetragramaton/seplos-go/internal/audit"
	"github.com/tetragramaton/seplos-go/internal/register"
	"github.com/tetragramaton/seplos-go/internal/store"
)

type Service interface {
	Map() *register.Map
	GetSnapshot() store.Snapshot
}

type History interface {
	Recent(ctx context.Context, name string, limit int) ([]audit.Entry, error)
}

type Server struct {
	svc      Service
	history  History
	gatherer prometheus.Gatherer
	log      logrus.FieldLogger
	srv      *http.Server
}

// New builds the server. history may be nil when the journal is disabled.
func New(listen string, svc Service, history History, gatherer prometheus.Gatherer, log logrus.FieldLogger) *Server {
	s := &Server{
		svc:      svc,
		history:  history,
		gatherer: gatherer,
		log:      log.WithField("component", "api"),
	}
	s.srv = &http.Server{
		Addr:              listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	v := r.PathPrefix("/api").Subrouter()
	v.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	v.HandleFunc("/parameters", s.handleParameters).Methods(http.MethodGet)
	v.HandleFunc("/parameters/{name}", s.handleParameter).Methods(http.MethodGet)
	v.HandleFunc("/writes", s.handleWrites).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("listen", s.srv.Addr).Info("http server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

type parameter struct {
	Name     string       `json:"name"`
	Title    string       `json:"title"`
	Group    string       `json:"group"`
	Address  string       `json:"address"`
	Unit     string       `json:"unit,omitempty"`
	Writable bool         `json:"writable"`
	Min      *float64     `json:"min,omitempty"`
	Max      *float64     `json:"max,omitempty"`
	Value    *store.Value `json:"reading,omitempty"`
}

func describe(d register.Descriptor, snap store.Snapshot) parameter {
	p := parameter{
		Name:     d.Name,
		Title:    d.Title,
		Group:    d.Group,
		Address:  "0x" + strconv.FormatUint(uint64(d.Address), 16),
		Unit:     d.Unit,
		Writable: d.Writable(),
	}
	if d.Writable() && d.Range.Valid() {
		lo, hi := d.Range.Min, d.Range.Max
		p.Min, p.Max = &lo, &hi
	}
	if v, ok := snap[d.Name]; ok {
		p.Value = &v
	}
	return p
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.GetSnapshot()
	fresh := 0
	for _, v := range snap {
		if !v.Stale {
			fresh++
		}
	}
	status := http.StatusOK
	if fresh == 0 {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]int{"fresh": fresh, "stale": len(snap) - fresh})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.GetSnapshot())
}

func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.GetSnapshot()
	group := r.URL.Query().Get("group")
	out := make([]parameter, 0)
	for _, d := range s.svc.Map().Descriptors() {
		if group != "" && d.Group != group {
			continue
		}
		out = append(out, describe(d, snap))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleParameter(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Map().Lookup(mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, describe(d, s.svc.GetSnapshot()))
}

func (s *Server) handleWrites(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusNotFound, "write journal disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := s.history.Recent(r.Context(), r.URL.Query().Get("name"), limit)
	if err != nil {
		s.log.WithError(err).Error("read write journal")
		respondError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
