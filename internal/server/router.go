package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/STTM-NSU/futures-signal/internal/export"
	"github.com/STTM-NSU/futures-signal/internal/logger"
	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
)

type route struct {
	name    string
	method  string
	pattern string
	handler http.HandlerFunc
}

// NewRouter exposes the latest snapshot of store over http.
func NewRouter(store *Store, logger logger.Logger) *mux.Router {
	h := &handlers{store: store, logger: logger}
	routes := []route{
		{"health", http.MethodGet, "/health", h.health},
		{"snapshot", http.MethodGet, "/snapshot", h.snapshot},
		{"snapshot-csv", http.MethodGet, "/snapshot.csv", h.snapshotCSV},
	}

	router := mux.NewRouter().StrictSlash(true)
	for _, r := range routes {
		router.
			Methods(r.method).
			Path(r.pattern).
			Name(r.name).
			Handler(requestLogger(r.handler, r.name, logger))
	}

	return router
}

func requestLogger(inner http.Handler, name string, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inner.ServeHTTP(w, r)
		logger.Debugf("%s %s %s %s", r.Method, r.RequestURI, name, time.Since(start))
	})
}

type handlers struct {
	store  *Store
	logger logger.Logger
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) snapshot(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.store.Last()
	if !ok {
		h.notReady(w)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) snapshotCSV(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.store.Last()
	if !ok {
		h.notReady(w)
		return
	}

	body, err := export.CSV(snap.Table)
	if err != nil {
		h.logger.Errorf("%s: can't export csv", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "can't export csv"})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(snap.Table)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Warnf("%s: can't write response", err)
	}
}

func (h *handlers) notReady(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		h.logger.Errorf("%s: can't marshal response", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		h.logger.Warnf("%s: can't write response", err)
	}
}
