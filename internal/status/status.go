// Package status serves read-only device state over local HTTP.
package status

import (
	"context"
	"encoding/json"
	"expvar"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gogotrans/geotrack/gps"
	"github.com/gogotrans/geotrack/log2"
	"github.com/gogotrans/geotrack/uploader"
	"github.com/juju/errors"
)

const DefaultListen = "127.0.0.1:8089"

type Source interface {
	Status() uploader.Status
	Snapshot() []gps.Fix
}

type Server struct {
	Log    *log2.Log
	source Source
	router chi.Router
	srv    *http.Server
}

type queueResponse struct {
	Count int       `json:"count"`
	Fixes []gps.Fix `json:"fixes"`
}

func New(source Source, log *log2.Log) *Server {
	self := &Server{Log: log, source: source}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", self.getStatus)
	r.Get("/queue", self.getQueue)
	r.Method(http.MethodGet, "/debug/vars", expvar.Handler())
	self.router = r
	return self
}

func (self *Server) Handler() http.Handler { return self.router }

func (self *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, self.source.Status())
}

// getQueue lists buffered fixes oldest first.
func (self *Server) getQueue(w http.ResponseWriter, r *http.Request) {
	fixes := self.source.Snapshot()
	jsonResponse(w, http.StatusOK, queueResponse{Count: len(fixes), Fixes: fixes})
}

// Start binds listen address synchronously and serves in background.
func (self *Server) Start(listen string) (net.Addr, error) {
	if listen == "" {
		listen = DefaultListen
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, errors.Annotatef(err, "status listen=%s", listen)
	}
	self.srv = &http.Server{
		Handler:      self.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := self.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			self.Log.Errorf("status serve err=%v", err)
		}
	}()
	self.Log.Infof("status listening on %s", ln.Addr())
	return ln.Addr(), nil
}

func (self *Server) Close(ctx context.Context) error {
	if self.srv == nil {
		return nil
	}
	return errors.Trace(self.srv.Shutdown(ctx))
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
