package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nholding/cycle-book/internal/metrics"
	"github.com/nholding/cycle-book/internal/period/service"
)

// Options configures the API handler.
type Options struct {
	Logger *zap.Logger
	// Auth enables HTTP Basic Auth on /api; nil serves every request as LocalOwner.
	Auth *BasicAuth
	// Health is checked by /healthz, e.g. a database ping. Optional.
	Health func(ctx context.Context) error
	// Now overrides the clock used for export timestamps.
	Now func() time.Time
}

type Server struct {
	svc    *service.PeriodService
	logger *zap.Logger
	auth   *BasicAuth
	health func(ctx context.Context) error
	now    func() time.Time
}

func NewServer(svc *service.PeriodService, opts Options) *Server {
	s := &Server{
		svc:    svc,
		logger: opts.Logger,
		auth:   opts.Auth,
		health: opts.Health,
		now:    opts.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Handler returns the routed API.
//
//	GET  /healthz                 public
//	GET  /metrics                 public
//	POST /api/periods             start a period
//	POST /api/periods/{id}/end    close a period
//	GET  /api/periods             list periods
//	GET  /api/periods/current     open period and its day number
//	GET  /api/periods/{id}        one period
//	GET  /api/events              event list
//	GET  /api/calendar.ics        event list as iCalendar
//	GET  /api/export.xlsx         periods as a workbook
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.healthz)
	mux.Handle("GET /metrics", metrics.Handler())

	api := http.NewServeMux()
	api.HandleFunc("POST /api/periods", s.startPeriod)
	api.HandleFunc("POST /api/periods/{id}/end", s.endPeriod)
	api.HandleFunc("GET /api/periods", s.listPeriods)
	api.HandleFunc("GET /api/periods/current", s.currentPeriod)
	api.HandleFunc("GET /api/periods/{id}", s.getPeriod)
	api.HandleFunc("GET /api/events", s.listEvents)
	api.HandleFunc("GET /api/calendar.ics", s.calendar)
	api.HandleFunc("GET /api/export.xlsx", s.exportWorkbook)

	var protected http.Handler = api
	if s.auth != nil {
		protected = s.auth.Middleware(api)
	}
	mux.Handle("/api/", protected)

	return s.logRequests(mux)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
		defer cancel()
		if err := s.health(ctx); err != nil {
			http.Error(w, "not ok: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	_, _ = w.Write([]byte("ok"))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// HTTPServer is a running listener started by Start.
type HTTPServer struct {
	srv  *http.Server
	errc chan error
}

// Start serves handler on addr until ctx is done, then shuts down gracefully.
func Start(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) (*HTTPServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	hs := &HTTPServer{srv: srv, errc: make(chan error, 1)}

	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		hs.errc <- err
	}()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && logger != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	if logger != nil {
		logger.Info("http listening", zap.String("addr", ln.Addr().String()))
	}
	return hs, nil
}

// Wait blocks until the server has stopped and returns its serve error, if any.
func (h *HTTPServer) Wait() error {
	return <-h.errc
}
