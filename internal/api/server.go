package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/minuteswatch/internal/auth"
	"github.com/JakeFAU/minuteswatch/internal/metrics"
	"github.com/JakeFAU/minuteswatch/internal/minutes"
	"github.com/JakeFAU/minuteswatch/internal/retention"
)

// RunSubmitter queues scrape runs.
type RunSubmitter interface {
	Submit(ctx context.Context, trigger minutes.RunTrigger) (minutes.Run, error)
}

// Options wires a Server.
type Options struct {
	Store          minutes.Store
	Auth           *auth.Service
	Cookie         auth.CookieConfig
	Runs           RunSubmitter
	Retention      *retention.Service
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server wires HTTP handlers to the auth service and stores.
type Server struct {
	router    chi.Router
	store     minutes.Store
	auth      *auth.Service
	cookie    auth.CookieConfig
	runs      RunSubmitter
	retention *retention.Service
	logger    *zap.Logger
}

const defaultRequestTimeout = 60 * time.Second

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil || opts.Auth == nil || opts.Retention == nil {
		return nil, fmt.Errorf("api: store, auth, and retention are required: %w", minutes.ErrInvalid)
	}
	if opts.Cookie.Name == "" {
		return nil, fmt.Errorf("api: cookie name is required: %w", minutes.ErrInvalid)
	}
	if opts.Cookie.TTL <= 0 {
		opts.Cookie.TTL = opts.Auth.Tokens().TTL()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	s := &Server{
		store:     opts.Store,
		auth:      opts.Auth,
		cookie:    opts.Cookie,
		runs:      opts.Runs,
		retention: opts.Retention,
		logger:    logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))
	r.Use(auth.Authenticate(opts.Auth.Tokens(), opts.Cookie.Name))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/login", s.loginForm)
	r.Post("/login", s.login)
	r.Post("/logout", s.logout)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Get("/me", s.me)
		r.Get("/users/{id}", s.getUser)
		r.Get("/clients", s.listClients)
		r.Get("/clients/{id}", s.getClient)
		r.Get("/keywords", s.listKeywords)
		r.Get("/mentions", s.listMentions)
		r.Get("/profile", s.profile)
		r.Get("/profile/edit", s.profileEditForm)
		r.Post("/profile/edit", s.updateProfile)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin(s.store))
		r.Get("/users", s.listUsers)
		r.Post("/users", s.createUser)
		r.Delete("/users/{id}", s.deleteUser)

		r.Post("/clients", s.createClient)
		r.Get("/clients/{id}/edit", s.clientEditForm)
		r.Post("/clients/{id}/edit", s.updateClient)
		r.Delete("/clients/{id}", s.deleteClient)

		r.Post("/keywords", s.createKeyword)
		r.Delete("/keywords/{id}", s.deleteKeyword)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/", s.dashboard)
			r.Get("/users", s.adminUsers)
			r.Get("/auth-codes", s.listAuthCodes)
			r.Post("/auth-codes/{id}", s.issueAuthCode)
			r.Get("/cleanup", s.previewCleanup)
			r.Post("/cleanup", s.runCleanup)
			r.Post("/scrape", s.submitScrape)
			r.Get("/scrape/{id}", s.getRun)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type requestIDKey struct{}

// RequestID returns the ID assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered",
					zap.String("request_id", RequestID(r.Context())),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":"request timed out"}`)
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}
