package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nextlevelbuilder/helperd/internal/catalogue"
	"github.com/nextlevelbuilder/helperd/internal/directory"
	"github.com/nextlevelbuilder/helperd/internal/notify"
	"github.com/nextlevelbuilder/helperd/internal/queue"
	"github.com/nextlevelbuilder/helperd/internal/tracing"
)

// Replanner accepts background re-plan requests after a mutation.
type Replanner interface {
	RequestReplan(userID string)
}

// Server is the HTTP mutation boundary.
type Server struct {
	catalogue *catalogue.Catalogue
	queue     *queue.ExecutionQueue
	directory directory.Directory
	auth      *Authenticator
	limiter   *RateLimiter
	replanner Replanner
	pusher    notify.Pusher
	spans     *tracing.Collector // nil = no run history in /status
	router    *chi.Mux
	http      *http.Server
	log       *slog.Logger
	started   time.Time
}

// Options carries the server's collaborators. Pusher defaults to the log
// pusher; Spans may be nil.
type Options struct {
	Catalogue *catalogue.Catalogue
	Queue     *queue.ExecutionQueue
	Directory directory.Directory
	Auth      *Authenticator
	Limiter   *RateLimiter
	Replanner Replanner
	Pusher    notify.Pusher
	Spans     *tracing.Collector
}

// NewServer builds the router and handlers.
func NewServer(addr string, opts Options) *Server {
	if opts.Pusher == nil {
		opts.Pusher = notify.LogPusher{}
	}
	s := &Server{
		catalogue: opts.Catalogue,
		queue:     opts.Queue,
		directory: opts.Directory,
		auth:      opts.Auth,
		limiter:   opts.Limiter,
		replanner: opts.Replanner,
		pusher:    opts.Pusher,
		spans:     opts.Spans,
		log:       slog.Default().With("component", "gateway"),
		started:   time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(s.auth))
		r.Use(s.rateLimit)

		r.Get("/helpers", s.handleListHelpers)
		r.Get("/helpers/{helperID}", s.handleGetHelper)
		r.Get("/user/services", s.handleListServices)
		r.Put("/user/services/{helperID}", s.handleUpsertService)
		r.Delete("/user/services/{helperID}", s.handleRemoveService)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/status", s.handleStatus)
			r.Post("/admin/helpers/{helperID}/enable", s.handleSetHelperDisabled(false))
			r.Post("/admin/helpers/{helperID}/disable", s.handleSetHelperDisabled(true))
			r.Post("/admin/notifications", s.handleNotify)
		})
	})

	s.router = r
	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("gateway listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway: serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			key = claims.UserID()
		}
		if !s.limiter.Allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// targetUserID resolves the user a request operates on. Admins may act on
// another account with the ?as= query parameter.
func targetUserID(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if as := r.URL.Query().Get("as"); as != "" && claims.Admin {
		return as
	}
	return claims.UserID()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// handleListHelpers returns the catalogue minus internal entries;
// admin-only helpers are hidden from non-admin callers.
func (s *Server) handleListHelpers(w http.ResponseWriter, r *http.Request) {
	defs, err := s.catalogue.All(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "catalogue unavailable")
		return
	}
	claims := ClaimsFromContext(r.Context())
	visible := make([]catalogue.Definition, 0, len(defs))
	for _, def := range defs {
		if def.Internal {
			continue
		}
		if def.AdminOnly && !claims.Admin {
			continue
		}
		visible = append(visible, def)
	}
	writeJSON(w, http.StatusOK, map[string]any{"helpers": visible})
}

func (s *Server) handleGetHelper(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "helperID")
	def, ok, err := s.catalogue.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadGateway, "catalogue unavailable")
		return
	}
	claims := ClaimsFromContext(r.Context())
	if !ok || def.Internal || (def.AdminOnly && !claims.Admin) {
		writeError(w, http.StatusNotFound, "helper not found")
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	u, err := s.directory.UserByID(r.Context(), targetUserID(r), directory.LookupOpts{BypassCache: true})
	if err != nil {
		writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": u.Services})
}

type upsertServiceRequest struct {
	Enabled  *bool          `json:"enabled"`
	Params   map[string]any `json:"params"`
	Schedule []string       `json:"schedule"`
}

// handleUpsertService registers or updates one subscription, then
// schedules a background re-plan of the user's jobs.
func (s *Server) handleUpsertService(w http.ResponseWriter, r *http.Request) {
	helperID := chi.URLParam(r, "helperID")
	userID := targetUserID(r)

	var req upsertServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	def, ok, err := s.catalogue.Get(r.Context(), helperID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "catalogue unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "helper not found")
		return
	}

	// Raw lookup: the full record is written back and must keep fields
	// the sanitized view strips.
	u, err := s.directory.UserByID(r.Context(), userID, directory.LookupOpts{Raw: true})
	if err != nil {
		writeUserError(w, err)
		return
	}

	if err := validateSubscription(def, u, req.Params, req.Schedule); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	claims := ClaimsFromContext(r.Context())
	if def.RequireAdminActivation && !claims.Admin {
		enabled = false
	}

	sub := directory.Subscription{
		HelperID: helperID,
		Enabled:  enabled,
		Params:   req.Params,
		Schedule: req.Schedule,
	}
	replaced := false
	for i := range u.Services {
		if u.Services[i].HelperID == helperID {
			u.Services[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		u.Services = append(u.Services, sub)
	}

	if err := s.directory.UpdateUser(r.Context(), userID, *u); err != nil {
		writeUserError(w, err)
		return
	}
	s.replanner.RequestReplan(userID)
	s.log.Info("subscription updated", "user", userID, "helper", helperID, "enabled", enabled)
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleRemoveService(w http.ResponseWriter, r *http.Request) {
	helperID := chi.URLParam(r, "helperID")
	userID := targetUserID(r)

	u, err := s.directory.UserByID(r.Context(), userID, directory.LookupOpts{Raw: true})
	if err != nil {
		writeUserError(w, err)
		return
	}

	kept := make([]directory.Subscription, 0, len(u.Services))
	removed := false
	for _, sub := range u.Services {
		if sub.HelperID == helperID {
			removed = true
			continue
		}
		kept = append(kept, sub)
	}
	if !removed {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	u.Services = kept

	if err := s.directory.UpdateUser(r.Context(), userID, *u); err != nil {
		writeUserError(w, err)
		return
	}
	s.replanner.RequestReplan(userID)
	s.log.Info("subscription removed", "user", userID, "helper", helperID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetHelperDisabled(disabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "helperID")
		if err := s.catalogue.SetDisabled(r.Context(), id, disabled); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.log.Info("helper availability changed", "helper", id, "disabled", disabled)
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "disabled": disabled})
	}
}

type notifyRequest struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	UserID string `json:"userId"` // empty = broadcast
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Body == "" {
		writeError(w, http.StatusBadRequest, "title and body required")
		return
	}
	if req.Title == "" {
		req.Title = "Alert"
	}
	push := notify.Push{Title: req.Title, Body: req.Body, UserID: req.UserID, TTL: 86400}
	if err := s.pusher.Push(r.Context(), push); err != nil {
		writeError(w, http.StatusBadGateway, "push delivery failed")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleStatus reports queue depth and the most recent helper runs.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := s.queue.Len(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "queue unavailable")
		return
	}
	body := map[string]any{
		"pendingJobs": pending,
		"uptime":      time.Since(s.started).Round(time.Second).String(),
	}
	if s.spans != nil {
		body["recentRuns"] = s.spans.Recent()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeUserError(w http.ResponseWriter, err error) {
	if errors.Is(err, directory.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeError(w, http.StatusBadGateway, "user directory unavailable")
}
