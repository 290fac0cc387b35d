// Package server exposes the agent over HTTP: a streaming chat endpoint
// speaking the data stream protocol (or SSE), direct resource ingestion, the
// tool catalog, a health check and prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/kbagent"
	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/logging"
	"github.com/hupe1980/kbagent/stream"
)

// Options configures the Server.
type Options struct {
	// Protocol is the default chat encoding: "data" or "sse". Clients
	// sending Accept: text/event-stream always get SSE.
	Protocol string
	// RequestTimeout bounds a whole chat request; 0 disables it.
	RequestTimeout time.Duration
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   logging.Logger
}

// Server routes HTTP requests to the agent and knowledge base.
type Server struct {
	agent    *kbagent.Agent
	ingester core.Ingester
	opts     Options
	validate *validator.Validate
	router   chi.Router
}

// New creates a Server.
func New(a *kbagent.Agent, ingester core.Ingester, optFns ...func(o *Options)) *Server {
	opts := Options{
		Protocol:       "data",
		RequestTimeout: 60 * time.Second,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	s := &Server{
		agent:    a,
		ingester: ingester,
		opts:     opts,
		validate: newValidator(),
	}

	s.router = s.routes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)

	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/resources", s.handleResource)
		r.Get("/tools", s.handleTools)
	})

	return r
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body ChatRequest
	if err := s.decode(r, &body); err != nil {
		s.badRequest(w, r, err)
		return
	}

	conv, err := ToConversation(body.Messages)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	enc := s.encoderFor(r)
	stream.NewPresenter(enc).WriteHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	res, err := s.agent.Chat(ctx, conv, w, enc)
	if err != nil {
		s.opts.Logger.Error("server.chat.stream_failed", "run_id", res.RunID, "error", err.Error())
	}

	s.opts.Logger.Info("server.chat.completed",
		"request_id", middleware.GetReqID(r.Context()),
		"run_id", res.RunID,
		"state", res.State.String(),
		"steps", res.Steps,
	)
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	var body ResourceRequest
	if err := s.decode(r, &body); err != nil {
		s.badRequest(w, r, err)
		return
	}

	res, err := s.ingester.Ingest(r.Context(), body.Content)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			s.badRequest(w, r, err)
			return
		}

		s.opts.Logger.Error("server.resource.failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store resource"})

		return
	}

	writeJSON(w, http.StatusCreated, ResourceResponse{ID: res.ID, Chunks: res.Chunks})
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.Tools())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}

	return s.validate.Struct(v)
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	s.opts.Logger.Warn("server.request.invalid", "path", r.URL.Path, "error", err.Error())
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": clientMessage(err)})
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// clientMessage reduces validation failures to one short entry per field,
// e.g. field "messages[0].role" failed "oneof".
func clientMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))

	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}

		msgs = append(msgs, fmt.Sprintf("field %q failed %q", field, fe.Tag()))
	}

	return strings.Join(msgs, "; ")
}

func (s *Server) encoderFor(r *http.Request) stream.Encoder {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") || s.opts.Protocol == "sse" {
		return stream.SSEEncoder{}
	}

	return stream.DataStreamEncoder{}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.opts.Logger.Debug("server.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
