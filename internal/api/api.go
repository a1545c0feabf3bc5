// Package api provides HTTP handlers and the main API server logic for chatform.
//
// It exposes RESTful endpoints for managing intake bots and driving their
// conversations, including the streaming chat endpoint. The API integrates
// with the session, genai, store, and notify modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatformhq/chatform/internal/genai"
	"github.com/chatformhq/chatform/internal/models"
	"github.com/chatformhq/chatform/internal/notify"
	"github.com/chatformhq/chatform/internal/session"
	"github.com/chatformhq/chatform/internal/store"
	"github.com/chatformhq/chatform/internal/util"
)

// DefaultAddr is the address the API server listens on when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr     string
	Notifier notify.Notifier
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithNotifier attaches a submission notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// Server wires the HTTP surface to the session controller and store.
type Server struct {
	addr       string
	store      store.Store
	controller *session.Controller
	mux        *http.ServeMux
}

// storeSubmissionSink persists completed submissions through the store,
// assigning the submission ID at write time.
type storeSubmissionSink struct {
	store store.Store
}

func (s *storeSubmissionSink) Submit(_ context.Context, sub models.Submission) (models.SubmissionResult, error) {
	if sub.ID == "" {
		sub.ID = util.GenerateSubmissionID()
	}
	if err := s.store.AddSubmission(sub); err != nil {
		return models.SubmissionResult{}, &models.SubmissionError{BotID: sub.BotID, Err: err}
	}
	return models.SubmissionResult{Success: true, SubmissionID: sub.ID}, nil
}

// NewServer creates the API server and its session controller.
func NewServer(st store.Store, genaiClient genai.ClientInterface, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	ctrlOpts := []session.ControllerOption{}
	if cfg.Notifier != nil {
		ctrlOpts = append(ctrlOpts, session.WithNotifier(cfg.Notifier))
	}
	controller := session.NewController(genaiClient, &storeSubmissionSink{store: st}, ctrlOpts...)

	s := &Server{
		addr:       cfg.Addr,
		store:      st,
		controller: controller,
		mux:        http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/bots", s.createBotHandler)
	s.mux.HandleFunc("GET /api/bots/{id}", s.getBotHandler)
	s.mux.HandleFunc("GET /api/bots/{id}/submissions", s.listSubmissionsHandler)
	s.mux.HandleFunc("POST /api/bots/{id}/conversations", s.createConversationHandler)
	s.mux.HandleFunc("GET /api/bots/{id}/conversations/{cid}", s.getConversationHandler)
	s.mux.HandleFunc("POST /api/bots/{id}/conversations/{cid}/messages", s.messagesHandler)
	s.mux.HandleFunc("GET /health", s.healthHandler)
}

// Handler exposes the routing mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the HTTP server and blocks until it fails or ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: chatform API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
