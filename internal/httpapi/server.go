// Package httpapi exposes the render, compose and navigation engine over a
// small JSON API, for previews and integration tests of other clients.
package httpapi

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

	"github.com/concord-chat/refnav/internal/composer"
	"github.com/concord-chat/refnav/internal/markup"
	"github.com/concord-chat/refnav/internal/navigation"
	"github.com/concord-chat/refnav/internal/render"
	"github.com/concord-chat/refnav/internal/resolve"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// Catalog is the entity source the API resolves and authorizes against
type Catalog interface {
	resolve.EntityStore
	resolve.ChannelDirectory
	navigation.Membership
}

// Config holds the server settings
type Config struct {
	Addr            string
	UserID          string // the only user navigation acts as
	LinkHosts       []string
	Shortcodes      map[string]string
	FetchTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the preview API
type Server struct {
	HTTPServer *http.Server
	cfg        Config
	catalog    Catalog
	fetcher    navigation.Fetcher
	pipeline   *render.Pipeline
	logger     *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithFetcher lets navigation fetch uncached channels, servers and invites
func WithFetcher(f navigation.Fetcher) Option {
	return func(s *Server) { s.fetcher = f }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates the server and its routes
func New(cfg Config, catalog Catalog, opts ...Option) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		catalog: catalog,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pipeline = render.NewPipeline(resolve.New(catalog,
		resolve.WithShortcodes(resolve.NewShortcodeTable(cfg.Shortcodes))))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scan", s.handleScan)
		r.Post("/render", s.handleRender)
		r.Post("/convert", s.handleConvert)
		r.Post("/navigate", s.handleNavigate)
	})

	s.HTTPServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("preview API listening", "addr", s.cfg.Addr)
		if err := s.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down preview API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.HTTPServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return <-errCh
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type textRequest struct {
	Text string `json:"text"`
}

type tokenResponse struct {
	Kind  string       `json:"kind"`
	Range markup.Range `json:"range"`
	RawID string       `json:"raw_id,omitempty"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	tokens := make([]tokenResponse, 0)
	for _, tok := range markup.Scan(req.Text) {
		tokens = append(tokens, tokenResponse{Kind: tok.Kind.String(), Range: tok.Range, RawID: tok.RawID})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tokens": tokens})
}

type renderResponse struct {
	render.Display
	AltText string   `json:"alt_text"`
	Actions []string `json:"actions,omitempty"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	d := s.pipeline.Render(req.Text)
	resp := renderResponse{Display: d, AltText: d.WithAltText()}
	for _, span := range d.ActionSpans() {
		resp.Actions = append(resp.Actions, span.ActionURL())
	}
	writeJSON(w, http.StatusOK, resp)
}

type convertRequest struct {
	Text     string `json:"text"`
	Mentions []struct {
		ID      string `json:"id"`
		Display string `json:"display"`
		Kind    string `json:"kind"` // "user" (default) or "channel"
	} `json:"mentions"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !decode(w, r, &req) {
		return
	}
	c := composer.New()
	for _, m := range req.Mentions {
		switch m.Kind {
		case "", "user":
			c.Record(m.ID, m.Display)
		case "channel":
			c.RecordChannel(m.ID, m.Display)
		default:
			http.Error(w, fmt.Sprintf("unknown mention kind %q", m.Kind), http.StatusBadRequest)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": c.Convert(req.Text)})
}

type navigateRequest struct {
	URL              string `json:"url"`
	UserID           string `json:"user_id"`
	CurrentChannelID string `json:"current_channel_id"`
}

type navigateResponse struct {
	Kind string `json:"kind"`
	navigation.Decision
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !decode(w, r, &req) {
		return
	}
	// Membership is only authorized for the configured session user
	userID := s.cfg.UserID
	if userID == "" {
		http.Error(w, "no session user configured", http.StatusBadRequest)
		return
	}
	if req.UserID != "" && req.UserID != userID {
		http.Error(w, "navigation is limited to the session user", http.StatusForbidden)
		return
	}

	opts := []navigation.Option{
		navigation.WithLinkHosts(s.cfg.LinkHosts...),
		navigation.WithLogger(s.logger),
	}
	if s.fetcher != nil {
		opts = append(opts, navigation.WithFetcher(s.fetcher))
	}
	if s.cfg.FetchTimeout > 0 {
		opts = append(opts, navigation.WithFetchTimeout(s.cfg.FetchTimeout))
	}
	d := navigation.New(userID, s.catalog, s.catalog, opts...)
	d.SetCurrentChannel(req.CurrentChannelID)

	dec, err := d.OpenURL(r.Context(), req.URL)
	if errors.Is(err, navigation.ErrUnsupportedLink) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, navigateResponse{Kind: dec.Kind.String(), Decision: dec})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
