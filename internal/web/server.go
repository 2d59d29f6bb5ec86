// Package web provides an HTTP status server for the energy-monitor daemon.
package web

import (
	"context"
	"errors"
	"image"
	"image/png"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/sweeney/energy-monitor/internal/status"
)

const maxScale = 8

// Resetter clears the meter's energy counter.
type Resetter interface {
	ResetEnergy() error
}

// Screen provides the current display frame.
type Screen interface {
	Snapshot() *image.RGBA
}

// Options configures optional endpoints. Nil fields disable the matching route.
type Options struct {
	Addr     string
	CORS     bool
	Resetter Resetter
	Screen   Screen
	Metrics  http.Handler
	Log      zerolog.Logger

	// Description serves the UPnP device description for SSDP discovery.
	Description http.Handler
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	opts       Options
}

// New creates a Server that reads state from the given tracker.
func New(opts Options, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker, opts: opts}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	if opts.Resetter != nil {
		r.HandleFunc("/reset", s.handleReset).Methods(http.MethodGet, http.MethodPost)
	}
	if opts.Screen != nil {
		r.HandleFunc("/screen.png", s.handleScreen).Methods(http.MethodGet)
	}
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	if opts.Description != nil {
		r.Handle("/description.xml", opts.Description).Methods(http.MethodGet)
	}

	var h http.Handler = r
	if opts.CORS {
		h = cors(r)
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Run serves until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.opts.Log.Error().Err(err).Msg("http shutdown")
		}
	}()
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// cors answers preflight requests for any path and marks every response
// as readable cross-origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.opts.Screen != nil, s.opts.Resetter != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleReset answers {"reset":"true"} or {"reset":"false"}.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	ok := "true"
	if err := s.opts.Resetter.ResetEnergy(); err != nil {
		s.opts.Log.Error().Err(err).Msg("energy reset failed")
		ok = "false"
	} else {
		s.opts.Log.Info().Msg("energy counter reset")
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"reset":"` + ok + `"}`))
}

// handleScreen serves the framebuffer, optionally upscaled with ?scale=N.
func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	var img image.Image = s.opts.Screen.Snapshot()

	if v := r.URL.Query().Get("scale"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxScale {
			http.Error(w, "scale must be 1.."+strconv.Itoa(maxScale), http.StatusBadRequest)
			return
		}
		if n > 1 {
			b := img.Bounds()
			dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*n, b.Dy()*n))
			draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
			img = dst
		}
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		s.opts.Log.Error().Err(err).Msg("encode screen")
	}
}
