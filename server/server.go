package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"radio-tui/host"
	"radio-tui/model"
	"radio-tui/session"
)

const (
	shutdownTimeout = 5 * time.Second
	searchTimeout   = 10 * time.Second
	searchLimit     = 50
)

// Controller is the playback surface the server drives
type Controller interface {
	Play(station model.Station) error
	Pause()
	Resume() error
	Stop()
	Snapshot() session.Snapshot

	Attach(observer host.Observer) session.Snapshot
	Detach()
}

// Directory finds stations beyond the local catalog
type Directory interface {
	Search(ctx context.Context, name string, limit int) ([]model.Station, error)
}

// getRealIP extracts the real client IP from the request.
// It checks headers in the following priority order:
// 1. CF-Connecting-IP (Cloudflare)
// 2. X-Real-IP (nginx)
// 3. X-Forwarded-For (standard proxy, first IP in the list)
// 4. RemoteAddr (fallback)
func getRealIP(r *http.Request) string {
	if cfIP := r.Header.Get("CF-Connecting-IP"); cfIP != "" {
		return cfIP
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Server exposes playback controls and state over HTTP
type Server struct {
	logger  *zap.SugaredLogger
	port    int
	control Controller
	catalog *model.Catalog
	events  *EventHub

	directory Directory
}

// NewServer creates a control server for catalog stations
func NewServer(logger *zap.SugaredLogger, port int, control Controller, catalog *model.Catalog) *Server {
	logger = logger.Named("server")

	return &Server{
		logger:  logger,
		port:    port,
		control: control,
		catalog: catalog,
		events:  NewEventHub(logger, control),
	}
}

// SearchDirectory makes station queries also search dir. Stations it finds
// join the catalog and can be played by id.
func (s *Server) SearchDirectory(dir Directory) {
	s.directory = dir
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stations", s.handleStations)
	mux.HandleFunc("POST /api/play/{stationID}", s.handlePlay)
	mux.HandleFunc("POST /api/pause", s.handlePause)
	mux.HandleFunc("POST /api/resume", s.handleResume)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("Server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen and serve: %w", err)

	case <-ctx.Done():
		s.logger.Info("Shutting down server")

		// event streams only end when their clients go away
		s.events.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	}
}

type stationResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Artwork  string `json:"artwork,omitempty"`
	Country  string `json:"country,omitempty"`
	Tags     string `json:"tags,omitempty"`
	Codec    string `json:"codec,omitempty"`
	Bitrate  int    `json:"bitrate,omitempty"`
	Homepage string `json:"homepage,omitempty"`
}

type statusResponse struct {
	State   string           `json:"state"`
	Message string           `json:"message,omitempty"`
	Station *stationResponse `json:"station"`
}

func newStationResponse(station model.Station) stationResponse {
	return stationResponse{
		ID:       station.ID,
		Name:     station.DisplayName(),
		URL:      station.StreamURL(),
		Artwork:  station.ArtworkURL(),
		Country:  station.Country,
		Tags:     station.Tags,
		Codec:    station.Codec,
		Bitrate:  station.Bitrate,
		Homepage: station.Homepage,
	}
}

func newStatusResponse(snap session.Snapshot) statusResponse {
	resp := statusResponse{
		State:   snap.State.Phase.String(),
		Message: snap.State.Message,
	}
	if snap.Station != nil {
		station := newStationResponse(*snap.Station)
		resp.Station = &station
	}
	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debugw("Failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	stations := s.catalog.Search(query)

	if s.directory != nil && query != "" {
		stations = appendNew(stations, s.searchDirectory(r.Context(), query))
	}

	resp := make([]stationResponse, 0, len(stations))
	for _, station := range stations {
		resp = append(resp, newStationResponse(station))
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// searchDirectory returns nothing on failure; local results are still served
func (s *Server) searchDirectory(ctx context.Context, query string) []model.Station {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	found, err := s.directory.Search(ctx, query, searchLimit)
	if err != nil {
		s.logger.Warnw("Directory search failed", "query", query, "error", err)
		return nil
	}

	s.logger.Debugw("Directory search", "query", query, "found", len(found))
	return s.catalog.Merge(found)
}

func appendNew(stations, more []model.Station) []model.Station {
	seen := make(map[string]bool, len(stations))
	for _, station := range stations {
		seen[station.ID] = true
	}
	for _, station := range more {
		if !seen[station.ID] {
			seen[station.ID] = true
			stations = append(stations, station)
		}
	}
	return stations
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	stationID := r.PathValue("stationID")
	s.logger.Infow("Play requested", "station", stationID, "client", getRealIP(r))

	station, ok := s.catalog.Find(stationID)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown station %q", stationID))
		return
	}

	if err := s.control.Play(station); err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidStation):
			s.writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, session.ErrStreamFailure):
			s.writeError(w, http.StatusBadGateway, err)
		default:
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	s.writeJSON(w, http.StatusAccepted, newStatusResponse(s.control.Snapshot()))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.logger.Infow("Pause requested", "client", getRealIP(r))
	s.control.Pause()
	s.writeJSON(w, http.StatusOK, newStatusResponse(s.control.Snapshot()))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.logger.Infow("Resume requested", "client", getRealIP(r))

	if err := s.control.Resume(); err != nil {
		if errors.Is(err, session.ErrInvalidState) {
			s.writeError(w, http.StatusConflict, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, newStatusResponse(s.control.Snapshot()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.logger.Infow("Stop requested", "client", getRealIP(r))
	s.control.Stop()
	s.writeJSON(w, http.StatusOK, newStatusResponse(s.control.Snapshot()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, newStatusResponse(s.control.Snapshot()))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientIP := getRealIP(r)
	s.logger.Infow("Event client connected", "client", clientIP)

	if err := s.events.Subscribe(r.Context(), w); err != nil {
		s.logger.Debugw("Event stream ended", "client", clientIP, "error", err)
	}

	s.logger.Infow("Event client disconnected", "client", clientIP)
}
