package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"slawindow/internal/config"
	"slawindow/internal/due"
	"slawindow/internal/ics"
	appLog "slawindow/internal/log"
	"slawindow/internal/model"
	"slawindow/internal/schedule"
)

// controlCacheTTL bounds how long a resolved control (including rules
// fetched from its feed) is reused across requests.
const controlCacheTTL = 30 * time.Second

// Server provides HTTP APIs for previewing schedules and expanding
// configured controls.
type Server struct {
	cfg     *config.Config
	eng     *schedule.Engine
	fetcher due.RulesFetcher
	mux     *http.ServeMux
	now     func() time.Time

	// In-memory cache of resolved controls to avoid refetching rule feeds
	// on every request.
	controlsMu sync.RWMutex
	controls   map[string]cachedControl
}

type cachedControl struct {
	control   model.Control
	updatedAt time.Time
}

// NewServer constructs a new Server. fetcher may be nil when no control
// uses a rules_url.
func NewServer(cfg *config.Config, eng *schedule.Engine, fetcher due.RulesFetcher) *Server {
	s := &Server{
		cfg:      cfg,
		eng:      eng,
		fetcher:  fetcher,
		mux:      http.NewServeMux(),
		now:      time.Now,
		controls: make(map[string]cachedControl),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="slawindow", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/dates", s.handleDates)
	s.mux.HandleFunc("POST /api/dates", s.handleDates)
	s.mux.HandleFunc("GET /api/controls", s.handleControls)
	s.mux.HandleFunc("GET /api/controls/{id}/dates", s.handleControlDates)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// datesRequest is the JSON body of POST /api/dates. Instants are strings
// so that unreadable values reach the engine as invalid rather than
// failing the request.
type datesRequest struct {
	From         string        `json:"from"`
	To           string        `json:"to"`
	Period       string        `json:"period"`
	CustomConfig *customConfig `json:"customConfig,omitempty"`
}

type customConfig struct {
	Rules string `json:"rules"`
	Wto   string `json:"Wto"`
}

type datesResponse struct {
	Dates []time.Time `json:"dates"`
}

// handleDates previews a schedule.
//
// GET  /api/dates?from=...&to=...&period=...[&rules=...&wto=...]
// POST /api/dates  {"from":..., "to":..., "period":..., "customConfig":{"rules":..., "Wto":...}}
//
// The response is always 200 with a (possibly empty) array; problems with
// the inputs are logged by the engine.
func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	var req datesRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		q := r.URL.Query()
		req = datesRequest{From: q.Get("from"), To: q.Get("to"), Period: q.Get("period")}
		if q.Has("rules") || q.Has("wto") {
			req.CustomConfig = &customConfig{Rules: q.Get("rules"), Wto: q.Get("wto")}
		}
	}

	var custom *model.CustomConfig
	if req.CustomConfig != nil {
		custom = &model.CustomConfig{Rules: req.CustomConfig.Rules, Wto: instantOrZero(req.CustomConfig.Wto)}
	}

	dates := s.eng.GetDates(instantOrZero(req.From), instantOrZero(req.To), req.Period, custom)
	appLog.Debug("api dates request", "period", req.Period, "dates", len(dates))
	writeJSON(w, http.StatusOK, datesResponse{Dates: dates})
}

func (s *Server) handleControls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Controls)
}

// controlDatesResponse is the JSON response shape for
// /api/controls/{id}/dates.
type controlDatesResponse struct {
	Control     string             `json:"control"`
	From        time.Time          `json:"from"`
	To          time.Time          `json:"to"`
	Occurrences []model.Occurrence `json:"occurrences"`
	Truncated   bool               `json:"truncated,omitempty"`
}

// handleControlDates expands one configured control.
//
// GET /api/controls/{id}/dates?from=...&to=...[&format=ics]
func (s *Server) handleControlDates(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cc, ok := s.cfg.Control(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown control")
		return
	}

	q := r.URL.Query()
	from, err := schedule.ParseInstant(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := schedule.ParseInstant(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to")
		return
	}

	c, err := s.resolveControl(r.Context(), cc)
	if err != nil {
		appLog.Error("api control dates: resolve failed", err, "control", id)
		writeError(w, http.StatusBadGateway, "control rules unavailable")
		return
	}

	res, err := ics.ExpandControls(s.eng, []model.Control{c}, from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if q.Get("format") == "ics" {
		name := c.Name
		if name == "" {
			name = c.ID
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(ics.ExportCalendar(name, res.Occurrences, s.now())))
		return
	}

	writeJSON(w, http.StatusOK, controlDatesResponse{
		Control:     c.ID,
		From:        from,
		To:          to,
		Occurrences: res.Occurrences,
		Truncated:   len(res.TruncatedControls) > 0,
	})
}

// resolveControl returns the model for cc, reusing a recent resolution.
func (s *Server) resolveControl(ctx context.Context, cc config.ControlConfig) (model.Control, error) {
	now := s.now()

	s.controlsMu.RLock()
	cached, ok := s.controls[cc.ID]
	s.controlsMu.RUnlock()
	if ok && now.Sub(cached.updatedAt) < controlCacheTTL {
		return cached.control, nil
	}

	c, err := due.ResolveOne(ctx, cc, s.fetcher)
	if err != nil {
		return model.Control{}, err
	}

	s.controlsMu.Lock()
	s.controls[cc.ID] = cachedControl{control: c, updatedAt: now}
	s.controlsMu.Unlock()
	return c, nil
}

// instantOrZero parses s, yielding the zero time for anything unreadable.
func instantOrZero(s string) time.Time {
	t, err := schedule.ParseInstant(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
