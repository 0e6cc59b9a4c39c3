package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/otarkhan/slotwatch/internal/history"
	"github.com/otarkhan/slotwatch/internal/logging"
	"github.com/otarkhan/slotwatch/internal/model"
	"github.com/otarkhan/slotwatch/internal/probe"
	"github.com/otarkhan/slotwatch/internal/session"
)

// SlotChecker runs the check pipeline. Implemented by checker.Checker.
type SlotChecker interface {
	Check(ctx context.Context, creds model.Credentials, appd string) (*model.CheckResult, error)
	CheckStream(ctx context.Context, creds model.Credentials, appd string, sink session.EventSink) (*model.CheckResult, error)
}

// History records and lists check outcomes. Implemented by history.Store.
// May be nil, in which case nothing is recorded and /history 404s.
type History interface {
	Add(ctx context.Context, rec history.Record) (history.Record, error)
	List(ctx context.Context, appd string, limit int) ([]history.Record, error)
}

// Prober is the browserless portal diagnostic. May be nil.
type Prober interface {
	Probe(ctx context.Context) (*probe.Result, error)
}

// Server is the HTTP + WebSocket surface around the pipeline. It owns
// transport concerns only: bearer auth, status mapping, request logging.
type Server struct {
	cfg      Config
	checker  SlotChecker
	history  History
	prober   Prober
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

func NewServer(cfg Config, checker SlotChecker, hist History, prober Prober, logger logging.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		checker: checker,
		history: hist,
		prober:  prober,
		router:  chi.NewRouter(),
		logger:  logging.OrNop(logger).With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Post("/check-slots", s.handleCheckSlots)
		r.Get("/history", s.handleHistory)
		r.Get("/probe", s.handleProbe)
		r.Get("/ws/check", s.handleCheckWS)
	})
}

// ServeHTTP implements http.Handler with request logging. Mutating requests
// have their body logged with credential fields redacted; the raw body is
// restored for the handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}
	if r.Method != http.MethodGet && r.Body != nil {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
		if err == nil {
			r.Body = io.NopCloser(bytes.NewReader(raw))
			if redacted, ok := redactBody(raw); ok {
				fields = append(fields, logging.Field{Key: "body", Value: redacted})
			}
		}
	}
	s.logger.Info("http_request", fields...)
	s.router.ServeHTTP(w, r)
}

const maxLoggedBody = 4096

// redactedFields are request keys that must never reach a log line.
var redactedFields = []string{"username", "password"}

func redactBody(raw []byte) (map[string]any, bool) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false
	}
	for _, key := range redactedFields {
		if _, present := body[key]; present {
			body[key] = "<redacted>"
		}
	}
	return body, true
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays zero: checks can legitimately run for minutes.
	}
}

// bearerAuth guards protected routes. Websocket clients cannot set headers
// from a browser, so a token query parameter is accepted as an equivalent.
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}
		if s.cfg.APISecret == "" || token != s.cfg.APISecret {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// --- handlers ---

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Time: &now})
}

func (s *Server) handleCheckSlots(w http.ResponseWriter, r *http.Request) {
	var body checkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	if body.Username == "" || body.Password == "" || body.Appd == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing fields"})
		return
	}

	creds := model.Credentials{Username: body.Username, Password: body.Password}
	result, err := s.checker.Check(r.Context(), creds, body.Appd)
	if err != nil {
		cerr := model.Classify(err)
		s.record(r.Context(), body.Appd, 0, cerr)
		s.logger.Warn("check failed",
			logging.Field{Key: "kind", Value: string(cerr.Kind)},
			logging.Field{Key: "appd", Value: body.Appd})
		writeJSON(w, statusForKind(cerr), errorResponse{
			Error:   string(cerr.Kind),
			Message: messageForKind(cerr),
		})
		return
	}

	s.record(r.Context(), body.Appd, result.TotalSlots, nil)
	writeJSON(w, http.StatusOK, checkResponse{
		Success:    true,
		Slots:      result.Slots,
		TotalSlots: result.TotalSlots,
		CheckedAt:  result.CheckedAt,
	})
}

// statusForKind maps pipeline failure kinds to transport statuses. The
// pipeline itself never picks status codes; that stays an HTTP-layer concern.
func statusForKind(err *model.Error) int {
	switch err.Kind {
	case model.KindFetchError:
		if err.HTTPStatus == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case model.KindBotChallenge, model.KindFormNotFound, model.KindFieldNotFound, model.KindSubmitNotFound:
		return http.StatusBadGateway
	case model.KindNavigationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func messageForKind(err *model.Error) string {
	switch err.Kind {
	case model.KindFetchError:
		if err.HTTPStatus == http.StatusNotFound {
			return "application reference not recognized"
		}
		return err.Message
	case model.KindBotChallenge:
		return "login blocked by a verification challenge"
	case model.KindFormNotFound:
		return "login form not found, the site layout may have changed"
	default:
		return err.Message
	}
}

func (s *Server) record(ctx context.Context, appd string, totalSlots int, cerr *model.Error) {
	if s.history == nil {
		return
	}
	rec := history.Record{Appd: appd, Success: cerr == nil, TotalSlots: totalSlots}
	if cerr != nil {
		rec.ErrorKind = string(cerr.Kind)
	}
	if _, err := s.history.Add(ctx, rec); err != nil {
		s.logger.Warn("recording check history", logging.Field{Key: "error", Value: err.Error()})
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "history disabled"})
		return
	}
	appd := r.URL.Query().Get("appd")
	limit := 0
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}

	recs, err := s.history.List(r.Context(), appd, limit)
	if err != nil {
		s.logger.Warn("listing history", logging.Field{Key: "error", Value: err.Error()})
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "probe disabled"})
		return
	}
	res, err := s.prober.Probe(r.Context())
	if err != nil {
		s.logger.Warn("probing portal", logging.Field{Key: "error", Value: err.Error()})
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCheckWS runs a check while streaming acquirer state transitions.
// The first client frame must be the checkRequest JSON.
func (s *Server) handleCheckWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	var body checkRequest
	if err := conn.ReadJSON(&body); err != nil {
		_ = conn.WriteJSON(wsFrame{Type: "error", Error: "invalid request frame"})
		return
	}
	if body.Username == "" || body.Password == "" || body.Appd == "" {
		_ = conn.WriteJSON(wsFrame{Type: "error", Error: "Missing fields"})
		return
	}

	// Events funnel through one goroutine; gorilla connections do not allow
	// concurrent writers. The sink blocks rather than dropping frames, so the
	// stream carries every transition; on a write failure the writer keeps
	// draining the channel so the pipeline never stalls on a dead client.
	events := make(chan session.Event, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range events {
			if err := conn.WriteJSON(wsFrame{Type: "state", State: string(ev.State), Detail: ev.Detail}); err != nil {
				for range events {
				}
				return
			}
		}
	}()

	creds := model.Credentials{Username: body.Username, Password: body.Password}
	result, err := s.checker.CheckStream(r.Context(), creds, body.Appd, func(ev session.Event) {
		events <- ev
	})
	close(events)
	<-writerDone

	if err != nil {
		cerr := model.Classify(err)
		s.record(r.Context(), body.Appd, 0, cerr)
		no := false
		_ = conn.WriteJSON(wsFrame{
			Type:    "result",
			Success: &no,
			Error:   string(cerr.Kind),
			Message: messageForKind(cerr),
		})
		return
	}

	s.record(r.Context(), body.Appd, result.TotalSlots, nil)
	yes := true
	_ = conn.WriteJSON(wsFrame{
		Type:       "result",
		Success:    &yes,
		Slots:      result.Slots,
		TotalSlots: result.TotalSlots,
		CheckedAt:  &result.CheckedAt,
	})
}
