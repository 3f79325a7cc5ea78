// internal/handlers/server.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jason-s-yu/neocascade/internal/auth"
	"github.com/jason-s-yu/neocascade/internal/database"
	"github.com/jason-s-yu/neocascade/internal/game"
	"github.com/jason-s-yu/neocascade/internal/middleware"
	"github.com/jason-s-yu/neocascade/internal/monitoring"
	"github.com/jason-s-yu/neocascade/internal/store"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

// Server owns the HTTP and WebSocket surface over one game.Service.
type Server struct {
	Game    *game.Service
	Logger  *logrus.Logger
	Metrics *monitoring.Metrics

	// Intents limits control and chat messages per socket.
	Intents *middleware.RateLimiter
	// Requests limits REST calls per client address; nil disables it.
	Requests *middleware.RateLimiter

	TokenTTL time.Duration

	alerts *alertHub
}

// NewServer wires alert fan-out into the service's simulator.
func NewServer(svc *game.Service, logger *logrus.Logger, metrics *monitoring.Metrics) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		Game:     svc,
		Logger:   logger,
		Metrics:  metrics,
		Intents:  middleware.NewRateLimiter(10, 20, logger),
		TokenTTL: 24 * time.Hour,
		alerts:   newAlertHub(),
	}
	svc.Simulator.OnAlert = s.alerts.publish
	return s
}

// Routes builds the router. Every route is wrapped in the request logger.
func (s *Server) Routes() http.Handler {
	mux := httprouter.New()

	wrap := func(h http.HandlerFunc) httprouter.Handle {
		var handler http.Handler = h
		if s.Requests != nil {
			handler = middleware.RateLimitMiddleware(s.Requests)(handler)
		}
		handler = middleware.LogMiddleware(s.Logger, s.Metrics)(handler)
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			handler.ServeHTTP(w, r.WithContext(withParams(r.Context(), ps)))
		}
	}
	// sockets skip the request limiter, their messages are limited per connection
	wrapWS := func(h http.HandlerFunc) httprouter.Handle {
		handler := middleware.LogMiddleware(s.Logger, s.Metrics)(h)
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			handler.ServeHTTP(w, r.WithContext(withParams(r.Context(), ps)))
		}
	}

	mux.POST("/user/create", wrap(s.CreateUserHandler))
	mux.POST("/user/login", wrap(s.LoginHandler))
	mux.POST("/user/guest", wrap(s.GuestHandler))
	mux.GET("/user/me", wrap(s.MeHandler))
	mux.POST("/user/logout", wrap(s.LogoutHandler))

	mux.POST("/room/create", wrap(s.CreateRoomHandler))
	mux.POST("/room/join", wrap(s.JoinRoomHandler))
	mux.POST("/room/leave", wrap(s.LeaveRoomHandler))
	mux.GET("/room/list", wrap(s.ListRoomsHandler))
	mux.GET("/room/get/:code", wrap(s.GetRoomHandler))
	mux.GET("/room/messages/:code", wrap(s.MessagesHandler))
	mux.GET("/room/qr/:code", wrap(s.QRHandler))

	mux.GET("/lobby/ws", wrapWS(s.LobbyWSHandler))
	mux.GET("/room/ws/:code", wrapWS(s.RoomWSHandler))

	mux.Handler(http.MethodGet, "/metrics", s.Metrics.Handler())
	mux.GET("/ping", wrap(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("pong"))
	}))

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		s.Logger.WithField("path", r.URL.Path).Errorf("panic serving request: %v", v)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
	return mux
}

// statusFor maps domain and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrNotFound), errors.Is(err, database.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrRoomFull), errors.Is(err, game.ErrRoomClosed),
		errors.Is(err, game.ErrStaleVersion), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, game.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrAuthFailure):
		return http.StatusUnauthorized
	case errors.Is(err, game.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, database.ErrNotConnected),
		errors.Is(err, game.ErrCodeSpaceExhausted):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError logs server-side failures and replies with a JSON error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.Logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody reads a JSON request body into v; failures are reported as invalid input.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request payload", game.ErrInvalidInput)
	}
	return nil
}

func withParams(ctx context.Context, ps httprouter.Params) context.Context {
	return context.WithValue(ctx, httprouter.ParamsKey, ps)
}

// param reads a route parameter stored by Routes.
func param(r *http.Request, name string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(name)
}
