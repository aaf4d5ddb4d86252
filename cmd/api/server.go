package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"agriflow/auth"
	"agriflow/calendar"
	"agriflow/content"
	"agriflow/drone"
	"agriflow/metrics"
	"agriflow/provider"
	"agriflow/requestfilter"
	"agriflow/servicerequest"
	"agriflow/spraying"
)

type ctxKey string

const (
	ctxKeyUserID ctxKey = "user_id"
	ctxKeyRole   ctxKey = "role"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
	VerifyToken(token string) (string, auth.Role, error)
}

type requestService interface {
	Quote(form spraying.Form) (spraying.Quote, error)
	Create(ctx context.Context, params servicerequest.CreateParams) (servicerequest.Request, error)
	List(ctx context.Context, filters servicerequest.Filters) (servicerequest.ListResult, error)
	Get(ctx context.Context, actor servicerequest.Actor, id string) (servicerequest.Request, error)
	Timeline(ctx context.Context, actor servicerequest.Actor, id string) ([]servicerequest.Event, error)
	Cancel(ctx context.Context, params servicerequest.CancelParams) (servicerequest.Request, error)
	Transition(ctx context.Context, params servicerequest.TransitionParams) (servicerequest.Request, error)
	Accept(ctx context.Context, actor servicerequest.Actor, requestID string) (servicerequest.Request, error)
}

type paymentService interface {
	HandlePaymentWebhook(ctx context.Context, ev servicerequest.PaymentEvent) error
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	authService     authService
	requestService  requestService
	paymentService  paymentService
	providerService *provider.Service
	droneService    *drone.Service
	metrics         *metrics.Registry
	metricsPath     string
	webhookSecret   string
	logger          *zap.Logger
	clock           calendar.Clock
}

func (s *Server) log() *zap.Logger {
	if s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock()
}

// routes builds the API router.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		path := s.metricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/webhooks/payments", s.handlePaymentWebhook)

		r.Get("/calendar/{year}/{month}", s.handleCalendar)
		r.Post("/spraying/quote", s.handleQuote)
		r.Post("/spraying/validate", s.handleValidate)
		r.Get("/providers", s.handleProviders)
		r.Get("/providers/{id}", s.handleProvider)
		r.Get("/drones", s.handleDrones)
		r.Get("/content/languages", s.handleLanguages)
		r.Get("/content/{lang}", s.handleContent)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/me", s.handleMe)
			r.Route("/requests", func(r chi.Router) {
				r.Get("/", s.handleListRequests)
				r.Post("/", s.handleCreateRequest)
				r.Get("/{id}", s.handleGetRequest)
				r.Patch("/{id}", s.handleTransitionRequest)
				r.Get("/{id}/timeline", s.handleTimeline)
				r.Post("/{id}/cancel", s.handleCancelRequest)
				r.Post("/{id}/accept", s.handleAcceptRequest)
			})
		})
	})
	return r
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, role, err := s.authService.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, elapsed)
		}
		s.log().Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
		)
	})
}

func actorFrom(r *http.Request) (servicerequest.Actor, bool) {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
	if userID == "" {
		return servicerequest.Actor{}, false
	}
	return servicerequest.Actor{ID: userID, Role: string(role)}, true
}

type apiError struct {
	Error string `json:"error"`
	Step  int    `json:"step,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps domain errors onto status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *spraying.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: verr.Notice, Step: verr.Step})
	case errors.Is(err, servicerequest.ErrNotFound),
		errors.Is(err, provider.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, content.ErrUnsupportedLanguage):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, servicerequest.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, servicerequest.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, servicerequest.ErrAmountMismatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, spraying.ErrUnknownCoupon),
		errors.Is(err, spraying.ErrInvalidQuantity),
		errors.Is(err, servicerequest.ErrUnknownProvider),
		errors.Is(err, requestfilter.ErrUnknownStatus),
		errors.Is(err, calendar.ErrInvalidDate),
		errors.Is(err, calendar.ErrInvalidCursor),
		errors.Is(err, drone.ErrInvalidDistance),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		s.log().Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
