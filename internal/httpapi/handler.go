package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"qms/turn-service/internal/engine"
	"qms/turn-service/internal/metrics"
	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"
)

// Engine is the part of the turn engine the HTTP adapter drives.
type Engine interface {
	CreateTurn(ctx context.Context, input store.CreateTurnInput) (models.Turn, bool, error)
	SetWaiting(ctx context.Context, a engine.Action) (models.Turn, bool, error)
	Call(ctx context.Context, a engine.Action) (models.Turn, bool, error)
	Start(ctx context.Context, a engine.Action) (models.Turn, bool, error)
	Finish(ctx context.Context, a engine.Action) (models.Turn, bool, error)
	NoShow(ctx context.Context, a engine.Action) (models.Turn, bool, error)
	Cancel(ctx context.Context, a engine.Action) (models.Turn, bool, error)
	Recall(ctx context.Context, a engine.Action) (models.Turn, bool, error)

	Turn(ctx context.Context, turnID string) (models.Turn, error)
	TurnHistory(ctx context.Context, turnID string) (models.TurnAudit, error)
	ListTurns(ctx context.Context, filter store.TurnFilter) ([]models.Turn, error)
	Queue(ctx context.Context, filter store.QueueFilter) ([]models.Turn, error)
	Display(ctx context.Context) (models.Display, error)
	DoctorWorklist(ctx context.Context, doctorID string) (models.Worklist, error)
	Stats(ctx context.Context, day string) (models.DailyStats, error)

	AssignResource(ctx context.Context, input store.AssignInput) (models.Occupancy, error)
	UpdateOccupancy(ctx context.Context, input store.UpdateOccupancyInput) (models.Occupancy, error)
	ReleaseResource(ctx context.Context, input store.ReleaseInput) (models.ResourceHistory, error)
	DeactivateResource(ctx context.Context, resourceID string) (models.Resource, error)
	Occupancy(ctx context.Context, resourceID string) (models.Occupancy, bool, error)
	Occupancies(ctx context.Context, filter store.OccupancyFilter) ([]models.Occupancy, error)
	ResourceHistory(ctx context.Context, filter store.HistoryFilter) ([]models.ResourceHistory, error)

	Ping(ctx context.Context) error
}

type turnAction func(Engine, context.Context, engine.Action) (models.Turn, bool, error)

var turnActions = map[string]turnAction{
	"waiting": Engine.SetWaiting,
	"call":    Engine.Call,
	"start":   Engine.Start,
	"finish":  Engine.Finish,
	"no-show": Engine.NoShow,
	"cancel":  Engine.Cancel,
	"recall":  Engine.Recall,
}

type Handler struct {
	engine  Engine
	logger  zerolog.Logger
	limiter *RateLimiter
}

type Options struct {
	Logger    zerolog.Logger
	RateLimit RateLimitConfig
}

func NewHandler(eng Engine, options Options) *Handler {
	return &Handler{
		engine:  eng,
		logger:  options.Logger,
		limiter: NewRateLimiter(options.RateLimit),
	}
}

func (h *Handler) Routes() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	router.Use(RequestIDMiddleware, LoggingMiddleware(h.logger), h.limiter.Middleware, ActorMiddleware)

	router.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/turns", h.handleCreateTurn).Methods(http.MethodPost)
	api.HandleFunc("/turns", h.handleListTurns).Methods(http.MethodGet)
	api.HandleFunc("/turns/{id}", h.handleGetTurn).Methods(http.MethodGet)
	api.HandleFunc("/turns/{id}/history", h.handleTurnHistory).Methods(http.MethodGet)
	api.HandleFunc("/turns/{id}/{action}", h.handleTurnAction).Methods(http.MethodPost)
	api.HandleFunc("/queue", h.handleQueue).Methods(http.MethodGet)
	api.HandleFunc("/display", h.handleDisplay).Methods(http.MethodGet)
	api.HandleFunc("/doctors/{id}/turns", h.handleDoctorWorklist).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)

	api.HandleFunc("/occupancy", h.handleListOccupancy).Methods(http.MethodGet)
	api.HandleFunc("/resources/history", h.handleResourceHistory).Methods(http.MethodGet)
	api.HandleFunc("/resources/{id}/occupancy", h.handleGetOccupancy).Methods(http.MethodGet)
	api.HandleFunc("/resources/{id}/occupancy", h.handleUpdateOccupancy).Methods(http.MethodPatch)
	api.HandleFunc("/resources/{id}/assign", h.handleAssign).Methods(http.MethodPost)
	api.HandleFunc("/resources/{id}/release", h.handleRelease).Methods(http.MethodPost)
	api.HandleFunc("/resources/{id}", h.handleDeactivate).Methods(http.MethodDelete)

	return otelhttp.NewHandler(router, "turn-service")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func mapError(err error) (int, string, string) {
	var se *store.Error
	if errors.As(err, &se) {
		message := se.Message
		if message == "" {
			message = string(se.Kind)
		}
		switch se.Kind {
		case store.KindValidation:
			return http.StatusBadRequest, "validation_error", message
		case store.KindNotFound:
			return http.StatusNotFound, "not_found", message
		case store.KindInvalidTransition:
			return http.StatusConflict, "invalid_transition", message
		case store.KindConflict:
			return http.StatusConflict, "conflict", message
		case store.KindUnavailable:
			return http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable"
		}
	}
	switch {
	case errors.Is(err, store.ErrCodeTaken), errors.Is(err, store.ErrDuplicateRequest):
		return http.StatusConflict, "conflict", err.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("request_id", requestIDFromRequest(r)).Str("path", r.URL.Path).Msg("request failed")
	}
	writeErrorDetails(w, requestIDFromRequest(r), status, code, message, store.FieldsOf(err))
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeErrorDetails(w, requestID, status, code, message, nil)
}

func writeErrorDetails(w http.ResponseWriter, requestID string, status int, code, message string, details map[string]string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeRequest reads a JSON body into target. An empty body leaves target
// untouched when optional is set.
func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}, optional bool) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, store.Validation(name+" must be a non-negative integer", name, raw)
	}
	return value, nil
}

// queryStatuses accepts repeated or comma separated status parameters.
func queryStatuses(r *http.Request) ([]models.Status, error) {
	var statuses []models.Status
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			status := models.Status(part)
			if !status.Valid() {
				return nil, store.Validation("unknown status", "status", part)
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}
