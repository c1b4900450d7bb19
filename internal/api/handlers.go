// Package api exposes HTTP handlers for the tracker.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Varn22/pixel-time-tracker/internal/auth"
	"github.com/Varn22/pixel-time-tracker/internal/domain"
	"github.com/Varn22/pixel-time-tracker/internal/persistence"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxBodyBytes    = 1 << 20
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/users", h.scoped(auth.ScopeUsersWrite, h.registerUser))
	mux.HandleFunc("GET /v1/users/{id}", h.scoped(auth.ScopeProgressRead, h.getUser))
	mux.HandleFunc("PUT /v1/users/{id}/settings", h.scoped(auth.ScopeUsersWrite, h.updateSettings))

	mux.HandleFunc("POST /v1/activities", h.scoped(auth.ScopeActivitiesWrite, h.startActivity))
	mux.HandleFunc("GET /v1/activities", h.scoped(auth.ScopeActivitiesRead, h.listActivities))
	mux.HandleFunc("GET /v1/activities/current", h.scoped(auth.ScopeActivitiesRead, h.currentActivity))
	mux.HandleFunc("POST /v1/activities/stop", h.scoped(auth.ScopeActivitiesWrite, h.stopActivity))
	mux.HandleFunc("POST /v1/activities/log", h.scoped(auth.ScopeActivitiesWrite, h.logActivity))
	mux.HandleFunc("POST /v1/completions", h.scoped(auth.ScopeActivitiesWrite, h.completeActivity))

	mux.HandleFunc("GET /v1/stats", h.scoped(auth.ScopeProgressRead, h.stats))
	mux.HandleFunc("GET /v1/achievements", h.scoped(auth.ScopeProgressRead, h.achievements))

	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// scoped rejects requests whose claims do not grant scope.
func (h *Handler) scoped(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		if !auth.Allows(claims, scope) {
			writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
			return
		}
		next(w, r)
	}
}

func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, existed, err := h.service.RegisterUser(r.Context(), domain.RegisterUserInput{
		TelegramID: req.TelegramID,
		Username:   strings.TrimSpace(req.Username),
		FirstName:  strings.TrimSpace(req.FirstName),
		LastName:   strings.TrimSpace(req.LastName),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, toUserView(*user, h.service.Rules()))
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*user, h.service.Rules()))
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.service.UpdateSettings(r.Context(), r.PathValue("id"), domain.SettingsPatch{
		Theme:                req.Theme,
		Notifications:        req.Notifications,
		DailyGoalMinutes:     req.DailyGoalMinutes,
		BreakReminderMinutes: req.BreakReminderMinutes,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*user, h.service.Rules()))
}

func (h *Handler) startActivity(w http.ResponseWriter, r *http.Request) {
	var req StartActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	input := domain.StartActivityInput{Name: req.Name, Category: req.Category}
	if req.StartedAt != nil {
		input.At = *req.StartedAt
	}
	record, err := h.service.StartActivity(r.Context(), req.UserID, input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*record))
}

func (h *Handler) stopActivity(w http.ResponseWriter, r *http.Request) {
	var req StopActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id is required")
		return
	}

	record, result, err := h.service.StopActivity(r.Context(), req.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	view := toActivityView(*record)
	writeJSON(w, http.StatusOK, CompletedActivityResponse{Activity: &view, Completion: toCompletionView(*result)})
}

func (h *Handler) logActivity(w http.ResponseWriter, r *http.Request) {
	var req LogActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	seconds, err := req.Seconds()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	input := domain.LogActivityInput{Name: req.Name, Category: req.Category, DurationSeconds: seconds}
	if req.EndedAt != nil {
		input.EndedAt = *req.EndedAt
	}
	record, result, err := h.service.LogActivity(r.Context(), req.UserID, input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	view := toActivityView(*record)
	writeJSON(w, http.StatusCreated, CompletedActivityResponse{Activity: &view, Completion: toCompletionView(*result)})
}

func (h *Handler) completeActivity(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	seconds, err := domain.DurationFromSeconds(req.DurationSeconds)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	result, err := h.service.CompleteActivity(r.Context(), req.UserID, seconds)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CompletedActivityResponse{Completion: toCompletionView(*result)})
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxPageSize)
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	if _, err := h.service.GetUser(r.Context(), userID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	records, next, err := h.service.ListActivities(r.Context(), userID, cursor, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]ActivityView, 0, len(records))
	for _, rec := range records {
		items = append(items, toActivityView(rec))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) currentActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	record, err := h.service.CurrentActivity(r.Context(), userID)
	if errors.Is(err, domain.ErrNoActivityInProgress) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*record))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	days := domain.DefaultStatsDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "days must be a positive integer")
			return
		}
		days = parsed
	}

	summary, err := h.service.Stats(r.Context(), userID, days)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) achievements(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	statuses, err := h.service.ListAchievements(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := AchievementsResponse{Items: make([]AchievementView, 0, len(statuses))}
	for _, st := range statuses {
		view := toAchievementView(st.Definition)
		view.Unlocked = st.Unlocked
		view.UnlockedAt = st.UnlockedAt
		if st.Unlocked {
			resp.UnlockedCount++
		}
		resp.Items = append(resp.Items, view)
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeServiceError maps domain errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrActivityInProgress), errors.Is(err, domain.ErrNoActivityInProgress):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &validation), errors.Is(err, domain.ErrInvalidDuration), errors.Is(err, domain.ErrInvalidSettings):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return "", false
	}
	return userID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
