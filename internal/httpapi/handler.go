package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/models"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	tokens    store.TokenStore
	admin     store.AdminStore
	jwtSecret []byte
	tokenTTL  time.Duration
}

type Options struct {
	JWTSecret []byte
	TokenTTL  time.Duration
}

func NewHandler(tokens store.TokenStore, admin store.AdminStore, options Options) *Handler {
	ttl := options.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Handler{
		tokens:    tokens,
		admin:     admin,
		jwtSecret: options.JWTSecret,
		tokenTTL:  ttl,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/tokens", h.handleTokens)
	mux.HandleFunc("/api/tokens/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/tokens/actions/bulk-update", h.handleBulkUpdate)
	mux.HandleFunc("/api/tokens/actions/bulk-cancel", h.handleBulkCancel)
	mux.HandleFunc("/api/tokens/", h.handleTokenByID)
	mux.HandleFunc("/api/queue/status", h.handleQueueStatus)
	mux.HandleFunc("/api/queue/stats", h.handleQueueStats)
	mux.HandleFunc("/api/queue/settings", h.handleQueueSettings)
	mux.HandleFunc("/api/queue/settings/", h.handleQueueSettingReset)
	mux.HandleFunc("/api/counters", h.handleCounters)
	mux.HandleFunc("/api/counters/", h.handleCounterByID)
	mux.HandleFunc("/api/users", h.handleUsers)
	mux.HandleFunc("/api/users/", h.handleUserActions)
	mux.HandleFunc("/api/organizations", h.handleOrganizations)
	mux.HandleFunc("/api/logs", h.handleLogs)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type createTokenRequest struct {
	OrganizationID string            `json:"organization_id"`
	CustomerType   string            `json:"customer_type"`
	Priority       *int              `json:"priority"`
	Notes          string            `json:"notes"`
	Metadata       map[string]string `json:"metadata"`
}

func (h *Handler) handleTokens(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateToken(w, r)
	case http.MethodGet:
		h.handleListTokens(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.CustomerType = strings.TrimSpace(req.CustomerType)
	req.Notes = strings.TrimSpace(req.Notes)

	staffID := ""
	if claims, ok := claimsFromContext(r.Context()); ok {
		staffID = claims.UserID
		if req.OrganizationID == "" {
			req.OrganizationID = claims.OrganizationID
		} else if claims.Role != models.RoleSuperAdmin && req.OrganizationID != claims.OrganizationID {
			writeError(w, http.StatusForbidden, "access_denied", "organization access denied")
			return
		}
	}

	if req.OrganizationID == "" || req.CustomerType == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "organization_id and customer_type are required")
		return
	}
	if !isValidUUID(req.OrganizationID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "organization_id must be a UUID")
		return
	}
	if !models.ValidCustomerType(req.CustomerType) {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_type must be instant, browser, or retail")
		return
	}
	priority := 0
	if req.Priority != nil {
		priority = *req.Priority
		if priority < 0 || priority > 10 {
			writeError(w, http.StatusBadRequest, "invalid_request", "priority must be between 0 and 10")
			return
		}
	}

	result, err := h.tokens.CreateToken(r.Context(), store.CreateTokenInput{
		OrganizationID: req.OrganizationID,
		CustomerType:   req.CustomerType,
		Priority:       priority,
		Notes:          req.Notes,
		Metadata:       req.Metadata,
		StaffID:        staffID,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleListTokens(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireAuth(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := store.ListTokensFilter{
		OrganizationID: resolveOrganization(r, claims),
		Status:         strings.TrimSpace(query.Get("status")),
		CustomerType:   strings.TrimSpace(query.Get("customer_type")),
		CounterID:      strings.TrimSpace(query.Get("counter_id")),
	}
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown status filter")
		return
	}
	if filter.CustomerType != "" && !models.ValidCustomerType(filter.CustomerType) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown customer_type filter")
		return
	}
	switch active := strings.TrimSpace(query.Get("active")); active {
	case "", "false":
	case "true":
		filter.ActiveOnly = true
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "active must be true or false")
		return
	}
	if filter.ActiveOnly && models.Terminal(filter.Status) {
		writeError(w, http.StatusBadRequest, "invalid_request", "status filter conflicts with active=true")
		return
	}
	var ok2 bool
	if filter.Limit, ok2 = parseIntParam(w, query.Get("limit"), "limit"); !ok2 {
		return
	}
	if filter.Offset, ok2 = parseIntParam(w, query.Get("offset"), "offset"); !ok2 {
		return
	}

	tokens, err := h.tokens.ListTokens(r.Context(), filter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

type callNextRequest struct {
	CounterID    string `json:"counter_id"`
	CustomerType string `json:"customer_type"`
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := requireRole(w, r, models.RoleStaff, models.RoleAdmin)
	if !ok {
		return
	}

	var req callNextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CounterID = strings.TrimSpace(req.CounterID)
	req.CustomerType = strings.TrimSpace(req.CustomerType)
	if req.CounterID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "counter_id is required")
		return
	}
	if !isValidUUID(req.CounterID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "counter_id must be a UUID")
		return
	}
	if req.CustomerType != "" && !models.ValidCustomerType(req.CustomerType) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown customer_type")
		return
	}

	token, found, err := h.tokens.CallNext(r.Context(), store.CallNextInput{
		OrganizationID: resolveOrganization(r, claims),
		CounterID:      req.CounterID,
		StaffID:        claims.UserID,
		CustomerType:   req.CustomerType,
		CalledAt:       time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) handleTokenByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tokens/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGetToken(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions" && r.Method == http.MethodPost:
		h.handleTokenAction(w, r, parts[0], parts[2])
	case len(parts) == 1 || (len(parts) == 3 && parts[1] == "actions"):
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetToken(w http.ResponseWriter, r *http.Request, tokenID string) {
	claims, ok := requireAuth(w, r)
	if !ok {
		return
	}
	if !isValidUUID(tokenID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "token_id must be a UUID")
		return
	}
	token, err := h.tokens.GetToken(r.Context(), resolveOrganization(r, claims), tokenID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

type tokenActionRequest struct {
	CounterID              string `json:"counter_id"`
	Reason                 string `json:"reason"`
	Notes                  string `json:"notes"`
	ServiceDurationMinutes *int   `json:"service_duration_minutes"`
	Rating                 *int   `json:"rating"`
}

func (h *Handler) handleTokenAction(w http.ResponseWriter, r *http.Request, tokenID, action string) {
	claims, ok := requireRole(w, r, models.RoleStaff, models.RoleAdmin)
	if !ok {
		return
	}
	if !isValidUUID(tokenID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "token_id must be a UUID")
		return
	}

	var req tokenActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CounterID = strings.TrimSpace(req.CounterID)
	req.Reason = strings.TrimSpace(req.Reason)
	req.Notes = strings.TrimSpace(req.Notes)
	if req.CounterID != "" && !isValidUUID(req.CounterID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "counter_id must be a UUID")
		return
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		writeError(w, http.StatusBadRequest, "invalid_request", "rating must be between 1 and 5")
		return
	}
	if req.ServiceDurationMinutes != nil && *req.ServiceDurationMinutes < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_duration_minutes must not be negative")
		return
	}

	input := store.TokenActionInput{
		OrganizationID:         resolveOrganization(r, claims),
		TokenID:                tokenID,
		CounterID:              req.CounterID,
		StaffID:                claims.UserID,
		Reason:                 req.Reason,
		Notes:                  req.Notes,
		ServiceDurationMinutes: req.ServiceDurationMinutes,
		Rating:                 req.Rating,
		OccurredAt:             time.Now().UTC(),
	}

	var token models.Token
	var err error
	switch action {
	case "start":
		token, err = h.tokens.StartServing(r.Context(), input)
	case "complete":
		token, err = h.tokens.CompleteService(r.Context(), input)
	case "no-show":
		token, err = h.tokens.MarkNoShow(r.Context(), input)
	case "recall":
		if input.CounterID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "counter_id is required")
			return
		}
		token, err = h.tokens.RecallToken(r.Context(), input)
	case "cancel":
		token, err = h.tokens.CancelToken(r.Context(), input)
	case "announce":
		if input.CounterID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "counter_id is required")
			return
		}
		token, err = h.tokens.RepeatAnnounce(r.Context(), input)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	organizationID := strings.TrimSpace(r.URL.Query().Get("organization_id"))
	if claims, ok := claimsFromContext(r.Context()); ok {
		organizationID = resolveOrganization(r, claims)
	}
	if organizationID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "organization_id is required")
		return
	}
	if !isValidUUID(organizationID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "organization_id must be a UUID")
		return
	}
	counterID := strings.TrimSpace(r.URL.Query().Get("counter_id"))
	if counterID != "" && !isValidUUID(counterID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "counter_id must be a UUID")
		return
	}

	status, err := h.tokens.GetQueueStatus(r.Context(), organizationID, counterID)
	if err != nil {
		statusCode, code, msg := mapError(err)
		writeError(w, statusCode, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := requireRole(w, r, models.RoleStaff, models.RoleAdmin)
	if !ok {
		return
	}

	now := time.Now().UTC()
	from := now.Truncate(24 * time.Hour)
	to := now
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "from must be RFC3339 timestamp")
			return
		}
		from = parsed
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "to must be RFC3339 timestamp")
			return
		}
		to = parsed
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "invalid_request", "to must be after from")
		return
	}

	stats, err := h.tokens.GetQueueStats(r.Context(), resolveOrganization(r, claims), from, to)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func parseIntParam(w http.ResponseWriter, raw, name string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", name+" must be a non-negative integer")
		return 0, false
	}
	return value, true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrOrganizationNotFound):
		return http.StatusNotFound, "organization_not_found", "organization not found"
	case errors.Is(err, store.ErrTokenNotFound):
		return http.StatusNotFound, "token_not_found", "token not found"
	case errors.Is(err, store.ErrCounterNotFound):
		return http.StatusNotFound, "counter_not_found", "counter not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "token state does not allow this action"
	case errors.Is(err, store.ErrCounterMismatch):
		return http.StatusConflict, "counter_mismatch", "token assigned to different counter"
	case errors.Is(err, store.ErrQueueNotConfigured):
		return http.StatusBadRequest, "queue_not_configured", "no queue settings for this customer type"
	case errors.Is(err, store.ErrQueueInactive):
		return http.StatusConflict, "queue_inactive", "queue is not accepting tokens"
	case errors.Is(err, store.ErrBulkMismatch):
		return http.StatusBadRequest, "bulk_mismatch", "one or more tokens do not belong to this organization"
	case errors.Is(err, store.ErrEmailTaken):
		return http.StatusConflict, "email_taken", "email already registered"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
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
