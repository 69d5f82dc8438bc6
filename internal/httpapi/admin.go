package httpapi

import (
	"net/http"
	"strings"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/models"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/store"
)

type createOrganizationRequest struct {
	Name          string            `json:"name"`
	Settings      map[string]string `json:"settings"`
	AdminEmail    string            `json:"admin_email"`
	AdminPassword string            `json:"admin_password"`
}

type createOrganizationResponse struct {
	Organization models.Organization `json:"organization"`
	Admin        models.User         `json:"admin"`
}

// handleOrganizations bootstraps a tenant. Anonymous requests are allowed so
// a fresh deployment can create its first organization; authenticated
// requests must come from a super_admin.
func (h *Handler) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if claims, ok := claimsFromContext(r.Context()); ok && claims.Role != models.RoleSuperAdmin {
		writeError(w, http.StatusForbidden, "access_denied", "insufficient role")
		return
	}

	var req createOrganizationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.AdminEmail = strings.TrimSpace(req.AdminEmail)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	if !validEmail(req.AdminEmail) {
		writeError(w, http.StatusBadRequest, "invalid_request", "admin_email must be a valid address")
		return
	}
	if len(req.AdminPassword) < 8 {
		writeError(w, http.StatusBadRequest, "invalid_request", "admin_password must be at least 8 characters")
		return
	}

	org, admin, err := h.admin.CreateOrganization(r.Context(), store.CreateOrganizationInput{
		Name:          req.Name,
		Settings:      req.Settings,
		AdminEmail:    req.AdminEmail,
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, createOrganizationResponse{Organization: org, Admin: admin})
}

type counterRequest struct {
	Name            string  `json:"name"`
	AssignedStaffID *string `json:"assigned_staff_id"`
	Active          *bool   `json:"active"`
}

func (h *Handler) handleCounters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		claims, ok := requireAuth(w, r)
		if !ok {
			return
		}
		counters, err := h.admin.ListCounters(r.Context(), resolveOrganization(r, claims))
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, counters)
	case http.MethodPost:
		claims, ok := requireRole(w, r, models.RoleAdmin)
		if !ok {
			return
		}
		var req counterRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		if req.AssignedStaffID != nil && !isValidUUID(*req.AssignedStaffID) {
			writeError(w, http.StatusBadRequest, "invalid_request", "assigned_staff_id must be a UUID")
			return
		}

		counter, err := h.admin.CreateCounter(r.Context(), models.Counter{
			OrganizationID:  resolveOrganization(r, claims),
			Name:            req.Name,
			AssignedStaffID: req.AssignedStaffID,
		}, claims.UserID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, counter)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCounterByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := requireRole(w, r, models.RoleAdmin)
	if !ok {
		return
	}

	counterID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/counters/"), "/")
	if !isValidUUID(counterID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "counter_id must be a UUID")
		return
	}

	var req counterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.AssignedStaffID != nil && *req.AssignedStaffID != "" && !isValidUUID(*req.AssignedStaffID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "assigned_staff_id must be a UUID")
		return
	}

	organizationID := resolveOrganization(r, claims)
	counters, err := h.admin.ListCounters(r.Context(), organizationID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	var current *models.Counter
	for i := range counters {
		if counters[i].CounterID == counterID {
			current = &counters[i]
			break
		}
	}
	if current == nil {
		writeError(w, http.StatusNotFound, "counter_not_found", "counter not found")
		return
	}

	updated := *current
	if req.Name != "" {
		updated.Name = req.Name
	}
	if req.AssignedStaffID != nil {
		if *req.AssignedStaffID == "" {
			updated.AssignedStaffID = nil
		} else {
			updated.AssignedStaffID = req.AssignedStaffID
		}
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	counter, err := h.admin.UpdateCounter(r.Context(), updated, claims.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, counter)
}

type queueSettingRequest struct {
	CustomerType       string  `json:"customer_type"`
	Prefix             string  `json:"prefix"`
	MaxNumber          int     `json:"max_number"`
	ResetDaily         bool    `json:"reset_daily"`
	ResetTime          string  `json:"reset_time"`
	Active             *bool   `json:"active"`
	PriorityMultiplier float64 `json:"priority_multiplier"`
}

func (h *Handler) handleQueueSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		claims, ok := requireRole(w, r, models.RoleStaff, models.RoleAdmin)
		if !ok {
			return
		}
		settings, err := h.admin.ListQueueSettings(r.Context(), resolveOrganization(r, claims))
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		claims, ok := requireRole(w, r, models.RoleAdmin)
		if !ok {
			return
		}
		var req queueSettingRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.CustomerType = strings.TrimSpace(req.CustomerType)
		req.Prefix = strings.TrimSpace(req.Prefix)
		req.ResetTime = strings.TrimSpace(req.ResetTime)
		if !models.ValidCustomerType(req.CustomerType) {
			writeError(w, http.StatusBadRequest, "invalid_request", "customer_type must be instant, browser, or retail")
			return
		}
		if req.Prefix == "" || len(req.Prefix) > 5 {
			writeError(w, http.StatusBadRequest, "invalid_request", "prefix must be 1-5 characters")
			return
		}
		if req.MaxNumber < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "max_number must be at least 1")
			return
		}
		if req.ResetTime == "" {
			req.ResetTime = "00:00"
		}
		if !validResetTime(req.ResetTime) {
			writeError(w, http.StatusBadRequest, "invalid_request", "reset_time must be HH:MM")
			return
		}
		active := true
		if req.Active != nil {
			active = *req.Active
		}
		multiplier := req.PriorityMultiplier
		if multiplier <= 0 {
			multiplier = 1.0
		}

		setting, err := h.admin.UpsertQueueSetting(r.Context(), store.UpsertQueueSettingInput{
			OrganizationID:     resolveOrganization(r, claims),
			CustomerType:       req.CustomerType,
			Prefix:             req.Prefix,
			MaxNumber:          req.MaxNumber,
			ResetDaily:         req.ResetDaily,
			ResetTime:          req.ResetTime,
			Active:             active,
			PriorityMultiplier: multiplier,
			ActorID:            claims.UserID,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, setting)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleQueueSettingReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := requireRole(w, r, models.RoleAdmin)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/queue/settings/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "reset" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	customerType := parts[0]
	if !models.ValidCustomerType(customerType) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown customer_type")
		return
	}

	setting, err := h.admin.ResetQueueNumber(r.Context(), resolveOrganization(r, claims), customerType, claims.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

type bulkUpdateRequest struct {
	TokenIDs  []string `json:"token_ids"`
	Status    *string  `json:"status"`
	Priority  *int     `json:"priority"`
	CounterID *string  `json:"counter_id"`
	Notes     *string  `json:"notes"`
}

func (h *Handler) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := requireRole(w, r, models.RoleAdmin)
	if !ok {
		return
	}

	var req bulkUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validBulkIDs(w, req.TokenIDs) {
		return
	}
	if req.Status == nil && req.Priority == nil && req.CounterID == nil && req.Notes == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "at least one field to update is required")
		return
	}
	if req.Status != nil && !models.ValidStatus(*req.Status) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown status")
		return
	}
	if req.Priority != nil && (*req.Priority < 0 || *req.Priority > 10) {
		writeError(w, http.StatusBadRequest, "invalid_request", "priority must be between 0 and 10")
		return
	}
	if req.CounterID != nil && !isValidUUID(*req.CounterID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "counter_id must be a UUID")
		return
	}

	tokens, err := h.tokens.BulkUpdateTokens(r.Context(), store.BulkTokenInput{
		OrganizationID: resolveOrganization(r, claims),
		StaffID:        claims.UserID,
		TokenIDs:       req.TokenIDs,
		Patch: store.TokenPatch{
			Status:    req.Status,
			Priority:  req.Priority,
			CounterID: req.CounterID,
			Notes:     req.Notes,
		},
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

type bulkCancelRequest struct {
	TokenIDs []string `json:"token_ids"`
	Reason   string   `json:"reason"`
}

func (h *Handler) handleBulkCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := requireRole(w, r, models.RoleAdmin)
	if !ok {
		return
	}

	var req bulkCancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validBulkIDs(w, req.TokenIDs) {
		return
	}

	cancelled, err := h.tokens.BulkCancelTokens(r.Context(), store.BulkTokenInput{
		OrganizationID: resolveOrganization(r, claims),
		StaffID:        claims.UserID,
		TokenIDs:       req.TokenIDs,
		Reason:         strings.TrimSpace(req.Reason),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": cancelled})
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := requireRole(w, r, models.RoleAdmin)
	if !ok {
		return
	}

	query := r.URL.Query()
	limit, ok := parseIntParam(w, query.Get("limit"), "limit")
	if !ok {
		return
	}
	actorID := strings.TrimSpace(query.Get("actor_id"))
	if actorID != "" && !isValidUUID(actorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "actor_id must be a UUID")
		return
	}

	logs, err := h.admin.ListSystemLogs(r.Context(), store.ListLogsFilter{
		OrganizationID: resolveOrganization(r, claims),
		Action:         strings.TrimSpace(query.Get("action")),
		ActorID:        actorID,
		Limit:          limit,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func validBulkIDs(w http.ResponseWriter, tokenIDs []string) bool {
	if len(tokenIDs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "token_ids is required")
		return false
	}
	if len(tokenIDs) > store.BulkMaxItems {
		writeError(w, http.StatusBadRequest, "invalid_request", "token_ids exceeds the maximum of 50 items")
		return false
	}
	seen := make(map[string]struct{}, len(tokenIDs))
	for _, id := range tokenIDs {
		if !isValidUUID(id) {
			writeError(w, http.StatusBadRequest, "invalid_request", "token_ids must be UUIDs")
			return false
		}
		if _, dup := seen[id]; dup {
			writeError(w, http.StatusBadRequest, "invalid_request", "token_ids contains duplicates")
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}

func validResetTime(value string) bool {
	if len(value) != 5 || value[2] != ':' {
		return false
	}
	hour := value[:2]
	minute := value[3:]
	for _, part := range []string{hour, minute} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return hour <= "23" && minute <= "59"
}
