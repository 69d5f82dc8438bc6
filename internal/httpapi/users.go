package httpapi

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/models"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/store"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	user, err := h.admin.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	token, err := IssueToken(h.jwtSecret, user, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := requireRole(w, r, models.RoleAdmin)
	if !ok {
		return
	}

	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Role = strings.TrimSpace(req.Role)
	if req.Role == "" {
		req.Role = models.RoleStaff
	}
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid_request", "email must be a valid address")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "invalid_request", "password must be at least 8 characters")
		return
	}
	if !models.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown role")
		return
	}
	if req.Role == models.RoleSuperAdmin && claims.Role != models.RoleSuperAdmin {
		writeError(w, http.StatusForbidden, "access_denied", "only super_admin may create super_admin users")
		return
	}

	user, err := h.admin.CreateUser(r.Context(), store.CreateUserInput{
		OrganizationID: resolveOrganization(r, claims),
		Email:          req.Email,
		Password:       req.Password,
		Role:           req.Role,
		ActorID:        claims.UserID,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := requireAuth(w, r)
	if !ok {
		return
	}
	user, err := h.admin.GetUser(r.Context(), claims.OrganizationID, claims.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
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
	offset, ok := parseIntParam(w, query.Get("offset"), "offset")
	if !ok {
		return
	}

	users, err := h.admin.ListUsers(r.Context(), resolveOrganization(r, claims), strings.TrimSpace(query.Get("q")), limit, offset)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleUserActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := requireRole(w, r, models.RoleAdmin)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/users/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	userID := parts[0]
	if !isValidUUID(userID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
		return
	}
	organizationID := resolveOrganization(r, claims)

	switch parts[1] {
	case "role":
		var req struct {
			Role string `json:"role"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Role = strings.TrimSpace(req.Role)
		if !models.ValidRole(req.Role) {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown role")
			return
		}
		if req.Role == models.RoleSuperAdmin && claims.Role != models.RoleSuperAdmin {
			writeError(w, http.StatusForbidden, "access_denied", "only super_admin may grant super_admin")
			return
		}
		if err := h.admin.UpdateUserRole(r.Context(), organizationID, userID, req.Role, claims.UserID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "deactivate":
		if userID == claims.UserID {
			writeError(w, http.StatusConflict, "invalid_state", "cannot deactivate yourself")
			return
		}
		if err := h.admin.SetUserActive(r.Context(), organizationID, userID, false, claims.UserID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "reactivate":
		if err := h.admin.SetUserActive(r.Context(), organizationID, userID, true, claims.UserID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func validEmail(value string) bool {
	if value == "" {
		return false
	}
	_, err := mail.ParseAddress(value)
	return err == nil
}
