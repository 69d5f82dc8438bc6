package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/models"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/store"

	"github.com/google/uuid"
)

const (
	testOrgID     = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	testTokenID   = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	testCounterID = "cccccccc-cccc-cccc-cccc-cccccccccccc"
	testUserID    = "dddddddd-dddd-dddd-dddd-dddddddddddd"
)

var testSecret = []byte("test-secret")

type fakeStore struct {
	createFn     func(ctx context.Context, input store.CreateTokenInput) (store.CreateTokenResult, error)
	getFn        func(ctx context.Context, organizationID, tokenID string) (models.Token, error)
	listFn       func(ctx context.Context, filter store.ListTokensFilter) ([]models.Token, error)
	callFn       func(ctx context.Context, input store.CallNextInput) (models.Token, bool, error)
	startFn      func(ctx context.Context, input store.TokenActionInput) (models.Token, error)
	completeFn   func(ctx context.Context, input store.TokenActionInput) (models.Token, error)
	noShowFn     func(ctx context.Context, input store.TokenActionInput) (models.Token, error)
	recallFn     func(ctx context.Context, input store.TokenActionInput) (models.Token, error)
	cancelFn     func(ctx context.Context, input store.TokenActionInput) (models.Token, error)
	announceFn   func(ctx context.Context, input store.TokenActionInput) (models.Token, error)
	bulkUpdateFn func(ctx context.Context, input store.BulkTokenInput) ([]models.Token, error)
	bulkCancelFn func(ctx context.Context, input store.BulkTokenInput) (int, error)
	statusFn     func(ctx context.Context, organizationID, counterID string) (store.QueueStatus, error)
	statsFn      func(ctx context.Context, organizationID string, from, to time.Time) (store.QueueStats, error)
}

func (f fakeStore) CreateToken(ctx context.Context, input store.CreateTokenInput) (store.CreateTokenResult, error) {
	if f.createFn == nil {
		return store.CreateTokenResult{}, nil
	}
	return f.createFn(ctx, input)
}

func (f fakeStore) GetToken(ctx context.Context, organizationID, tokenID string) (models.Token, error) {
	if f.getFn == nil {
		return models.Token{}, nil
	}
	return f.getFn(ctx, organizationID, tokenID)
}

func (f fakeStore) ListTokens(ctx context.Context, filter store.ListTokensFilter) ([]models.Token, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, filter)
}

func (f fakeStore) CallNext(ctx context.Context, input store.CallNextInput) (models.Token, bool, error) {
	if f.callFn == nil {
		return models.Token{}, false, nil
	}
	return f.callFn(ctx, input)
}

func (f fakeStore) StartServing(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	if f.startFn == nil {
		return models.Token{}, nil
	}
	return f.startFn(ctx, input)
}

func (f fakeStore) CompleteService(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	if f.completeFn == nil {
		return models.Token{}, nil
	}
	return f.completeFn(ctx, input)
}

func (f fakeStore) MarkNoShow(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	if f.noShowFn == nil {
		return models.Token{}, nil
	}
	return f.noShowFn(ctx, input)
}

func (f fakeStore) RecallToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	if f.recallFn == nil {
		return models.Token{}, nil
	}
	return f.recallFn(ctx, input)
}

func (f fakeStore) CancelToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	if f.cancelFn == nil {
		return models.Token{}, nil
	}
	return f.cancelFn(ctx, input)
}

func (f fakeStore) RepeatAnnounce(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	if f.announceFn == nil {
		return models.Token{}, nil
	}
	return f.announceFn(ctx, input)
}

func (f fakeStore) BulkUpdateTokens(ctx context.Context, input store.BulkTokenInput) ([]models.Token, error) {
	if f.bulkUpdateFn == nil {
		return nil, nil
	}
	return f.bulkUpdateFn(ctx, input)
}

func (f fakeStore) BulkCancelTokens(ctx context.Context, input store.BulkTokenInput) (int, error) {
	if f.bulkCancelFn == nil {
		return 0, nil
	}
	return f.bulkCancelFn(ctx, input)
}

func (f fakeStore) GetQueueStatus(ctx context.Context, organizationID, counterID string) (store.QueueStatus, error) {
	if f.statusFn == nil {
		return store.QueueStatus{}, nil
	}
	return f.statusFn(ctx, organizationID, counterID)
}

func (f fakeStore) GetQueueStats(ctx context.Context, organizationID string, from, to time.Time) (store.QueueStats, error) {
	if f.statsFn == nil {
		return store.QueueStats{}, nil
	}
	return f.statsFn(ctx, organizationID, from, to)
}

type fakeAdmin struct {
	authenticateFn func(ctx context.Context, email, password string) (models.User, error)
	createUserFn   func(ctx context.Context, input store.CreateUserInput) (models.User, error)
	getUserFn      func(ctx context.Context, organizationID, userID string) (models.User, error)
	listUsersFn    func(ctx context.Context, organizationID, query string, limit, offset int) ([]models.User, error)
	createOrgFn    func(ctx context.Context, input store.CreateOrganizationInput) (models.Organization, models.User, error)
	upsertFn       func(ctx context.Context, input store.UpsertQueueSettingInput) (models.QueueSetting, error)
	resetFn        func(ctx context.Context, organizationID, customerType, actorID string) (models.QueueSetting, error)
	listLogsFn     func(ctx context.Context, filter store.ListLogsFilter) ([]models.SystemLog, error)
	listCountersFn func(ctx context.Context, organizationID string) ([]models.Counter, error)
}

func (f fakeAdmin) CreateOrganization(ctx context.Context, input store.CreateOrganizationInput) (models.Organization, models.User, error) {
	if f.createOrgFn == nil {
		return models.Organization{}, models.User{}, nil
	}
	return f.createOrgFn(ctx, input)
}

func (f fakeAdmin) GetOrganization(ctx context.Context, organizationID string) (models.Organization, error) {
	return models.Organization{OrganizationID: organizationID}, nil
}

func (f fakeAdmin) CreateUser(ctx context.Context, input store.CreateUserInput) (models.User, error) {
	if f.createUserFn == nil {
		return models.User{}, nil
	}
	return f.createUserFn(ctx, input)
}

func (f fakeAdmin) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	if f.authenticateFn == nil {
		return models.User{}, store.ErrInvalidCredentials
	}
	return f.authenticateFn(ctx, email, password)
}

func (f fakeAdmin) GetUser(ctx context.Context, organizationID, userID string) (models.User, error) {
	if f.getUserFn == nil {
		return models.User{UserID: userID, OrganizationID: organizationID}, nil
	}
	return f.getUserFn(ctx, organizationID, userID)
}

func (f fakeAdmin) ListUsers(ctx context.Context, organizationID, query string, limit, offset int) ([]models.User, error) {
	if f.listUsersFn == nil {
		return nil, nil
	}
	return f.listUsersFn(ctx, organizationID, query, limit, offset)
}

func (f fakeAdmin) UpdateUserRole(ctx context.Context, organizationID, userID, role, actorID string) error {
	return nil
}

func (f fakeAdmin) SetUserActive(ctx context.Context, organizationID, userID string, active bool, actorID string) error {
	return nil
}

func (f fakeAdmin) CreateCounter(ctx context.Context, counter models.Counter, actorID string) (models.Counter, error) {
	return counter, nil
}

func (f fakeAdmin) ListCounters(ctx context.Context, organizationID string) ([]models.Counter, error) {
	if f.listCountersFn == nil {
		return nil, nil
	}
	return f.listCountersFn(ctx, organizationID)
}

func (f fakeAdmin) UpdateCounter(ctx context.Context, counter models.Counter, actorID string) (models.Counter, error) {
	return counter, nil
}

func (f fakeAdmin) UpsertQueueSetting(ctx context.Context, input store.UpsertQueueSettingInput) (models.QueueSetting, error) {
	if f.upsertFn == nil {
		return models.QueueSetting{}, nil
	}
	return f.upsertFn(ctx, input)
}

func (f fakeAdmin) ListQueueSettings(ctx context.Context, organizationID string) ([]models.QueueSetting, error) {
	return nil, nil
}

func (f fakeAdmin) ResetQueueNumber(ctx context.Context, organizationID, customerType, actorID string) (models.QueueSetting, error) {
	if f.resetFn == nil {
		return models.QueueSetting{}, nil
	}
	return f.resetFn(ctx, organizationID, customerType, actorID)
}

func (f fakeAdmin) ResetDueDailyCounters(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (f fakeAdmin) ListSystemLogs(ctx context.Context, filter store.ListLogsFilter) ([]models.SystemLog, error) {
	if f.listLogsFn == nil {
		return nil, nil
	}
	return f.listLogsFn(ctx, filter)
}

func newTestHandler(tokens fakeStore, admin fakeAdmin) http.Handler {
	h := NewHandler(tokens, admin, Options{JWTSecret: testSecret, TokenTTL: time.Hour})
	return AuthMiddleware(testSecret, h.Routes())
}

func signTestToken(t *testing.T, role string) string {
	t.Helper()
	token, err := IssueToken(testSecret, models.User{
		UserID:         testUserID,
		OrganizationID: testOrgID,
		Role:           role,
	}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, handler http.Handler, method, path, role string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+signTestToken(t, role))
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestCreateTokenSuccess(t *testing.T) {
	var captured store.CreateTokenInput
	handler := newTestHandler(fakeStore{
		createFn: func(ctx context.Context, input store.CreateTokenInput) (store.CreateTokenResult, error) {
			captured = input
			estimate := 10
			return store.CreateTokenResult{
				Token: models.Token{
					TokenID:              testTokenID,
					OrganizationID:       input.OrganizationID,
					Number:               "I001",
					CustomerType:         input.CustomerType,
					Status:               models.StatusWaiting,
					EstimatedWaitMinutes: &estimate,
				},
				Position:             2,
				EstimatedWaitMinutes: estimate,
			}, nil
		},
	}, fakeAdmin{})

	resp := doRequest(t, handler, http.MethodPost, "/api/tokens", "", map[string]interface{}{
		"organization_id": testOrgID,
		"customer_type":   "instant",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.OrganizationID != testOrgID || captured.CustomerType != "instant" {
		t.Fatalf("unexpected input: %+v", captured)
	}

	var result store.CreateTokenResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Token.Number != "I001" || result.Position != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCreateTokenUnknownCustomerType(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodPost, "/api/tokens", "", map[string]interface{}{
		"organization_id": testOrgID,
		"customer_type":   "walkup",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateTokenQueueNotConfigured(t *testing.T) {
	handler := newTestHandler(fakeStore{
		createFn: func(ctx context.Context, input store.CreateTokenInput) (store.CreateTokenResult, error) {
			return store.CreateTokenResult{}, store.ErrQueueNotConfigured
		},
	}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodPost, "/api/tokens", "", map[string]interface{}{
		"organization_id": testOrgID,
		"customer_type":   "retail",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != "queue_not_configured" {
		t.Fatalf("expected queue_not_configured, got %s", body.Error.Code)
	}
}

func TestCreateTokenOrganizationFromClaims(t *testing.T) {
	var captured store.CreateTokenInput
	handler := newTestHandler(fakeStore{
		createFn: func(ctx context.Context, input store.CreateTokenInput) (store.CreateTokenResult, error) {
			captured = input
			return store.CreateTokenResult{}, nil
		},
	}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodPost, "/api/tokens", models.RoleStaff, map[string]interface{}{
		"customer_type": "browser",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.OrganizationID != testOrgID || captured.StaffID != testUserID {
		t.Fatalf("expected claims to fill org and staff, got %+v", captured)
	}
}

func TestListTokensActiveFilter(t *testing.T) {
	var captured store.ListTokensFilter
	handler := newTestHandler(fakeStore{
		listFn: func(ctx context.Context, filter store.ListTokensFilter) ([]models.Token, error) {
			captured = filter
			return nil, nil
		},
	}, fakeAdmin{})

	resp := doRequest(t, handler, http.MethodGet, "/api/tokens?active=true", models.RoleStaff, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !captured.ActiveOnly {
		t.Fatal("expected ActiveOnly to be set")
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/tokens?active=true&status=completed", models.RoleStaff, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for conflicting filters, got %d", resp.Code)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/tokens?active=maybe", models.RoleStaff, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad boolean, got %d", resp.Code)
	}
}

func TestCallNextSuccess(t *testing.T) {
	handler := newTestHandler(fakeStore{
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Token, bool, error) {
			if input.OrganizationID != testOrgID || input.CounterID != testCounterID {
				t.Fatalf("unexpected input: %+v", input)
			}
			return models.Token{TokenID: testTokenID, Status: models.StatusCalled, Number: "I001"}, true, nil
		},
	}, fakeAdmin{})

	resp := doRequest(t, handler, http.MethodPost, "/api/tokens/actions/call-next", models.RoleStaff, map[string]interface{}{
		"counter_id": testCounterID,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	handler := newTestHandler(fakeStore{
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Token, bool, error) {
			return models.Token{}, false, nil
		},
	}, fakeAdmin{})

	resp := doRequest(t, handler, http.MethodPost, "/api/tokens/actions/call-next", models.RoleStaff, map[string]interface{}{
		"counter_id": testCounterID,
	})
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestCallNextRequiresAuth(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodPost, "/api/tokens/actions/call-next", "", map[string]interface{}{
		"counter_id": testCounterID,
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestTokenActionInvalidState(t *testing.T) {
	handler := newTestHandler(fakeStore{
		startFn: func(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
			return models.Token{}, store.ErrInvalidState
		},
	}, fakeAdmin{})

	resp := doRequest(t, handler, http.MethodPost, "/api/tokens/"+testTokenID+"/actions/start", models.RoleStaff, map[string]interface{}{})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestTokenActionNotFound(t *testing.T) {
	handler := newTestHandler(fakeStore{
		cancelFn: func(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
			return models.Token{}, store.ErrTokenNotFound
		},
	}, fakeAdmin{})

	resp := doRequest(t, handler, http.MethodPost, "/api/tokens/"+testTokenID+"/actions/cancel", models.RoleStaff, map[string]interface{}{})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestTokenActionUnknownAction(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodPost, "/api/tokens/"+testTokenID+"/actions/teleport", models.RoleStaff, map[string]interface{}{})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestRecallRequiresCounter(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodPost, "/api/tokens/"+testTokenID+"/actions/recall", models.RoleStaff, map[string]interface{}{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestAnnounceCounterMismatch(t *testing.T) {
	handler := newTestHandler(fakeStore{
		announceFn: func(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
			return models.Token{}, store.ErrCounterMismatch
		},
	}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodPost, "/api/tokens/"+testTokenID+"/actions/announce", models.RoleStaff, map[string]interface{}{
		"counter_id": testCounterID,
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestBulkUpdateRequiresAdmin(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodPost, "/api/tokens/actions/bulk-update", models.RoleStaff, map[string]interface{}{
		"token_ids": []string{testTokenID},
		"priority":  5,
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestBulkUpdateTooManyIDs(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	ids := make([]string, store.BulkMaxItems+1)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	resp := doRequest(t, handler, http.MethodPost, "/api/tokens/actions/bulk-update", models.RoleAdmin, map[string]interface{}{
		"token_ids": ids,
		"priority":  5,
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestBulkCancelMembershipMismatch(t *testing.T) {
	handler := newTestHandler(fakeStore{
		bulkCancelFn: func(ctx context.Context, input store.BulkTokenInput) (int, error) {
			return 0, store.ErrBulkMismatch
		},
	}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodPost, "/api/tokens/actions/bulk-cancel", models.RoleAdmin, map[string]interface{}{
		"token_ids": []string{testTokenID},
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != "bulk_mismatch" {
		t.Fatalf("expected bulk_mismatch, got %s", body.Error.Code)
	}
}

func TestQueueStatusPublic(t *testing.T) {
	handler := newTestHandler(fakeStore{
		statusFn: func(ctx context.Context, organizationID, counterID string) (store.QueueStatus, error) {
			return store.QueueStatus{OrganizationID: organizationID, WaitingCount: 3}, nil
		},
	}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodGet, "/api/queue/status?organization_id="+testOrgID, "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var status store.QueueStatus
	if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.WaitingCount != 3 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestQueueStatsRejectsInvertedRange(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodGet,
		"/api/queue/stats?from=2026-08-31T12:00:00Z&to=2026-08-31T10:00:00Z", models.RoleAdmin, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestLoginSuccess(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{
		authenticateFn: func(ctx context.Context, email, password string) (models.User, error) {
			return models.User{UserID: testUserID, OrganizationID: testOrgID, Email: email, Role: models.RoleStaff, Active: true}, nil
		},
	})
	resp := doRequest(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "staff@example.com",
		"password": "secret123",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body loginResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	claims, err := ParseToken(testSecret, body.Token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.UserID != testUserID || claims.OrganizationID != testOrgID || claims.Role != models.RoleStaff {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{
		authenticateFn: func(ctx context.Context, email, password string) (models.User, error) {
			return models.User{}, store.ErrInvalidCredentials
		},
	})
	resp := doRequest(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "staff@example.com",
		"password": "wrong",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestRegisterStaffForbidden(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodPost, "/api/auth/register", models.RoleStaff, map[string]string{
		"email":    "new@example.com",
		"password": "secret123",
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestRegisterSuperAdminEscalationBlocked(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodPost, "/api/auth/register", models.RoleAdmin, map[string]string{
		"email":    "new@example.com",
		"password": "secret123",
		"role":     models.RoleSuperAdmin,
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestUpsertQueueSettingValidation(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodPut, "/api/queue/settings", models.RoleAdmin, map[string]interface{}{
		"customer_type": "instant",
		"prefix":        "TOOLONG",
		"max_number":    999,
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for long prefix, got %d", resp.Code)
	}

	resp = doRequest(t, handler, http.MethodPut, "/api/queue/settings", models.RoleAdmin, map[string]interface{}{
		"customer_type": "instant",
		"prefix":        "I",
		"max_number":    999,
		"reset_time":    "25:00",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad reset_time, got %d", resp.Code)
	}
}

func TestOrganizationBootstrap(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{
		createOrgFn: func(ctx context.Context, input store.CreateOrganizationInput) (models.Organization, models.User, error) {
			return models.Organization{OrganizationID: testOrgID, Name: input.Name},
				models.User{UserID: testUserID, Email: input.AdminEmail, Role: models.RoleAdmin}, nil
		},
	})
	resp := doRequest(t, handler, http.MethodPost, "/api/organizations", "", map[string]string{
		"name":           "Acme Clinic",
		"admin_email":    "admin@acme.example",
		"admin_password": "secret123",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestOrganizationBootstrapAdminForbidden(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodPost, "/api/organizations", models.RoleAdmin, map[string]string{
		"name":           "Acme Clinic",
		"admin_email":    "admin@acme.example",
		"admin_password": "secret123",
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestLogsRequireAdmin(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	resp := doRequest(t, handler, http.MethodGet, "/api/logs", models.RoleStaff, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestInvalidJSONRejected(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", bytes.NewReader([]byte("{not json")))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	handler := newTestHandler(fakeStore{}, fakeAdmin{})
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", bytes.NewReader([]byte(`{"organization_id":"`+testOrgID+`","customer_type":"instant","bogus":true}`)))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
