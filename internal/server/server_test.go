package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/entitled/internal/config"
	"github.com/Wikid82/entitled/internal/database"
	"github.com/Wikid82/entitled/internal/models"
	"github.com/Wikid82/entitled/internal/totp"
)

type testEnv struct {
	t       *testing.T
	srv     *Server
	secrets map[string]string
	ids     map[string]string
}

func testConfig() config.Config {
	return config.Config{
		Environment:     "test",
		HTTPPort:        "0",
		EncryptionKey:   bytes.Repeat([]byte{3}, 32),
		JWTSecret:       strings.Repeat("k", 40),
		TokenTTL:        time.Hour,
		SessionDuration: 3 * time.Minute,
		TOTPIssuer:      "ENTITLED Vault",
		CORSOrigins:     []string{"http://localhost:3000"},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.Connect(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	srv, err := New(db, testConfig())
	require.NoError(t, err)

	env := &testEnv{t: t, srv: srv, secrets: map[string]string{}, ids: map[string]string{}}
	for _, u := range []struct {
		name string
		role models.Role
	}{
		{"employee1", models.RoleEmployee},
		{"admin1", models.RoleAdmin},
		{"admin2", models.RoleAdmin},
		{"auditor", models.RoleAuditor},
	} {
		created, secret, err := srv.Services.Auth.CreateUser(context.Background(), "", u.name, u.name+"-pass", u.role)
		require.NoError(t, err)
		env.secrets[u.name] = secret
		env.ids[u.name] = created.ID
	}

	admin, err := srv.Services.Auth.GetUserByID(context.Background(), env.ids["admin1"])
	require.NoError(t, err)
	item, err := srv.Services.Vault.CreateItem(context.Background(), admin, "Retirement Fund", []models.RecordPayload{{
		InvestmentName: "Treasury 2030",
		InvestedAmount: 25000,
		InvestmentDate: "2024-01-15",
		InstrumentType: "Bond",
		Remarks:        "long term",
	}})
	require.NoError(t, err)
	env.ids["item"] = item.ID
	return env
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.Engine.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(username string) string {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": username, "password": username + "-pass"})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(e.t, "bearer", resp.TokenType)
	return resp.AccessToken
}

func (e *testEnv) code(username string) string {
	e.t.Helper()
	c, err := totp.NewVerifier("").GenerateCode(e.secrets[username], time.Now())
	require.NoError(e.t, err)
	return c
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"service":"Entitled"`)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = env.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = env.do(http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.srv.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "employee1", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid username or password")

	w = env.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "employee1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	token := env.login("employee1")
	w = env.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"username":"employee1"`)
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "totp")

	w = env.do(http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/v1/auth/mfa/provisioning", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "otpauth://totp/")
}

func TestRoleGates(t *testing.T) {
	env := newTestEnv(t)
	employee := env.login("employee1")
	admin := env.login("admin1")
	auditor := env.login("auditor")

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/v1/vault/items", auditor, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/api/v1/vault/access", auditor,
		gin.H{"vault_item_id": env.ids["item"], "totp_token": env.code("auditor")}).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/v1/audit/logs", employee, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/v1/audit/logs", admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/api/v1/vault/items", employee, gin.H{"title": "x"}).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/v1/requests/pending", employee, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/api/v1/requests", admin, gin.H{}).Code)

	w := env.do(http.MethodGet, "/api/v1/vault/items", employee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Retirement Fund")
	assert.NotContains(t, w.Body.String(), "Treasury")

	w = env.do(http.MethodGet, "/api/v1/admins", employee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin1")
	assert.Contains(t, w.Body.String(), "admin2")
}

func TestAccessWorkflowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	employee := env.login("employee1")
	admin1 := env.login("admin1")
	admin2 := env.login("admin2")
	auditor := env.login("auditor")
	itemID := env.ids["item"]

	access := func() *httptest.ResponseRecorder {
		return env.do(http.MethodPost, "/api/v1/vault/access", employee,
			gin.H{"vault_item_id": itemID, "totp_token": env.code("employee1")})
	}

	w := access()
	assert.Equal(t, http.StatusForbidden, w.Code, "no approved request yet")

	w = env.do(http.MethodPost, "/api/v1/requests", employee,
		gin.H{"vault_item_id": itemID, "admin_id": env.ids["admin1"], "reason": "annual statement"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = env.do(http.MethodGet, "/api/v1/requests/pending", admin1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.RequestID)
	assert.Contains(t, w.Body.String(), `"employee_username":"employee1"`)

	decide := func(token, decision string) *httptest.ResponseRecorder {
		return env.do(http.MethodPost, "/api/v1/requests/decide", token,
			gin.H{"request_id": created.RequestID, "decision": decision})
	}
	assert.Equal(t, http.StatusBadRequest, decide(admin1, "maybe").Code)
	assert.Equal(t, http.StatusForbidden, decide(admin2, "approve").Code)
	assert.Equal(t, http.StatusOK, decide(admin1, "APPROVE").Code)
	assert.Equal(t, http.StatusConflict, decide(admin1, "reject").Code)

	w = env.do(http.MethodPost, "/api/v1/requests/decide", admin1, gin.H{"request_id": "missing", "decision": "approve"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/v1/vault/access", employee,
		gin.H{"vault_item_id": itemID, "totp_token": "12345"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = access()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var opened struct {
		VaultItem models.VaultItem         `json:"vault_item"`
		Session   models.PrivilegeSession  `json:"session"`
		Records   []models.DecryptedRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opened))
	assert.Equal(t, "Retirement Fund", opened.VaultItem.Title)
	require.Len(t, opened.Records, 1)
	assert.Equal(t, "Treasury 2030", opened.Records[0].InvestmentName)

	w = env.do(http.MethodGet, "/api/v1/vault/sessions/"+itemID, employee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"has_active_session":true`)
	assert.Contains(t, w.Body.String(), opened.Session.ID)

	w = env.do(http.MethodGet, "/api/v1/vault/sessions/"+itemID, admin2, nil)
	assert.Contains(t, w.Body.String(), `"has_active_session":false`)

	w = env.do(http.MethodGet, "/api/v1/requests/mine", employee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"approved"`)

	w = env.do(http.MethodGet, "/api/v1/audit/logs", auditor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := w.Body.String()
	for _, action := range []string{
		models.ActionAccessRequestCreated,
		models.ActionAccessRequestApproved,
		models.ActionVaultAccessGranted,
	} {
		assert.Contains(t, logs, action)
	}
	assert.NotContains(t, logs, "Treasury")
}

func TestVaultItemAdministration(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login("admin1")

	w := env.do(http.MethodPost, "/api/v1/vault/items", admin, gin.H{
		"title":   "Emergency Fund",
		"records": []gin.H{{"investment_name": "Savings", "invested_amount": 5000}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var item models.VaultItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/v1/vault/items/"+item.ID, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/v1/vault/items/"+item.ID, admin, nil).Code)
}

func TestNewRejectsBadKey(t *testing.T) {
	cfg := testConfig()
	cfg.EncryptionKey = []byte("short")
	db, err := database.Connect("file:TestNewRejectsBadKey?mode=memory&cache=shared")
	require.NoError(t, err)

	_, err = New(db, cfg)
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
