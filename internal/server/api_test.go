package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsclarke/keyward/internal/auth"
	"github.com/rsclarke/keyward/internal/db"
	"github.com/rsclarke/keyward/internal/keys"
	"github.com/rsclarke/keyward/internal/models"
	"github.com/rsclarke/keyward/internal/ratelimit"
	"github.com/rsclarke/keyward/internal/stats"
	"github.com/rsclarke/keyward/internal/store"
	"github.com/rsclarke/keyward/internal/validation"
)

type testEnv struct {
	srv     *APIServer
	handler http.Handler
	store   *store.SQLiteStore
	token   string
}

func setupTestAPIServer(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	s := store.NewSQLiteStore(database, 0)
	sessions := auth.NewSessionStore(time.Hour)
	srv := &APIServer{
		Pipeline:    validation.New(s, s, ratelimit.New(), nil),
		Keys:        keys.NewManager(s, nil),
		Stats:       stats.New(s),
		Sessions:    sessions,
		Credentials: auth.Credentials{Username: "admin", Password: "pw"},
	}

	token, err := sessions.Create("admin")
	require.NoError(t, err)

	return &testEnv{srv: srv, handler: srv.Handler(), store: s, token: token}
}

func (e *testEnv) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if authed {
		r.AddCookie(&http.Cookie{Name: SessionCookie, Value: e.token})
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), "body: %s", w.Body.String())
	return v
}

func (e *testEnv) createKey(t *testing.T, name string) models.APIKey {
	t.Helper()
	w := e.do(t, "POST", "/api/keys", `{"name":"`+name+`"}`, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[struct {
		Success bool          `json:"success"`
		Data    models.APIKey `json:"data"`
	}](t, w)
	require.True(t, resp.Success)
	return resp.Data
}

func TestValidateEndpoint(t *testing.T) {
	env := setupTestAPIServer(t)
	key := env.createKey(t, "svc-a")

	limit := 2
	_, err := env.srv.Keys.Update(t.Context(), key.ID, models.KeyUpdate{RateLimit: &limit})
	require.NoError(t, err)

	body := `{"key":"` + key.Key + `"}`
	for _, want := range []float64{1, 0} {
		w := env.do(t, "POST", "/api/validate", body, false)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[map[string]any](t, w)
		assert.Equal(t, true, resp["valid"])
		assert.Equal(t, key.ID, resp["keyId"])
		assert.Equal(t, want, resp["remaining"])
		assert.Equal(t, "API key is valid", resp["message"])
		assert.NotZero(t, resp["resetTime"])
	}

	w := env.do(t, "POST", "/api/validate", body, false)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	resp := decode[map[string]any](t, w)
	assert.Equal(t, false, resp["valid"])
	assert.Equal(t, "Rate limit exceeded", resp["error"])
	assert.NotZero(t, resp["resetTime"])
	assert.NotContains(t, resp, "remaining")
}

func TestValidateEndpointUnknownKey(t *testing.T) {
	env := setupTestAPIServer(t)

	w := env.do(t, "POST", "/api/validate", `{"key":"unknown-secret"}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decode[map[string]any](t, w)
	assert.Equal(t, false, resp["valid"])
	assert.Equal(t, "Invalid or inactive API key", resp["error"])

	events, err := env.store.ListEvents(t.Context())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestValidateEndpointInactiveKey(t *testing.T) {
	env := setupTestAPIServer(t)
	key := env.createKey(t, "svc-b")

	w := env.do(t, "PUT", "/api/keys/"+key.ID, `{"status":"inactive"}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, "POST", "/api/validate", `{"key":"`+key.Key+`"}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	events, err := env.store.ListEvents(t.Context())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
}

func TestValidateEndpointRecordsCaller(t *testing.T) {
	env := setupTestAPIServer(t)
	key := env.createKey(t, "svc-c")

	r := httptest.NewRequest("POST", "/api/validate", strings.NewReader(`{"key":"`+key.Key+`","endpoint":"/v1/orders"}`))
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	r.Header.Set("User-Agent", "orders-svc/1.2")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	events, err := env.store.ListEvents(t.Context())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "203.0.113.7", events[0].IP)
	assert.Equal(t, "/v1/orders", events[0].Endpoint)
	require.NotNil(t, events[0].UserAgent)
	assert.Equal(t, "orders-svc/1.2", *events[0].UserAgent)
}

func TestValidateEndpointRecordsDirectPeer(t *testing.T) {
	env := setupTestAPIServer(t)
	key := env.createKey(t, "svc-d")

	r := httptest.NewRequest("POST", "/api/validate", strings.NewReader(`{"key":"`+key.Key+`"}`))
	r.RemoteAddr = "198.51.100.40:51234"
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	events, err := env.store.ListEvents(t.Context())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "198.51.100.40", events[0].IP)
}

func TestValidateEndpointMalformed(t *testing.T) {
	env := setupTestAPIServer(t)
	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"empty", "", http.StatusBadRequest, "API key is required"},
		{"missing key", `{"endpoint":"/x"}`, http.StatusBadRequest, "API key is required"},
		{"bad json", `{"key":`, http.StatusBadRequest, "Invalid request data"},
		{"unknown field", `{"key":"a","extra":1}`, http.StatusBadRequest, "Invalid request data"},
		{"trailing", `{"key":"a"}{}`, http.StatusBadRequest, "Unexpected trailing data"},
		{"too large", `{"key":"` + strings.Repeat("a", 1<<17) + `"}`, http.StatusRequestEntityTooLarge, "Request body too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/validate", tt.body, false)
			assert.Equal(t, tt.code, w.Code)
			resp := decode[map[string]any](t, w)
			assert.Equal(t, false, resp["valid"])
			assert.Equal(t, tt.msg, resp["error"])
		})
	}
}

func TestAdminRoutesRequireSession(t *testing.T) {
	env := setupTestAPIServer(t)
	routes := []struct{ method, path string }{
		{"GET", "/api/keys"},
		{"POST", "/api/keys"},
		{"GET", "/api/keys/x"},
		{"PUT", "/api/keys/x"},
		{"DELETE", "/api/keys/x"},
		{"GET", "/api/stats"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := env.do(t, rt.method, rt.path, "", false)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			resp := decode[map[string]any](t, w)
			assert.Equal(t, false, resp["success"])
			assert.Equal(t, "Unauthorized", resp["error"])
		})
	}
}

func TestBearerSession(t *testing.T) {
	env := setupTestAPIServer(t)
	r := httptest.NewRequest("GET", "/api/keys", nil)
	r.Header.Set("Authorization", "Bearer "+env.token)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginLogout(t *testing.T) {
	env := setupTestAPIServer(t)

	w := env.do(t, "POST", "/api/auth/login", `{"username":"admin","password":"wrong"}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", decode[map[string]any](t, w)["error"])

	w = env.do(t, "POST", "/api/auth/login", `{"username":"admin"}`, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Password is required", decode[map[string]any](t, w)["error"])

	w = env.do(t, "POST", "/api/auth/login", `{"username":"admin","password":"pw"}`, false)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, SessionCookie, c.Name)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int(time.Hour.Seconds()), c.MaxAge)

	resp := decode[map[string]any](t, w)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, c.Value, resp["token"])

	r := httptest.NewRequest("GET", "/api/keys", nil)
	r.AddCookie(c)
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	r = httptest.NewRequest("POST", "/api/auth/logout", nil)
	r.AddCookie(c)
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":"Logout successful"}`, w.Body.String())
	_, ok := env.srv.Sessions.Validate(c.Value)
	assert.False(t, ok)
}

func TestKeyCRUD(t *testing.T) {
	env := setupTestAPIServer(t)

	w := env.do(t, "POST", "/api/keys", `{"name":"svc-a","description":"orders"}`, true)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[struct {
		Data    models.APIKey `json:"data"`
		Message string        `json:"message"`
	}](t, w)
	assert.Equal(t, "API key created successfully", created.Message)
	assert.True(t, keys.LooksLikeSecret(created.Data.Key))
	id := created.Data.ID

	w = env.do(t, "POST", "/api/keys", `{"name":"svc-a"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Key name already exists", decode[map[string]any](t, w)["error"])

	w = env.do(t, "POST", "/api/keys", `{"name":"`+strings.Repeat("n", 51)+`"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Name must be less than 50 characters", decode[map[string]any](t, w)["error"])

	w = env.do(t, "GET", "/api/keys/"+id, "", true)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/api/keys/missing", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Key not found", decode[map[string]any](t, w)["error"])

	w = env.do(t, "PUT", "/api/keys/"+id, `{"rateLimit":0}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Rate limit must be at least 1", decode[map[string]any](t, w)["error"])

	w = env.do(t, "PUT", "/api/keys/"+id, `{"status":"paused"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Status must be one of: active, inactive", decode[map[string]any](t, w)["error"])

	w = env.do(t, "PUT", "/api/keys/"+id, `{"name":"svc-renamed","rateLimit":500}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[struct {
		Data models.APIKey `json:"data"`
	}](t, w)
	assert.Equal(t, "svc-renamed", updated.Data.Name)
	require.NotNil(t, updated.Data.RateLimit)
	assert.Equal(t, 500, *updated.Data.RateLimit)

	w = env.do(t, "PUT", "/api/keys/missing", `{"name":"z"}`, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "GET", "/api/keys", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Data []models.APIKey `json:"data"`
	}](t, w)
	assert.Len(t, list.Data, 1)

	w = env.do(t, "DELETE", "/api/keys/"+id, "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":"Key deleted successfully"}`, w.Body.String())
	w = env.do(t, "DELETE", "/api/keys/"+id, "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListKeysEmpty(t *testing.T) {
	env := setupTestAPIServer(t)
	w := env.do(t, "GET", "/api/keys", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, w.Body.String())
}

func TestStatsEndpoint(t *testing.T) {
	env := setupTestAPIServer(t)
	key := env.createKey(t, "svc-a")
	for i := 0; i < 3; i++ {
		w := env.do(t, "POST", "/api/validate", `{"key":"`+key.Key+`"}`, false)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do(t, "GET", "/api/stats", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Success bool `json:"success"`
		Data    struct {
			Stats      stats.Summary      `json:"stats"`
			UsageChart []stats.DailyCount `json:"usageChart"`
		} `json:"data"`
	}](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Data.Stats.TotalKeys)
	assert.EqualValues(t, 3, resp.Data.Stats.TotalRequests)
	assert.Equal(t, 3, resp.Data.Stats.RequestsToday)
	require.Len(t, resp.Data.Stats.TopKeys, 1)
	require.Len(t, resp.Data.UsageChart, 7)
	assert.Equal(t, 3, resp.Data.UsageChart[6].Requests)
}

func TestHealthz(t *testing.T) {
	env := setupTestAPIServer(t)
	w := env.do(t, "GET", "/healthz", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusTeapot, map[string]int{"n": 1})
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "{\"n\":1}\n", w.Body.String())

	w = httptest.NewRecorder()
	writeJSON(w, http.StatusOK, make(chan int))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, bytes.HasPrefix(w.Body.Bytes(), []byte("{")))
}
