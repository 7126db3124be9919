package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiremebahamas/hirebahamas-api/internal/auth"
	"github.com/hiremebahamas/hirebahamas-api/internal/config"
	"github.com/hiremebahamas/hirebahamas-api/internal/database"
	"github.com/hiremebahamas/hirebahamas-api/internal/handlers"
)

type testServer struct {
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DatabaseConfig{URL: "sqlite:///" + filepath.Join(t.TempDir(), "api.db")}
	m := database.NewManager(cfg, database.WithOnReady(database.Bootstrap(zerolog.Nop())))
	t.Cleanup(func() { _ = m.Close() })

	h := &handlers.Handlers{
		DB:       database.NewRouter(m),
		DBConfig: cfg,
		Tokens:   auth.NewTokenIssuer("test-secret", time.Hour),
		Log:      zerolog.Nop(),
	}
	return &testServer{engine: SetupRouter(h, "http://localhost:5173")}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func register(t *testing.T, s *testServer, email, userType string) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email":     email,
		"password":  "correct horse",
		"firstName": "Kendra",
		"lastName":  "Rolle",
		"userType":  userType,
		"location":  "Nassau",
	})
	require.Equal(t, http.StatusCreated, code, body)
	return body["access_token"].(string)
}

func TestRegisterLoginAndProfile(t *testing.T) {
	s := newTestServer(t)
	register(t, s, "Kendra@Example.com", "job_seeker")

	code, body := s.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email": "kendra@example.com", "password": "another one", "firstName": "K", "lastName": "R",
	})
	assert.Equal(t, http.StatusConflict, code, body)

	code, body = s.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email": "kendra@example.com", "password": "wrong password",
	})
	assert.Equal(t, http.StatusUnauthorized, code, body)

	code, body = s.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email": "kendra@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusOK, code, body)
	token := body["access_token"].(string)

	code, body = s.do(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, code, body)
	user := body["user"].(map[string]any)
	assert.Equal(t, "kendra@example.com", user["email"])
	assert.Equal(t, "Nassau", user["location"])
	assert.Equal(t, true, user["isActive"])
	assert.NotContains(t, user, "passwordHash")
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email": "not-an-email", "password": "correct horse", "firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email": "a@b.com", "password": "correct horse", "firstName": "A", "lastName": "B", "userType": "admin",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestJobLifecycle(t *testing.T) {
	s := newTestServer(t)
	employer := register(t, s, "hr@atlantis.example", "employer")
	seeker := register(t, s, "seeker@example.com", "job_seeker")

	job := map[string]any{
		"title":       "Front Desk Agent",
		"company":     "Atlantis",
		"location":    "Paradise Island",
		"description": "Greet guests.",
		"jobType":     "full-time",
		"salaryMin":   28000,
		"salaryMax":   35000,
	}

	code, _ := s.do(t, http.MethodPost, "/api/jobs", "", job)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.do(t, http.MethodPost, "/api/jobs", seeker, job)
	assert.Equal(t, http.StatusForbidden, code)

	code, body := s.do(t, http.MethodPost, "/api/jobs", employer, job)
	require.Equal(t, http.StatusCreated, code, body)
	created := body["job"].(map[string]any)
	slug := created["slug"].(string)
	assert.Regexp(t, `^front-desk-agent-[0-9a-f]{8}$`, slug)

	code, body = s.do(t, http.MethodPost, "/api/jobs", employer, map[string]any{
		"title": "Chef", "company": "Atlantis", "location": "Nassau", "description": "Cook.",
		"salaryMin": 50000, "salaryMax": 40000,
	})
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, body = s.do(t, http.MethodGet, "/api/jobs?q=desk", "", nil)
	require.Equal(t, http.StatusOK, code, body)
	jobs := body["jobs"].([]any)
	require.Len(t, jobs, 1)
	assert.Equal(t, slug, jobs[0].(map[string]any)["slug"])

	code, body = s.do(t, http.MethodGet, "/api/jobs?location=freeport", "", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Empty(t, body["jobs"])

	code, body = s.do(t, http.MethodGet, "/api/jobs/"+slug, "", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Atlantis", body["job"].(map[string]any)["company"])

	code, _ = s.do(t, http.MethodGet, "/api/jobs/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodGet, "/api/jobs?limit=500", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	db := body["database"].(map[string]any)
	assert.Equal(t, "DATABASE_URL", db["source"])
	assert.Equal(t, "sqlite", db["scheme"])

	code, body = s.do(t, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["checks"].(map[string]any)["primary"])
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}
