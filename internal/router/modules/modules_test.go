package modules

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountapp "github.com/oksasatya/account-management/internal/application"
	"github.com/oksasatya/account-management/internal/infrastructure/memory"
	handlers "github.com/oksasatya/account-management/internal/interface/http"
)

func init() { gin.SetMode(gin.TestMode) }

func TestHealthModule(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
	}{
		{"no checks", nil, http.StatusOK},
		{"all healthy", map[string]Pinger{"postgres": ok, "redis": ok}, http.StatusOK},
		{"one down", map[string]Pinger{"postgres": ok, "redis": down}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			NewHealthModule(tt.checks).Register(r.Group("/api"))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestDebugModuleServesAccountCounters(t *testing.T) {
	r := gin.New()
	api := r.Group("/api")
	NewDebugModule().Register(api)
	svc := accountapp.NewService(memory.NewAccountRepository(), nil)
	NewAccountModule(handlers.NewAccountHandler(svc, nil)).Register(api)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/debug/vars", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var vars map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &vars))
	assert.Contains(t, vars, "accounts")
}

func TestAccountModuleRoutes(t *testing.T) {
	r := gin.New()
	svc := accountapp.NewService(memory.NewAccountRepository(), nil)
	NewAccountModule(handlers.NewAccountHandler(svc, nil)).Register(r.Group("/api"))

	got := map[string]bool{}
	for _, ri := range r.Routes() {
		got[ri.Method+" "+ri.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/users/register",
		"POST /api/v1/users/login",
		"GET /api/v1/users/search",
		"GET /api/v1/users",
		"DELETE /api/v1/users",
		"GET /api/v1/users/:id",
		"PUT /api/v1/users/:id",
		"DELETE /api/v1/users/:id",
	} {
		assert.True(t, got[want], "missing route %s", want)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
