package modules

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/account-management/pkg/response"
)

// Pinger reports whether a backend is reachable.
type Pinger func(ctx context.Context) error

// HealthModule serves GET /health. Every registered check runs with a short
// timeout; any failure turns the response into a 503.
type HealthModule struct {
	checks map[string]Pinger
}

func NewHealthModule(checks map[string]Pinger) *HealthModule {
	return &HealthModule{checks: checks}
}

func (m *HealthModule) Register(rg *gin.RouterGroup) {
	rg.GET("/health", m.handle)
}

func (m *HealthModule) handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(m.checks))
	healthy := true
	for name, ping := range m.checks {
		if err := ping(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		response.Error[any](c, http.StatusServiceUnavailable, "unhealthy", status)
		return
	}
	response.Success(c, http.StatusOK, status, "ok", nil)
}
