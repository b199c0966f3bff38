package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"invoicechat/internal/transport/http/response"
)

// DependencyCheck is one named probe run by /healthz.
type DependencyCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

type HealthHandler struct {
	appName   string
	env       string
	startedAt time.Time
	checks    []DependencyCheck
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(appName, env string, startedAt time.Time, checks []DependencyCheck) *HealthHandler {
	return &HealthHandler{appName: appName, env: env, startedAt: startedAt, checks: checks}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	allOK := true
	deps := make(map[string]dependencyStatus, len(h.checks))
	for _, check := range h.checks {
		if err := check.Probe(ctx); err != nil {
			allOK = false
			deps[check.Name] = dependencyStatus{OK: false, Message: err.Error()}
			continue
		}
		deps[check.Name] = dependencyStatus{OK: true}
	}

	body := gin.H{
		"app":          h.appName,
		"env":          h.env,
		"uptimeSec":    int(time.Since(h.startedAt).Seconds()),
		"dependencies": deps,
	}
	if !allOK {
		body["code"] = response.CodeDependencyDegraded
		body["message"] = "dependency degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
