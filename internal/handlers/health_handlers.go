package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hiremebahamas/hirebahamas-api/internal/database"
)

// Health is the handler for GET /health.
// It never touches the database, so a misconfigured deployment can still
// answer and explain what is wrong.
func (h *Handlers) Health(c *gin.Context) {
	m := h.DB.Manager()
	status := "ok"

	// 1. --- Configuration Check ---
	configured, source, missing := database.ValidateDatabaseConfig(h.DBConfig)
	if !configured {
		status = "degraded"
	}
	db := gin.H{
		"configured": configured,
		"source":     source,
		"missing":    missing,
		"scheme":     database.URLScheme(m.URL(database.RolePrimary)),
		"engines":    m.Status(),
	}

	// 2. --- Strict URL Checks (production only) ---
	if h.DBConfig.Production && configured {
		if ok, reason := database.ValidateURLStructure(m.URL(database.RolePrimary)); !ok {
			status = "degraded"
			db["url_problem"] = reason
		}
	}

	// 3. --- Replica ---
	if m.State(database.RoleReplica) == database.StateFailed {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"database":  db,
		"timestamp": time.Now().UTC(),
	})
}

// Ready is the handler for GET /ready.
// It pings the primary (and the replica when one is configured) and answers
// 503 when the primary cannot be reached. The 3s deadline also bounds engine
// construction, so a probe during an outage does not wait out the full
// connect timeout.
func (h *Handlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	m := h.DB.Manager()
	checks := gin.H{}

	primary, err := m.GetEngine(ctx, database.RolePrimary)
	if err == nil {
		err = primary.Ping(ctx)
	}
	if err != nil {
		h.Log.Warn().Err(err).Msg("readiness check failed for primary")
		checks["primary"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	checks["primary"] = "ok"

	if m.ReplicaConfigured() {
		replica, err := m.GetEngine(ctx, database.RoleReplica)
		switch {
		case err != nil:
			checks["replica"] = "unreachable"
		case replica.Role() != database.RoleReplica:
			checks["replica"] = "failed, serving reads from primary"
		default:
			if err := replica.Ping(ctx); err != nil {
				checks["replica"] = "unreachable"
			} else {
				checks["replica"] = "ok"
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}
