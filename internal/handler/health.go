package handler

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness plus the state of the two backing
// stores.  Redis is optional; a nil client reports "disabled".
type HealthHandler struct {
	DB  *sql.DB
	RDB *redis.Client
}

func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{DB: db, RDB: rdb}
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx := c.Request().Context()

	dbStatus := "up"
	if err := h.DB.PingContext(ctx); err != nil {
		dbStatus = "down"
	}

	redisStatus := "disabled"
	if h.RDB != nil {
		redisStatus = "up"
		if err := h.RDB.Ping(ctx).Err(); err != nil {
			redisStatus = "down"
		}
	}

	status, overall := http.StatusOK, "ok"
	if dbStatus != "up" {
		status, overall = http.StatusServiceUnavailable, "degraded"
	}
	return c.JSON(status, echo.Map{
		"status": overall,
		"db":     dbStatus,
		"redis":  redisStatus,
		"time":   time.Now().UTC(),
	})
}
