package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"notify-mail-relay-go/internal/events"
	"notify-mail-relay-go/internal/service"
	"notify-mail-relay-go/internal/service/supervisor"
	"notify-mail-relay-go/internal/store"
)

// Pinger checks the database connection
type Pinger interface {
	Ping() error
}

// Handlers contains all HTTP handlers
type Handlers struct {
	db         Pinger
	configs    *store.ConfigStore
	history    *store.HistoryStore
	pipeline   *service.Pipeline
	supervisor *supervisor.Supervisor
	bus        events.Bus
	gatherer   prometheus.Gatherer
	now        func() time.Time
}

// NewHandlers creates new HTTP handlers
func NewHandlers(
	db Pinger,
	configs *store.ConfigStore,
	history *store.HistoryStore,
	pipeline *service.Pipeline,
	sup *supervisor.Supervisor,
	bus events.Bus,
	gatherer prometheus.Gatherer,
) *Handlers {
	return &Handlers{
		db:         db,
		configs:    configs,
		history:    history,
		pipeline:   pipeline,
		supervisor: sup,
		bus:        bus,
		gatherer:   gatherer,
		now:        time.Now,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.POST("/notifications", h.PostNotification)
		api.POST("/listener/connected", h.ListenerConnected)
		api.POST("/listener/disconnected", h.ListenerDisconnected)
		api.POST("/lifecycle/boot", h.Boot)

		api.POST("/pipeline/start", h.StartPipeline)
		api.POST("/pipeline/stop", h.StopPipeline)
		api.GET("/pipeline/status", h.GetPipelineStatus)

		api.GET("/config/email", h.GetEmailConfig)
		api.PUT("/config/email", h.UpdateEmailConfig)
		api.PUT("/config/enabled", h.SetEnabled)

		api.GET("/history", h.GetHistory)
		api.GET("/history/:id", h.GetHistoryRecord)
		api.DELETE("/history", h.ClearHistory)
		api.GET("/stats", h.GetStats)

		api.GET("/events", h.StreamEvents)

		api.POST("/supervisor/run-once", h.RunSupervisorOnce)
		api.GET("/supervisor/status", h.GetSupervisorStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:     "ok",
		Timestamp:  h.now(),
		Database:   "ok",
		Pipeline:   "stopped",
		Supervisor: string(h.supervisor.State()),
		Details:    make(map[string]string),
	}

	if err := h.db.Ping(); err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.pipeline.IsRunning() {
		response.Pipeline = "running"
	}
	if h.pipeline.IsHealthy() {
		response.Details["forwarding"] = "healthy"
	} else {
		response.Details["forwarding"] = "degraded"
	}
	if next := h.supervisor.NextRun(); !next.IsZero() {
		response.Details["next_check"] = next.Format(time.RFC3339)
	}
	if last := h.supervisor.LastRun(); !last.IsZero() {
		response.Details["last_check"] = last.Format(time.RFC3339)
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

func errorJSON(c *gin.Context, code int, kind, message string) {
	c.JSON(code, ErrorResponse{
		Error:   kind,
		Message: message,
		Code:    code,
	})
}
