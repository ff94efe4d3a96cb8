package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RunSupervisorOnce runs a liveness check immediately
func (h *Handlers) RunSupervisorOnce(c *gin.Context) {
	h.supervisor.RunOnce()
	c.JSON(http.StatusOK, gin.H{
		"message":  "Supervisor check completed",
		"pipeline": h.pipeline.Status(),
	})
}

// GetSupervisorStatus returns the supervisor status
func (h *Handlers) GetSupervisorStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.supervisor.Status())
}

// StreamEvents streams bus events as Server-Sent Events until the client leaves
func (h *Handlers) StreamEvents(c *gin.Context) {
	// The stream outlives the server's write timeout.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		logrus.Debugf("Event stream keeps the server write deadline: %v", err)
	}

	ch, unsubscribe := h.bus.Subscribe(32)
	defer unsubscribe()

	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(e.Type, e)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
