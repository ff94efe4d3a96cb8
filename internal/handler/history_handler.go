package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"notify-mail-relay-go/internal/model"
)

// GetHistory returns forward records with pagination. Pages are zero based.
func (h *Handlers) GetHistory(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	if page < 0 {
		page = 0
	}
	if size < 1 || size > 100 {
		size = 20
	}

	now := h.now()
	records := h.history.GetPage(page, size)
	responses := make([]ForwardRecordResponse, 0, len(records))
	for _, r := range records {
		responses = append(responses, toRecordResponse(r, now))
	}

	c.JSON(http.StatusOK, gin.H{
		"records": responses,
		"pagination": gin.H{
			"page":     page,
			"size":     size,
			"total":    h.history.Len(),
			"has_more": h.history.HasMore(page, size),
		},
	})
}

// GetHistoryRecord returns a specific forward record
func (h *Handlers) GetHistoryRecord(c *gin.Context) {
	rec, ok := h.history.Get(c.Param("id"))
	if !ok {
		errorJSON(c, http.StatusNotFound, "not_found", "Record not found")
		return
	}
	c.JSON(http.StatusOK, toRecordResponse(rec, h.now()))
}

// ClearHistory deletes all forward records
func (h *Handlers) ClearHistory(c *gin.Context) {
	if err := h.history.ClearHistory(); err != nil {
		errorJSON(c, http.StatusInternalServerError, "database_error", "Failed to clear history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "History cleared"})
}

// GetStats returns the forwarding statistics
func (h *Handlers) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, model.Statistics{
		TodayCount:   h.configs.TodayCount(),
		TotalCount:   h.configs.TotalCount(),
		LastActive:   h.configs.GetLastActive(),
		SuccessCount: h.history.CountByStatus(model.StatusSuccess),
		FailedCount:  h.history.CountByStatus(model.StatusFailed),
		PendingCount: h.history.CountByStatus(model.StatusPending),
		TodayRecords: len(h.history.TodayRecords(h.now())),
		HistorySize:  h.history.Len(),
	})
}
