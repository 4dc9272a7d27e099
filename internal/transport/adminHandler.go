package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/entity"
	"github.com/hlachaal/24hkids-platform/pkg/queue"

	"github.com/gin-gonic/gin"
)

// QueueStatsSource reports notification queue depths.
type QueueStatsSource interface {
	GetQueueStats(ctx context.Context) (*queue.QueueStats, error)
}

// AdminHandler exposes the audit log and the notification queue.
type AdminHandler struct {
	audit repository.AuditRepository
	dlq   queue.DLQHandler
	stats QueueStatsSource
}

// NewAdminHandler accepts nil dlq and stats when no queue is configured; the
// queue routes then answer 503.
func NewAdminHandler(audit repository.AuditRepository, dlq queue.DLQHandler, stats QueueStatsSource) *AdminHandler {
	return &AdminHandler{audit: audit, dlq: dlq, stats: stats}
}

func (h *AdminHandler) GetAuditTrail(c *gin.Context) {
	targetID, ok := pathID(c, "target_id")
	if !ok {
		return
	}

	entries, err := h.audit.GetByTarget(c.Request.Context(), targetID)
	if err != nil {
		respondError(c, err)
		return
	}

	page, meta := paginate(c, entries)
	meta["target_id"] = targetID
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Audit trail retrieved",
		Data:    page,
		Meta:    meta,
	})
}

const maxAuditPage = 500

// ListAuditLog returns audit entries newest first. from and to are calendar
// dates and both are inclusive.
func (h *AdminHandler) ListAuditLog(c *gin.Context) {
	filter := repository.AuditFilter{
		Action: entity.AuditAction(strings.ToUpper(strings.TrimSpace(c.Query("action")))),
		Actor:  strings.TrimSpace(c.Query("actor")),
	}

	if v := c.Query("from"); v != "" {
		from, err := entity.ParseDate(v)
		if err != nil {
			badRequest(c, "from: "+err.Error())
			return
		}
		filter.From = from.Time
	}
	if v := c.Query("to"); v != "" {
		to, err := entity.ParseDate(v)
		if err != nil {
			badRequest(c, "to: "+err.Error())
			return
		}
		filter.To = to.Time.Add(24 * time.Hour)
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	if limit > maxAuditPage {
		limit = maxAuditPage
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	filter.Limit, filter.Offset = limit+1, offset

	entries, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Audit log retrieved",
		Data:    entries,
		Meta: map[string]interface{}{
			"limit":    limit,
			"offset":   offset,
			"count":    len(entries),
			"has_more": hasMore,
		},
	})
}

func (h *AdminHandler) GetQueueStats(c *gin.Context) {
	if h.stats == nil {
		queueDisabled(c)
		return
	}

	stats, err := h.stats.GetQueueStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Queue stats retrieved", stats)
}

func (h *AdminHandler) GetFailedTasks(c *gin.Context) {
	if !h.queueEnabled(c) {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	tasks, err := h.dlq.GetFailedTasks(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Failed tasks retrieved", tasks)
}

func (h *AdminHandler) RequeueFailedTask(c *gin.Context) {
	if !h.queueEnabled(c) {
		return
	}

	taskID := c.Param("task_id")
	if err := h.dlq.RequeueFailedTask(c.Request.Context(), taskID); err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Error: err.Error(), Kind: "not_found"})
			return
		}
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Task requeued", gin.H{"task_id": taskID})
}

func (h *AdminHandler) DeleteFailedTask(c *gin.Context) {
	if !h.queueEnabled(c) {
		return
	}

	taskID := c.Param("task_id")
	if err := h.dlq.DeleteFailedTask(c.Request.Context(), taskID); err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Error: err.Error(), Kind: "not_found"})
			return
		}
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Task deleted", gin.H{"task_id": taskID})
}

func (h *AdminHandler) queueEnabled(c *gin.Context) bool {
	if h.dlq == nil {
		queueDisabled(c)
		return false
	}
	return true
}

func queueDisabled(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{Success: false, Error: "notification queue is not configured"})
}
