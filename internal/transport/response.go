package transport

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/hlachaal/24hkids-platform/internal/entity"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ActorHeader names the administrator performing a write. It ends up in the
// audit log only.
const ActorHeader = "X-Actor"

type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

type errorKind struct {
	err    error
	status int
	name   string
}

// errorKinds is checked in order; the first match wins.
var errorKinds = []errorKind{
	{entity.ErrNotFound, http.StatusNotFound, "not_found"},
	{entity.ErrValidation, http.StatusBadRequest, "validation"},
	{entity.ErrIneligibleAge, http.StatusUnprocessableEntity, "ineligible_age"},
	{entity.ErrScheduleConflict, http.StatusConflict, "schedule_conflict"},
	{entity.ErrDuplicateBooking, http.StatusConflict, "duplicate_booking"},
	{entity.ErrEventNotBookable, http.StatusConflict, "event_not_bookable"},
	{entity.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
	{entity.ErrTransientStoreConflict, http.StatusServiceUnavailable, "transient_conflict"},
}

func respondError(c *gin.Context, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			c.JSON(k.status, ErrorResponse{Success: false, Error: err.Error(), Kind: k.name})
			return
		}
	}

	logrus.WithError(err).WithFields(logrus.Fields{
		"path":       c.Request.URL.Path,
		"request_id": requestid.Get(c),
	}).Error("Unhandled request error")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: "internal server error"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: msg, Kind: "validation"})
}

func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, SuccessResponse{Success: true, Message: message, Data: data})
}

// pathID reads a positive int64 path parameter. It writes the 400 response
// itself and returns false when the parameter is malformed.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func actor(c *gin.Context) string {
	if a := c.GetHeader(ActorHeader); a != "" {
		return a
	}
	return "anonymous"
}

// paginate applies limit/offset query parameters. Limit defaults to 50 and
// is capped at 100.
func paginate[T any](c *gin.Context, items []T) ([]T, map[string]interface{}) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}

	return items[start:end], map[string]interface{}{
		"total":    len(items),
		"limit":    limit,
		"offset":   offset,
		"has_more": end < len(items),
	}
}
