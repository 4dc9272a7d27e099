package transport

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/hlachaal/24hkids-platform/internal/entity"
	"github.com/hlachaal/24hkids-platform/internal/service"

	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	bookingService service.BookingService
}

func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	req.Actor = actor(c)

	booking, err := h.bookingService.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Booking created", booking)
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookingService.GetBooking(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Booking retrieved", booking)
}

// DeleteBooking accepts the reason either as ?reason= or in a JSON body.
func (h *BookingHandler) DeleteBooking(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.DeleteBookingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}
	if reason := c.Query("reason"); reason != "" {
		req.Reason = reason
	}
	req.BookingID = id
	req.Actor = actor(c)

	result, err := h.bookingService.Delete(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Booking deleted", result)
}

func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookingService.ConfirmFromWaitlist(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Booking confirmed", booking)
}

func (h *BookingHandler) UpdateBookingStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	req.BookingID = id
	req.Status = entity.BookingStatus(strings.ToUpper(string(req.Status)))
	req.Actor = actor(c)

	result, err := h.bookingService.UpdateStatus(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Booking status updated", result)
}

// GetEventBookings lists an event's bookings, CONFIRMED first. It supports
// ?status= filtering and limit/offset pagination.
func (h *BookingHandler) GetEventBookings(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var filter entity.BookingStatus
	if status := c.Query("status"); status != "" {
		filter = entity.BookingStatus(strings.ToUpper(status))
		if !filter.Valid() {
			badRequest(c, "Invalid booking status")
			return
		}
	}

	bookings, err := h.bookingService.GetEventBookings(c.Request.Context(), eventID)
	if err != nil {
		respondError(c, err)
		return
	}

	if filter != "" {
		filtered := make([]*entity.Booking, 0, len(bookings))
		for _, b := range bookings {
			if b.Status == filter {
				filtered = append(filtered, b)
			}
		}
		bookings = filtered
	}

	page, meta := paginate(c, bookings)
	meta["event_id"] = eventID

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Event bookings retrieved",
		Data:    page,
		Meta:    meta,
	})
}

func (h *BookingHandler) GetChildBookings(c *gin.Context) {
	childID, ok := pathID(c, "id")
	if !ok {
		return
	}

	bookings, err := h.bookingService.GetChildBookings(c.Request.Context(), childID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Child bookings retrieved", bookings)
}
