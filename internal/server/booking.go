package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	bookingdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking/domain"
)

type createBookingRequest struct {
	ServiceID          string `json:"service_id"`
	CustomerID         string `json:"customer_id"`
	RequestedStart     string `json:"requested_start"`
	DurationMinutes    int64  `json:"duration_minutes"`
	BookingType        string `json:"booking_type"`
	RecurringFrequency string `json:"recurring_frequency"`
	CustomerNotes      string `json:"customer_notes"`
	Amount             *int64 `json:"amount"`
}

func (s *Server) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.RequestedStart))
	if err != nil {
		AbortWithError(c, newValidationError("requested_start", "invalid_requested_start", "invalid requested_start"))
		return
	}

	resp, err := s.bookingSvc.CreateRequest(c.Request.Context(), bookingdomain.CreateBookingRequest{
		ServiceID:          strings.TrimSpace(req.ServiceID),
		CustomerID:         strings.TrimSpace(req.CustomerID),
		RequestedStart:     start,
		DurationMinutes:    req.DurationMinutes,
		BookingType:        strings.TrimSpace(req.BookingType),
		RecurringFrequency: strings.TrimSpace(req.RecurringFrequency),
		CustomerNotes:      req.CustomerNotes,
		Amount:             req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBookingStatus(c *gin.Context) {
	resp, err := s.bookingSvc.GetStatus(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApproveBooking(c *gin.Context) {
	s.transitionBooking(c, s.bookingSvc.Approve)
}

func (s *Server) RejectBooking(c *gin.Context) {
	s.transitionBooking(c, s.bookingSvc.Reject)
}

func (s *Server) StartBooking(c *gin.Context) {
	s.transitionBooking(c, s.bookingSvc.Start)
}

func (s *Server) CancelBooking(c *gin.Context) {
	s.transitionBooking(c, s.bookingSvc.Cancel)
}

func (s *Server) transitionBooking(c *gin.Context, fn func(ctx context.Context, bookingID string) (bookingdomain.Booking, error)) {
	resp, err := fn(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
