package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/helpers"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/models"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/services"
)

func currentUser(c *gin.Context) (*helpers.AuthClaims, bool) {
	raw, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, helpers.ErrorResponse("unauthorized"))
		return nil, false
	}
	claims, ok := raw.(*helpers.AuthClaims)
	if !ok {
		c.JSON(http.StatusInternalServerError, helpers.ErrorResponse("invalid user claims"))
		return nil, false
	}
	return claims, true
}

// statusForError maps domain sentinels to HTTP statuses. Each failure reason
// is distinct so the client knows what corrective action applies.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrOutOfHours),
		errors.Is(err, models.ErrPastOrTooSoon),
		errors.Is(err, models.ErrInvalidCompletionCode),
		errors.Is(err, models.ErrCompletionCodeMissing),
		errors.Is(err, models.ErrRefundWindowClosed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrSlotConflict),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrAlreadyRated),
		errors.Is(err, models.ErrAlreadyRefunded),
		errors.Is(err, models.ErrNotPaid):
		return http.StatusConflict
	case errors.Is(err, models.ErrBookingNotFound),
		errors.Is(err, models.ErrHoldNotFound),
		errors.Is(err, models.ErrServiceNotFound),
		errors.Is(err, models.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotBookingParty):
		return http.StatusForbidden
	case errors.Is(err, models.ErrPayoutMissing):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), helpers.ErrorResponse(err.Error()))
}

// CreateBooking validates the slot, places the 10-minute hold and hands back
// the checkout URL plus the pre-allocated booking id.
func CreateBooking(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		var req services.BookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse(err.Error()))
			return
		}

		promise, err := bs.RequestBooking(c.Request.Context(), claims.UserID, &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, helpers.SuccessResponse(promise, "Complete payment to confirm the booking"))
	}
}

func GetBooking(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		booking, err := bs.GetBookingForParty(c.Request.Context(), claims.UserID, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(booking, ""))
	}
}

func ListBookings(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("invalid limit parameter"))
			return
		}
		offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("invalid offset parameter"))
			return
		}

		var (
			bookings []*models.Booking
			total    int64
		)
		if claims.IsProvider() {
			bookings, total, err = bs.ListForProvider(c.Request.Context(), claims.UserID, offset, limit)
		} else {
			bookings, total, err = bs.ListForOwner(c.Request.Context(), claims.UserID, offset, limit)
		}
		if err != nil {
			respondError(c, err)
			return
		}
		page := (offset / limit) + 1
		c.JSON(http.StatusOK, helpers.PaginatedResponse(bookings, page, limit, int(total)))
	}
}

func AcceptBooking(bs *services.BookingService) gin.HandlerFunc {
	return providerAction(func(c *gin.Context, claims *helpers.AuthClaims) (interface{}, error) {
		return bs.Accept(c.Request.Context(), claims.UserID, c.Param("id"))
	})
}

func RejectBooking(bs *services.BookingService) gin.HandlerFunc {
	return providerAction(func(c *gin.Context, claims *helpers.AuthClaims) (interface{}, error) {
		return bs.Reject(c.Request.Context(), claims.UserID, c.Param("id"))
	})
}

func providerAction(fn func(*gin.Context, *helpers.AuthClaims) (interface{}, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		if !claims.IsProvider() && !claims.IsAdmin() {
			c.JSON(http.StatusForbidden, helpers.ErrorResponse("only providers can perform this action"))
			return
		}
		result, err := fn(c, claims)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(result, ""))
	}
}

func CancelBooking(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		booking, err := bs.Cancel(c.Request.Context(), claims.UserID, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(booking, "Booking cancelled"))
	}
}

func IssueCompletionCode(bs *services.BookingService) gin.HandlerFunc {
	return providerAction(func(c *gin.Context, claims *helpers.AuthClaims) (interface{}, error) {
		return bs.IssueCompletionCode(c.Request.Context(), claims.UserID, c.Param("id"))
	})
}

func CompleteBooking(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		var body struct {
			Code string `json:"code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("completion code is required"))
			return
		}
		booking, err := bs.Complete(c.Request.Context(), claims.UserID, c.Param("id"), body.Code)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(booking, "Booking completed"))
	}
}

func RateBooking(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		var body struct {
			Rating int    `json:"rating" binding:"required,min=1,max=5"`
			Review string `json:"review"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("rating must be between 1 and 5"))
			return
		}
		booking, err := bs.Rate(c.Request.Context(), claims.UserID, c.Param("id"), body.Rating, body.Review)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(booking, "Thanks for the review"))
	}
}

// ListFreeSlots is the advisory availability preview. Booking re-validates.
func ListFreeSlots(as *services.AvailabilityService, cs models.CatalogRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		providerID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("invalid provider ID format"))
			return
		}
		serviceID, err := uuid.Parse(c.Query("service_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("invalid service ID format"))
			return
		}
		day, err := time.Parse("2006-01-02", c.Query("date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("date must be YYYY-MM-DD"))
			return
		}
		hours, err := strconv.Atoi(c.DefaultQuery("duration_hours", "1"))
		if err != nil || hours <= 0 {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("invalid duration_hours"))
			return
		}

		svc, err := cs.GetService(c.Request.Context(), serviceID)
		if err != nil {
			respondError(c, err)
			return
		}
		slots, err := as.FreeSlots(c.Request.Context(), providerID, day, hours, svc.BufferMinutes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(slots, ""))
	}
}

func ListNotifications(ns *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit <= 0 || offset < 0 {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("invalid offset or limit"))
			return
		}
		items, err := ns.ListForUser(c.Request.Context(), claims.UserID, offset, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(items, ""))
	}
}
