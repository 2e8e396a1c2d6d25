package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/helpers"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/models"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/services"
)

var timeNow = time.Now

// PaymentSuccessRedirect is the synchronous settlement entry point: the
// gateway redirects the payer here with the session id. It and the webhook
// are two thin adapters over the same idempotent reconciler, so whichever
// lands first wins and the other becomes a no-op.
func PaymentSuccessRedirect(ss *services.SettlementService, gateway services.PaymentGateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("session_id is required"))
			return
		}

		session, err := gateway.GetCheckoutSession(c.Request.Context(), sessionID)
		if err != nil {
			c.JSON(http.StatusBadGateway, helpers.ErrorResponse("failed to verify payment session"))
			return
		}

		booking, err := ss.SettleFromSession(c.Request.Context(), session)
		if errors.Is(err, models.ErrPaymentIncomplete) {
			c.JSON(http.StatusPaymentRequired, helpers.ErrorResponse("payment has not completed"))
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(booking, "Payment confirmed, booking created"))
	}
}

// PaymentWebhook is the asynchronous settlement entry point. The gateway
// retries deliveries, so a settlement failure that might succeed later is
// answered with 500 to request a retry, while a hold that is definitively
// gone is acknowledged with 200 and logged for manual reconciliation, since
// re-delivering it forever would not bring the hold back.
func PaymentWebhook(ss *services.SettlementService, gateway *services.StripeService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
		if err != nil {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("failed to read webhook payload"))
			return
		}

		event, err := gateway.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"), timeNow())
		if err != nil {
			logger.Warn("rejected webhook", "error", err)
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("invalid webhook signature"))
			return
		}

		if event.Type != "checkout.session.completed" {
			c.Status(http.StatusOK)
			return
		}
		session := event.Session()
		if session.Metadata.Type != services.MetadataTypeBookingPayment {
			c.Status(http.StatusOK)
			return
		}

		booking, err := ss.SettleFromSession(c.Request.Context(), session)
		if errors.Is(err, models.ErrHoldNotFound) {
			logger.Error("payment arrived for an expired or unknown hold; needs manual reconciliation",
				"booking_id", session.Metadata.BookingID,
				"session_id", session.ID,
				"payment_intent", session.PaymentIntentID,
			)
			c.Status(http.StatusOK)
			return
		}
		if err != nil {
			logger.Error("settlement failed, webhook will be retried",
				"booking_id", session.Metadata.BookingID, "error", err)
			c.JSON(http.StatusInternalServerError, helpers.ErrorResponse("settlement failed"))
			return
		}

		logger.Info("settled booking from webhook", "booking_id", booking.ID, "status", booking.Status)
		c.Status(http.StatusOK)
	}
}

// RefundBooking is the owner's time-windowed self-service refund.
func RefundBooking(rs *services.RefundService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		booking, err := rs.SelfRefund(c.Request.Context(), claims.UserID, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(booking, "Refund issued"))
	}
}

func RefundEligibility(rs *services.RefundService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		eligibility, err := rs.CheckEligibility(c.Request.Context(), claims.UserID, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(eligibility, ""))
	}
}
