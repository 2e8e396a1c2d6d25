package container

import (
	"log/slog"

	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/config"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/models"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/services"
	"go.mongodb.org/mongo-driver/mongo"
)

// Container holds all application dependencies
type Container struct {
	Logger        *slog.Logger
	MongoDBClient *mongo.Client
	Catalog       models.CatalogRepo

	Gateway       *services.StripeService
	Availability  *services.AvailabilityService
	Ledger        *services.LedgerService
	Notifications *services.NotificationService
	Referrals     *services.ReferralService
	Refunds       *services.RefundService
	Settlement    *services.SettlementService
	Bookings      *services.BookingService
}

// NewContainer creates a new dependency injection container
func NewContainer(logger *slog.Logger, cfg *config.Config, mongoDBClient *mongo.Client) *Container {
	repo := models.MongodbNewRepo(mongoDBClient, cfg.MongoDBName)

	gateway := services.NewStripeService(
		cfg.StripeSecretKey,
		cfg.StripeWebhookSecret,
		cfg.StripeBaseURL,
		cfg.CheckoutSuccessURL,
		cfg.CheckoutCancelURL,
	)

	availability := services.NewAvailabilityService(repo, repo)
	ledger := services.NewLedgerService(repo, logger)
	notifications := services.NewNotificationService(repo, logger)
	referrals := services.NewReferralService(repo, ledger, logger)
	refunds := services.NewRefundService(repo, repo, gateway, ledger, notifications, logger)
	settlement := services.NewSettlementService(repo, repo, ledger, notifications, logger)
	bookings := services.NewBookingService(repo, repo, availability, gateway, refunds, notifications, referrals, logger)

	return &Container{
		Logger:        logger,
		MongoDBClient: mongoDBClient,
		Catalog:       repo,
		Gateway:       gateway,
		Availability:  availability,
		Ledger:        ledger,
		Notifications: notifications,
		Referrals:     referrals,
		Refunds:       refunds,
		Settlement:    settlement,
		Bookings:      bookings,
	}
}
