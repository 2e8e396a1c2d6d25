package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/models"
)

// ReferralAccruer is invoked after a booking completes, once per party.
// Purely additive; it must never block or fail completion.
type ReferralAccruer interface {
	AccrueOnCompletion(ctx context.Context, userID uuid.UUID)
}

type ReferralService struct {
	referrals models.ReferralRepo
	ledger    *LedgerService
	logger    *slog.Logger
}

func NewReferralService(referrals models.ReferralRepo, ledger *LedgerService, logger *slog.Logger) *ReferralService {
	return &ReferralService{
		referrals: referrals,
		ledger:    ledger,
		logger:    logger,
	}
}

// AccrueOnCompletion rewards the referrer the first time a referred user
// completes a booking. The referral row is claimed atomically, so a second
// concurrent completion finds nothing to reward.
func (rs *ReferralService) AccrueOnCompletion(ctx context.Context, userID uuid.UUID) {
	ref, err := rs.referrals.TakePendingByReferee(ctx, userID)
	if err != nil {
		rs.logger.Error("referral lookup failed", "user_id", userID, "error", err)
		return
	}
	if ref == nil {
		return
	}
	if _, err := rs.ledger.RecordCreditEarned(ctx, ref); err != nil {
		rs.logger.Error("failed to record referral credit",
			"referral_id", ref.ID,
			"referrer_id", ref.ReferrerID,
			"error", err,
		)
	}
}
