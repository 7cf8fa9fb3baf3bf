package orders

import (
	"context"
	"errors"
	"fmt"

	"booksaga/internal/orders/saga"

	"go.uber.org/zap"
)

// RestoreRedeemPoints gives back points consumed by RedeemPoints. A total
// without redeemed points is a no-op.
func (s *Service) RestoreRedeemPoints(ctx context.Context, userID string, orderTotal saga.OrderTotal) error {
	points := orderTotal.RedeemedPoints()
	if points <= 0 {
		return nil
	}
	return s.run(ctx, StepRestoreRedeemPoints, func(ctx context.Context) error {
		if _, err := s.store.SetPoints(ctx, userID, points); err != nil {
			return saga.NewStepError(saga.KindStoreError, StepRestoreRedeemPoints, "set points", err)
		}
		return nil
	}, zap.String("user_id", userID), zap.Int64("points", points))
}

// RestoreQuantity returns quantity units to a book with an additive update,
// so it commutes with concurrent decrements.
func (s *Service) RestoreQuantity(ctx context.Context, bookID string, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%s: %w", StepRestoreQuantity, saga.ErrInvalidQuantity)
	}
	return s.run(ctx, StepRestoreQuantity, func(ctx context.Context) error {
		if _, err := s.store.AddQuantity(ctx, bookID, quantity); err != nil {
			return saga.NewStepError(saga.KindStoreError, StepRestoreQuantity, "add quantity", err)
		}
		return nil
	}, zap.String("book_id", bookID), zap.Int64("quantity", quantity))
}

// RefundBilling reverses the charge made for a saga. A saga that was never
// charged, or was already refunded, has nothing to compensate.
func (s *Service) RefundBilling(ctx context.Context, sagaID string) error {
	if sagaID == "" {
		sagaID = saga.SagaIDFromContext(ctx)
	}
	return s.run(ctx, StepRefundBilling, func(ctx context.Context) error {
		err := s.billing.Refund(ctx, sagaID)
		if err == nil || errors.Is(err, saga.ErrNotCharged) || errors.Is(err, saga.ErrAlreadyRefunded) {
			return nil
		}
		return saga.NewStepError(saga.KindStoreError, StepRefundBilling, "refund", err)
	}, zap.String("refund_saga_id", sagaID))
}
