package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	dbm "payflow/internal/models/db_models"
	"payflow/internal/repositories"
	"payflow/pkg/utils"
)

// Compensation steps, as reported in StepFailure.Step.
const (
	StepRestoreStock   = "restore_stock"
	StepRevertVoucher  = "revert_voucher"
	StepPaymentStatus  = "payment_status"
	StepFulfillment    = "fulfillment_state"
	StepNotifyCustomer = "notify_customer"
)

type StepFailure struct {
	Step   string `json:"step"`
	Target string `json:"target,omitempty"`
	Error  string `json:"error"`
}

func (f StepFailure) String() string {
	if f.Target == "" {
		return fmt.Sprintf("%s: %s", f.Step, f.Error)
	}
	return fmt.Sprintf("%s(%s): %s", f.Step, f.Target, f.Error)
}

type CompensationResult struct {
	OrderID          uuid.UUID
	Success          bool
	AlreadyCancelled bool
	StepFailures     []StepFailure
}

// CompensationService undoes an unpaid order's reservations. The whole run is
// gated on claiming the order's cancellation, so a second call for the same
// order mutates nothing.
type CompensationService interface {
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*CompensationResult, error)
}

type compensationService struct {
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	vouchers repositories.VoucherRepository
	notifier Notifier
	observer TransitionObserver
	clock    utils.Clock
	logger   *zap.Logger
}

func NewCompensationService(
	orders repositories.OrderRepository,
	products repositories.ProductRepository,
	vouchers repositories.VoucherRepository,
	notifier Notifier,
	observer TransitionObserver,
	clock utils.Clock,
	logger *zap.Logger,
) CompensationService {
	return &compensationService{
		orders:   orders,
		products: products,
		vouchers: vouchers,
		notifier: notifier,
		observer: observer,
		clock:    clock,
		logger:   logger,
	}
}

func (s *compensationService) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*CompensationResult, error) {
	reason = reasonOr(reason, "payment not completed")
	log := s.logger.With(zap.String("order_id", orderID.String()))

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: load order: %v", utils.ErrDatabaseError, err)
	}
	if order == nil {
		return nil, utils.ErrOrderNotFound
	}

	now := s.clock()
	claimed, err := s.orders.ClaimCancellation(ctx, orderID, reason, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: claim cancellation: %v", utils.ErrDatabaseError, err)
	}
	if !claimed {
		current, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("%w: reload order: %v", utils.ErrDatabaseError, err)
		}
		if current != nil && current.PaymentStatus == dbm.PaymentStatusPaid && current.Status != dbm.OrderStatusCancelled {
			return nil, utils.ErrOrderAlreadyPaid
		}
		log.Info("order already cancelled; compensation skipped")
		return &CompensationResult{OrderID: orderID, Success: true, AlreadyCancelled: true}, nil
	}

	result := &CompensationResult{OrderID: orderID}
	fail := func(step, target string, err error) {
		log.Error("compensation step failed", zap.String("step", step), zap.String("target", target), zap.Error(err))
		result.StepFailures = append(result.StepFailures, StepFailure{Step: step, Target: target, Error: err.Error()})
	}

	for _, item := range order.Items {
		if err := s.products.IncreaseStock(ctx, item.ProductID, item.Quantity); err != nil {
			fail(StepRestoreStock, item.ProductID.String(), err)
		}
	}

	if order.VoucherID != nil {
		deleted, err := s.vouchers.DeleteUsage(ctx, *order.VoucherID, orderID)
		switch {
		case err != nil:
			fail(StepRevertVoucher, order.VoucherID.String(), err)
		case deleted:
			if err := s.vouchers.DecrementUsage(ctx, *order.VoucherID); err != nil {
				fail(StepRevertVoucher, order.VoucherID.String(), err)
			}
		default:
			log.Warn("no voucher usage recorded for order", zap.String("voucher_id", order.VoucherID.String()))
		}
	}

	if err := s.orders.UpdatePaymentStatus(ctx, orderID, dbm.PaymentStatusCancelled); err != nil {
		fail(StepPaymentStatus, "", err)
	}
	if err := s.orders.UpsertState(ctx, orderID, dbm.OrderStatusCancelled, reason); err != nil {
		fail(StepFulfillment, "", err)
	}
	result.Success = len(result.StepFailures) == 0

	err = s.notifier.Notify(ctx, Notification{
		Kind:          NotificationOrderCancelled,
		CustomerID:    order.CustomerID,
		Email:         order.CustomerEmail,
		OrderID:       orderID,
		OrderNumber:   order.OrderNumber,
		TransactionID: deref(order.PaymentTransactionID),
		Reason:        reason,
		At:            now,
	})
	if err != nil {
		fail(StepNotifyCustomer, "", err)
	}

	detail := map[string]interface{}{"reason": reason, "success": result.Success}
	if len(result.StepFailures) > 0 {
		detail["step_failures"] = result.StepFailures
	}
	s.observer.Observe(ctx, TransitionEvent{
		Kind:          EventCompensated,
		TransactionID: deref(order.PaymentTransactionID),
		OrderID:       orderID,
		Source:        "compensation",
		Detail:        detail,
		At:            now,
	})
	return result, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
