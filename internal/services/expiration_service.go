package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"payflow/internal/gateway"
	dbm "payflow/internal/models/db_models"
	"payflow/internal/repositories"
	"payflow/pkg/utils"
)

const timeoutReason = "payment timeout"

type ExpirationOutcome string

const (
	OutcomeCancelled        ExpirationOutcome = "cancelled"
	OutcomeAlreadyCancelled ExpirationOutcome = "already_cancelled"
	OutcomeAlreadyTerminal  ExpirationOutcome = "already_terminal" // completed by a racing webhook
	OutcomeError            ExpirationOutcome = "error"
)

type ExpirationItem struct {
	TransactionID string            `json:"transactionId"`
	OrderID       string            `json:"orderId"`
	Outcome       ExpirationOutcome `json:"outcome"`
	Error         string            `json:"error,omitempty"`

	// Recovered marks an already closed transaction whose order compensation
	// had not completed and was re-run by this sweep.
	Recovered bool `json:"recovered,omitempty"`
}

type ExpirationReport struct {
	Cutoff           time.Time        `json:"cutoff"`
	Scanned          int              `json:"scanned"`
	Cancelled        int              `json:"cancelled"`
	AlreadyCancelled int              `json:"alreadyCancelled"`
	AlreadyTerminal  int              `json:"alreadyTerminal"`
	Errors           int              `json:"errors"`
	Recovered        int              `json:"recovered"`
	Items            []ExpirationItem `json:"items"`
}

func (r *ExpirationReport) add(item ExpirationItem) {
	r.Items = append(r.Items, item)
	r.Scanned++
	if item.Recovered && item.Outcome == OutcomeCancelled {
		r.Recovered++
	}
	switch item.Outcome {
	case OutcomeCancelled:
		r.Cancelled++
	case OutcomeAlreadyCancelled:
		r.AlreadyCancelled++
	case OutcomeAlreadyTerminal:
		r.AlreadyTerminal++
	case OutcomeError:
		r.Errors++
	}
}

type ExpirationConfig struct {
	PendingTimeout time.Duration
	BatchSize      int
	Workers        int
}

// ExpirationService fails PENDING transactions older than the pending timeout
// and compensates their orders.
type ExpirationService interface {
	RunOnce(ctx context.Context) (*ExpirationReport, error)
}

type expirationService struct {
	cfg          ExpirationConfig
	txns         repositories.TransactionRepository
	stateMachine TransactionStateMachine
	compensation CompensationService
	gateway      gateway.Client
	clock        utils.Clock
	logger       *zap.Logger
}

func NewExpirationService(
	cfg ExpirationConfig,
	txns repositories.TransactionRepository,
	stateMachine TransactionStateMachine,
	compensation CompensationService,
	gw gateway.Client,
	clock utils.Clock,
	logger *zap.Logger,
) ExpirationService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &expirationService{
		cfg:          cfg,
		txns:         txns,
		stateMachine: stateMachine,
		compensation: compensation,
		gateway:      gw,
		clock:        clock,
		logger:       logger,
	}
}

// RunOnce expires stale PENDING transactions, then re-runs compensation for
// closed transactions whose order was left open by an earlier failure. Each
// transaction is handled at most once per run.
func (s *expirationService) RunOnce(ctx context.Context) (*ExpirationReport, error) {
	cutoff := s.clock().Add(-s.cfg.PendingTimeout)
	report := &ExpirationReport{Cutoff: cutoff, Items: []ExpirationItem{}}
	seen := make(map[uuid.UUID]struct{})

	err := s.sweep(ctx, report, seen, func(after *repositories.SweepCursor) ([]dbm.Transaction, error) {
		return s.txns.FindStalePending(ctx, cutoff.Unix(), after, s.cfg.BatchSize)
	}, s.expire)
	if err == nil {
		err = s.sweep(ctx, report, seen, func(after *repositories.SweepCursor) ([]dbm.Transaction, error) {
			return s.txns.FindUncompensated(ctx, after, s.cfg.BatchSize)
		}, s.recompensate)
	}

	s.logger.Info("expiration sweep finished",
		zap.Time("cutoff", cutoff),
		zap.Int("scanned", report.Scanned),
		zap.Int("cancelled", report.Cancelled),
		zap.Int("already_cancelled", report.AlreadyCancelled),
		zap.Int("already_terminal", report.AlreadyTerminal),
		zap.Int("recovered", report.Recovered),
		zap.Int("errors", report.Errors))
	return report, err
}

// sweep pages through next by keyset cursor and handles every unseen row.
func (s *expirationService) sweep(
	ctx context.Context,
	report *ExpirationReport,
	seen map[uuid.UUID]struct{},
	next func(after *repositories.SweepCursor) ([]dbm.Transaction, error),
	handle func(ctx context.Context, txn *dbm.Transaction) ExpirationItem,
) error {
	var after *repositories.SweepCursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := next(after)
		if err != nil {
			return fmt.Errorf("%w: find sweep candidates: %v", utils.ErrDatabaseError, err)
		}
		if len(batch) == 0 {
			return nil
		}
		last := batch[len(batch)-1]
		after = &repositories.SweepCursor{CreatedAt: last.CreatedAt, ID: last.ID}

		items := make([]*ExpirationItem, len(batch))
		var g errgroup.Group
		g.SetLimit(s.cfg.Workers)
		for i := range batch {
			txn := &batch[i]
			if _, ok := seen[txn.ID]; ok {
				continue
			}
			seen[txn.ID] = struct{}{}
			g.Go(func() error {
				item := handle(ctx, txn)
				items[i] = &item
				return nil
			})
		}
		_ = g.Wait()

		for _, item := range items {
			if item != nil {
				report.add(*item)
			}
		}
		if len(batch) < s.cfg.BatchSize {
			return nil
		}
	}
}

func (s *expirationService) expire(ctx context.Context, txn *dbm.Transaction) ExpirationItem {
	item := ExpirationItem{TransactionID: txn.TransactionID, OrderID: txn.OrderID.String()}
	log := s.logger.With(zap.String("transaction_id", txn.TransactionID), zap.String("order_id", item.OrderID))

	res, err := s.stateMachine.Fail(ctx, txn, TransitionInput{Source: SourceScheduler, Reason: timeoutReason})
	if err != nil {
		log.Error("expire transaction failed", zap.Error(err))
		item.Outcome, item.Error = OutcomeError, err.Error()
		return item
	}
	if !closedUnpaid(res.Transaction.Status) {
		item.Outcome = OutcomeAlreadyTerminal
		return item
	}

	s.compensate(ctx, log, txn, timeoutReason, &item)

	if res.Applied && txn.GatewayOrderCode != nil {
		if _, err := s.gateway.CancelPaymentLink(ctx, *txn.GatewayOrderCode, timeoutReason); err != nil {
			log.Warn("cancel payment link after timeout failed", zap.Error(err))
		}
	}
	return item
}

func (s *expirationService) recompensate(ctx context.Context, txn *dbm.Transaction) ExpirationItem {
	item := ExpirationItem{TransactionID: txn.TransactionID, OrderID: txn.OrderID.String(), Recovered: true}
	log := s.logger.With(
		zap.String("transaction_id", txn.TransactionID),
		zap.String("order_id", item.OrderID),
		zap.String("status", string(txn.Status)))

	log.Warn("re-running compensation for closed transaction with open order")
	s.compensate(ctx, log, txn, reasonOr(txn.ErrorMessage, timeoutReason), &item)
	return item
}

func (s *expirationService) compensate(ctx context.Context, log *zap.Logger, txn *dbm.Transaction, reason string, item *ExpirationItem) {
	comp, err := s.compensation.CancelOrder(ctx, txn.OrderID, reason)
	switch {
	case errors.Is(err, utils.ErrOrderAlreadyPaid):
		item.Outcome = OutcomeAlreadyTerminal
	case err != nil:
		log.Error("compensate order failed", zap.Error(err))
		item.Outcome, item.Error = OutcomeError, err.Error()
	case comp.AlreadyCancelled:
		item.Outcome = OutcomeAlreadyCancelled
	default:
		item.Outcome = OutcomeCancelled
	}
}
