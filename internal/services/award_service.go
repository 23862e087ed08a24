package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mcloones/rewards/internal/audit"
	"github.com/mcloones/rewards/internal/events"
	"github.com/mcloones/rewards/internal/logging"
	"github.com/mcloones/rewards/internal/metrics"
	"github.com/mcloones/rewards/internal/models"
	"github.com/mcloones/rewards/internal/store"
	"github.com/sirupsen/logrus"
)

// AwardService is the only writer of the ledger
type AwardService struct {
	ledger store.Ledger
	events events.Publisher
	audit  *audit.AuditLogger
	log    *logrus.Entry
}

func NewAwardService(ledger store.Ledger, publisher events.Publisher, auditLogger *audit.AuditLogger) *AwardService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger(nil)
	}
	return &AwardService{
		ledger: ledger,
		events: publisher,
		audit:  auditLogger,
		log:    logging.For("AWARD"),
	}
}

// Award records amount points for employeeID on behalf of actor. A negative amount is a
// deduction. The transaction row and the balance change commit together or not at all.
//
// Award is not idempotent: retrying after a timeout can apply the amount twice.
func (s *AwardService) Award(ctx context.Context, actor models.Actor, employeeID string, amount int64, reason string) (models.Transaction, error) {
	start := time.Now()

	tx, balance, err := s.award(ctx, actor, employeeID, amount, reason)
	if err != nil {
		metrics.RecordAward(ErrorKind(err), amount, time.Since(start))
		s.audit.LogRejected(actor, employeeID, amount, err)

		entry := s.log.WithFields(logrus.Fields{
			"employee_id": employeeID,
			"actor_id":    actor.ID,
			"amount":      amount,
		}).WithError(err)
		if errors.Is(err, ErrStorage) {
			entry.Error("Award failed, nothing committed")
		} else {
			entry.Info("Award rejected")
		}
		return models.Transaction{}, err
	}

	metrics.RecordAward("committed", amount, time.Since(start))
	s.audit.LogAward(tx, balance)

	s.publish(ctx, tx, balance)
	return tx, nil
}

// publishTimeout bounds the post-commit notification
const publishTimeout = 5 * time.Second

// publish outlives the request: the award is committed even if the caller has gone away.
func (s *AwardService) publish(ctx context.Context, tx models.Transaction, balance int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.events.PublishAward(ctx, tx, balance); err != nil {
		s.log.WithError(err).WithField("transaction_id", tx.ID).Warn("Failed to queue award event")
	}
}

func (s *AwardService) award(ctx context.Context, actor models.Actor, employeeID string, amount int64, reason string) (models.Transaction, int64, error) {
	if amount == 0 {
		return models.Transaction{}, 0, ErrInvalidAmount
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.Transaction{}, 0, ErrInvalidReason
	}

	if !PermitsAward(actor, employeeID) {
		return models.Transaction{}, 0, ErrUnauthorized
	}

	if employeeID == "" {
		return models.Transaction{}, 0, ErrEmployeeNotFound
	}

	var (
		committed models.Transaction
		balance   int64
	)
	err := s.ledger.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		emp, err := tx.LockEmployee(ctx, employeeID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrEmployeeNotFound
		}
		if err != nil {
			return &StorageError{Op: "lock employee", Err: err}
		}
		if !emp.IsActive {
			return ErrEmployeeInactive
		}

		committed, err = tx.Append(ctx, models.TransactionDraft{
			EmployeeID:    employeeID,
			Amount:        amount,
			Reason:        reason,
			AwardedByID:   actor.ID,
			AwardedByName: actor.Name,
		})
		if err != nil {
			return &StorageError{Op: "append transaction", Err: err}
		}

		balance, err = tx.ApplyDelta(ctx, employeeID, amount)
		if err != nil {
			return &StorageError{Op: "apply balance delta", Err: err}
		}
		return nil
	})
	if err != nil {
		if ErrorKind(err) == "internal_error" {
			err = &StorageError{Op: "commit", Err: err}
		}
		return models.Transaction{}, 0, err
	}

	return committed, balance, nil
}
