package audit

import (
	"time"

	"github.com/mcloones/rewards/internal/models"
	"github.com/sirupsen/logrus"
)

type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id,omitempty"`
	EmployeeID    string    `json:"employee_id"`
	ActorID       string    `json:"actor_id"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// AuditLogger writes one structured line per ledger event
type AuditLogger struct {
	entry *logrus.Entry
}

func NewAuditLogger(logger *logrus.Logger) *AuditLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuditLogger{entry: logger.WithField("component", "AUDIT")}
}

func (a *AuditLogger) LogAward(tx models.Transaction, newBalance int64) {
	a.log(AuditEvent{
		Timestamp:     tx.CreatedAt,
		EventType:     eventType(tx.Amount),
		TransactionID: tx.ID,
		EmployeeID:    tx.EmployeeID,
		ActorID:       tx.AwardedByID,
		Amount:        tx.Amount,
		Status:        "SUCCESS",
		Details: map[string]any{
			"reason":     tx.Reason,
			"balance":    newBalance,
			"awarded_by": tx.AwardedByName,
		},
	})
}

func (a *AuditLogger) LogRejected(actor models.Actor, employeeID string, amount int64, err error) {
	a.log(AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType(amount),
		EmployeeID: employeeID,
		ActorID:    actor.ID,
		Amount:     amount,
		Status:     "FAILED",
		Details:    map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	fields := logrus.Fields{
		"event_type":  event.EventType,
		"employee_id": event.EmployeeID,
		"actor_id":    event.ActorID,
		"amount":      event.Amount,
		"status":      event.Status,
		"details":     event.Details,
	}
	if event.TransactionID != "" {
		fields["transaction_id"] = event.TransactionID
	}
	a.entry.WithTime(event.Timestamp).WithFields(fields).Info("AUDIT")
}

func eventType(amount int64) string {
	if amount < 0 {
		return "DEDUCTION"
	}
	return "AWARD"
}
