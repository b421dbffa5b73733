package models

import "time"

const (
	TaskStatusPending   = "pending"
	TaskStatusRetry     = "retry"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

const (
	TaskNotifyCaptured = "notify_captured"
	TaskNotifyFailed   = "notify_failed"
	TaskNotifyRefunded = "notify_refunded"
	TaskNotifyDegraded = "notify_degraded"
)

// NotificationTask is a queued outbound notification about a reservation.
type NotificationTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	Kind        string     `json:"kind"`
	PaymentID   string     `json:"payment_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

// PaymentEvent is the payload published on the event bus and the broker.
type PaymentEvent struct {
	Type       string            `json:"type"`
	Kind       ProductKind       `json:"kind"`
	PaymentID  string            `json:"payment_id"`
	ProgressID string            `json:"progress_id,omitempty"`
	Status     ReservationStatus `json:"status,omitempty"`
	Amount     string            `json:"amount,omitempty"`
	Currency   string            `json:"currency,omitempty"`
	UserID     *int64            `json:"user_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
