package models

import "time"

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxEvent records the intent to broadcast or notify, written in the
// same transaction as the task mutation that produced it. A background
// drainer publishes pending rows and marks them sent or failed.
type OutboxEvent struct {
	ID          uint64       `gorm:"primarykey" json:"id"`
	EventType   string       `gorm:"type:varchar(40);not null" json:"event_type"`
	ProjectID   uint64       `gorm:"not null;index" json:"project_id"`
	RecipientID *uint64      `json:"recipient_id"`
	Payload     string       `gorm:"type:text" json:"payload"`
	Status      OutboxStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	RetryCount  int          `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
