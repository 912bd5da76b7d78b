package models

import "time"

type ChangeType string

const (
	ChangeStatus      ChangeType = "StatusChanged"
	ChangeAssignee    ChangeType = "AssigneeChanged"
	ChangeTitle       ChangeType = "TitleChanged"
	ChangeDescription ChangeType = "DescriptionChanged"
	ChangePriority    ChangeType = "PriorityChanged"
	ChangeDueDate     ChangeType = "DueDateChanged"
)

// HistoryEntry is an append-only audit record of one attribute change on a
// task. Rows are written in the same transaction as the task mutation and
// are never updated or deleted afterwards.
type HistoryEntry struct {
	ID          uint64     `gorm:"primarykey" json:"id"`
	TaskID      uint64     `gorm:"not null;index" json:"task_id"`
	ChangedByID uint64     `gorm:"not null" json:"changed_by_id"`
	ChangeType  ChangeType `gorm:"type:varchar(30);not null" json:"change_type"`
	OldValue    string     `gorm:"type:text" json:"old_value"`
	NewValue    string     `gorm:"type:text" json:"new_value"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`

	// Relations
	Task      Task `gorm:"foreignKey:TaskID" json:"-"`
	ChangedBy User `gorm:"foreignKey:ChangedByID" json:"changed_by,omitempty"`
}
