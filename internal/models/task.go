package models

import (
	"time"

	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusInReview   TaskStatus = "IN_REVIEW"
	TaskStatusDone       TaskStatus = "DONE"
)

// ValidTaskStatus reports whether s is one of the known board stages.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusInReview, TaskStatusDone:
		return true
	}
	return false
}

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
)

// ValidTaskPriority reports whether p is a known priority.
func ValidTaskPriority(p TaskPriority) bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID          uint64         `gorm:"primarykey" json:"id"`
	Title       string         `gorm:"type:varchar(200);not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Status      TaskStatus     `gorm:"type:varchar(20);not null;default:'TODO';index" json:"status"`
	Priority    TaskPriority   `gorm:"type:varchar(20);not null;default:'MEDIUM'" json:"priority"`
	AssigneeID  *uint64        `gorm:"index" json:"assignee_id"`
	CreatorID   uint64         `gorm:"not null;index" json:"creator_id"`
	ProjectID   uint64         `gorm:"not null;index" json:"project_id"`
	DueDate     *time.Time     `gorm:"index" json:"due_date"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Creator  User           `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Assignee *User          `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	Project  Project        `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	History  []HistoryEntry `gorm:"foreignKey:TaskID" json:"history,omitempty"`
	Comments []Comment      `gorm:"foreignKey:TaskID" json:"comments,omitempty"`
}
