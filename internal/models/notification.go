package models

import "time"

type NotificationType string

const (
	NotificationTaskAssigned      NotificationType = "TaskAssigned"
	NotificationStatusChanged     NotificationType = "StatusChanged"
	NotificationCommentAdded      NotificationType = "CommentAdded"
	NotificationProjectInvitation NotificationType = "ProjectInvitation"
)

// Notification is an alert addressed to a single recipient. Only the
// recipient may flip the read flag.
type Notification struct {
	ID          uint64           `gorm:"primarykey" json:"id"`
	RecipientID uint64           `gorm:"not null;index" json:"recipient_id"`
	Type        NotificationType `gorm:"type:varchar(30);not null" json:"type"`
	Message     string           `gorm:"type:text;not null" json:"message"`
	TaskID      *uint64          `json:"task_id"`
	IsRead      bool             `gorm:"not null;default:false" json:"is_read"`
	CreatedAt   time.Time        `gorm:"index" json:"created_at"`

	// Relations
	Recipient User  `gorm:"foreignKey:RecipientID" json:"-"`
	Task      *Task `gorm:"foreignKey:TaskID" json:"-"`
}
