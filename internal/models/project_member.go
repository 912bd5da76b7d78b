package models

import "time"

type ProjectRole string

const (
	RoleOwner   ProjectRole = "owner"
	RoleManager ProjectRole = "manager"
	RoleMember  ProjectRole = "member"
)

// ProjectMember links a user to a project with a role. One row per
// (project, user) pair.
type ProjectMember struct {
	ProjectID uint64      `gorm:"primarykey" json:"project_id"`
	UserID    uint64      `gorm:"primarykey" json:"user_id"`
	Role      ProjectRole `gorm:"type:varchar(20);not null" json:"role"`
	JoinedAt  time.Time   `json:"joined_at"`

	// Relations
	Project Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
