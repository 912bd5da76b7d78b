package outbox

import "github.com/teamboard/teamboard-api/internal/models"

// NotificationPayload is the serialized intent stored on a
// recipient-addressed outbox row. The drainer turns it into a Notification
// record and a personal push.
type NotificationPayload struct {
	Type    models.NotificationType `json:"type"`
	Message string                  `json:"message"`
	TaskID  *uint64                 `json:"task_id,omitempty"`
}
