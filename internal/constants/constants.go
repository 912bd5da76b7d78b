package constants

// Context keys
const (
	ContextKeyUserID = "user_id"
)

// Session
const (
	SessionCookieName = "board_session"
)

// Validation limits
const (
	MinPasswordLength    = 8
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxCommentLength     = 2000
)

// Pagination
const (
	MinPageSize     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)
