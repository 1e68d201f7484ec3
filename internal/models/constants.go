package models

const (
	StatusPending         = "PENDING"
	StatusApproved        = "APPROVED"
	StatusRejected        = "REJECTED"
	StatusCancelRequested = "CANCEL_REQUESTED"
	StatusCancelled       = "CANCELLED"
)

const (
	CreatedByAdmin = "ADMIN"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

const (
	// DefaultMaxBookingDays limits the inclusive length of a day-wise booking
	DefaultMaxBookingDays = 7

	// DefaultCalendarCacheTTL время жизни закэшированного календаря в секундах
	DefaultCalendarCacheTTL = 5 * 60

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// RemarksSeparator joins remarks appended by a cancel request
	RemarksSeparator = " | "
)

// ValidStatus reports whether s is a known booking status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelRequested, StatusCancelled:
		return true
	default:
		return false
	}
}
