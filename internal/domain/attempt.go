package domain

import "time"

// DeliveryAttempt records a single delivery attempt for a notification,
// including attempts that failed before any network call was made.
type DeliveryAttempt struct {
	ID             string
	NotificationID string
	AttemptNumber  int
	StatusCode     *int
	ResponseBody   *string
	Error          *string
	ErrorKind      *string
	CreatedAt      time.Time
}
