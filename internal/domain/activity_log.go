package domain

import "time"

// ActivityAction tags an activity log entry.
type ActivityAction string

const (
	ActivityCreated      ActivityAction = "CREATED"
	ActivityStatusUpdate ActivityAction = "STATUS_UPDATE"
	ActivityClosed       ActivityAction = "CLOSED"
)

// ActivityLogEntry is an immutable audit record of a lifecycle event.
type ActivityLogEntry struct {
	ID          string
	TicketID    string
	Action      ActivityAction
	PerformedBy string
	Details     string
	Timestamp   time.Time
}
