package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "Pending"
	TicketStatusInProgress TicketStatus = "In Progress"
	TicketStatusResolved   TicketStatus = "Resolved"
	TicketStatusClosed     TicketStatus = "Closed"
)

// TicketStatuses lists every status in lifecycle order.
var TicketStatuses = []TicketStatus{
	TicketStatusPending,
	TicketStatusInProgress,
	TicketStatusResolved,
	TicketStatusClosed,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, candidate := range TicketStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// TicketCategory classifies what the ticket is about.
type TicketCategory string

const (
	TicketCategoryBug            TicketCategory = "Bug"
	TicketCategorySuggestion     TicketCategory = "Suggestion"
	TicketCategoryFeedback       TicketCategory = "Feedback"
	TicketCategoryTechnicalIssue TicketCategory = "Technical Issue"
	TicketCategoryOther          TicketCategory = "Other"
)

// TicketCategories lists accepted categories.
var TicketCategories = []TicketCategory{
	TicketCategoryBug,
	TicketCategorySuggestion,
	TicketCategoryFeedback,
	TicketCategoryTechnicalIssue,
	TicketCategoryOther,
}

// Valid reports whether c is a known category.
func (c TicketCategory) Valid() bool {
	for _, candidate := range TicketCategories {
		if c == candidate {
			return true
		}
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "Low"
	TicketPriorityMedium   TicketPriority = "Medium"
	TicketPriorityHigh     TicketPriority = "High"
	TicketPriorityCritical TicketPriority = "Critical"
)

// TicketPriorities lists accepted priorities.
var TicketPriorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityCritical,
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	for _, candidate := range TicketPriorities {
		if p == candidate {
			return true
		}
	}
	return false
}

// Attachment references an uploaded file.
type Attachment struct {
	URL      string `json:"url"`
	FileName string `json:"filename"`
}

// StatusUpdate is one entry of the trail embedded in a ticket.
type StatusUpdate struct {
	Status      TicketStatus `json:"status"`
	Description string       `json:"description"`
	Attachment  *Attachment  `json:"attachment,omitempty"`
	UpdatedBy   string       `json:"updated_by"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Ticket is the aggregate for support requests.
//
// SubmittedByEmail and SubmittedByName are copied from the submitter when the
// ticket is created and are never refreshed afterwards.
type Ticket struct {
	ID               string
	TicketNumber     string
	Title            string
	Description      string
	Category         TicketCategory
	Priority         TicketPriority
	Status           TicketStatus
	SubmittedBy      string
	SubmittedByEmail string
	SubmittedByName  string
	Attachments      []Attachment
	StatusUpdates    []StatusUpdate
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ClosedAt         *time.Time
}

// IsClosed reports whether the ticket reached the terminal state.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}
