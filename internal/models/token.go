package models

import "time"

type Token struct {
	TokenID                string            `json:"token_id"`
	OrganizationID         string            `json:"organization_id"`
	CounterID              *string           `json:"counter_id,omitempty"`
	Number                 string            `json:"number"`
	CustomerType           string            `json:"customer_type"`
	Status                 string            `json:"status"`
	Priority               int               `json:"priority"`
	CreatedAt              time.Time         `json:"created_at"`
	CalledAt               *time.Time        `json:"called_at,omitempty"`
	ServedAt               *time.Time        `json:"served_at,omitempty"`
	CompletedAt            *time.Time        `json:"completed_at,omitempty"`
	CancelledAt            *time.Time        `json:"cancelled_at,omitempty"`
	ServedBy               *string           `json:"served_by,omitempty"`
	EstimatedWaitMinutes   *int              `json:"estimated_wait_minutes,omitempty"`
	ActualWaitMinutes      *int              `json:"actual_wait_minutes,omitempty"`
	ServiceDurationMinutes *int              `json:"service_duration_minutes,omitempty"`
	Rating                 *int              `json:"rating,omitempty"`
	Notes                  string            `json:"notes,omitempty"`
	Metadata               map[string]string `json:"metadata,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusCalled    = "called"
	StatusServing   = "serving"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

const (
	TypeInstant = "instant"
	TypeBrowser = "browser"
	TypeRetail  = "retail"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusWaiting, StatusCalled, StatusServing, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

func ValidCustomerType(customerType string) bool {
	switch customerType {
	case TypeInstant, TypeBrowser, TypeRetail:
		return true
	default:
		return false
	}
}

// Terminal reports whether a status permits no further transitions.
// no_show is not terminal: a no-show token can be recalled.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// ActiveStatuses lists the statuses of tokens still open in the queue.
func ActiveStatuses() []string {
	all := []string{StatusWaiting, StatusCalled, StatusServing, StatusCompleted, StatusCancelled, StatusNoShow}
	var active []string
	for _, status := range all {
		if !Terminal(status) {
			active = append(active, status)
		}
	}
	return active
}
