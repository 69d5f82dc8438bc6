package notify

// Scope addresses a broadcast. Empty fields widen the audience: a zero Scope
// reaches every subscriber, an organization-only Scope reaches everyone in
// that organization, and so on down to a single user.
type Scope struct {
	OrganizationID string `json:"organization_id,omitempty"`
	Role           string `json:"role,omitempty"`
	CounterID      string `json:"counter_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
}

// Notifier delivers a named event to every subscriber matching the scope.
// Delivery is fire-and-forget: implementations must never block the caller
// or surface delivery failures into it.
type Notifier interface {
	Publish(scope Scope, event string, payload interface{})
}

// Match reports whether a subscription wants events published to target.
// A filter rejects only events that name a different value for the same
// field; events scoped more broadly (field left empty) still reach narrower
// subscribers, and a subscriber's empty field accepts anything.
func Match(sub, target Scope) bool {
	if sub.OrganizationID != "" && target.OrganizationID != "" && target.OrganizationID != sub.OrganizationID {
		return false
	}
	if sub.Role != "" && target.Role != "" && target.Role != sub.Role {
		return false
	}
	if sub.CounterID != "" && target.CounterID != "" && target.CounterID != sub.CounterID {
		return false
	}
	if sub.UserID != "" && target.UserID != "" && target.UserID != sub.UserID {
		return false
	}
	return true
}

// Nop drops every event. Used in tests and as the default when no hub is
// wired.
type Nop struct{}

func (Nop) Publish(Scope, string, interface{}) {}
