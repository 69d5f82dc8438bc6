package store

import (
	"context"
	"time"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/models"
)

// BulkMaxItems bounds the id set accepted by bulk operations.
const BulkMaxItems = 50

type CreateTokenInput struct {
	OrganizationID string
	CustomerType   string
	Priority       int
	Notes          string
	Metadata       map[string]string
	StaffID        string
	CreatedAt      time.Time
}

type CreateTokenResult struct {
	Token                models.Token `json:"token"`
	Position             int          `json:"position"`
	EstimatedWaitMinutes int          `json:"estimated_wait_minutes"`
}

type CallNextInput struct {
	OrganizationID string
	CounterID      string
	StaffID        string
	CustomerType   string
	CalledAt       time.Time
}

type TokenActionInput struct {
	OrganizationID         string
	TokenID                string
	CounterID              string
	StaffID                string
	Reason                 string
	Notes                  string
	ServiceDurationMinutes *int
	Rating                 *int
	OccurredAt             time.Time
}

// TokenPatch is the single validated patch a bulk update applies to every
// token in the id set. Nil fields are left untouched.
type TokenPatch struct {
	Status    *string
	Priority  *int
	CounterID *string
	Notes     *string
}

type BulkTokenInput struct {
	OrganizationID string
	StaffID        string
	TokenIDs       []string
	Patch          TokenPatch
	Reason         string
}

type ListTokensFilter struct {
	OrganizationID string
	Status         string
	CustomerType   string
	CounterID      string
	// ActiveOnly narrows the listing to non-terminal tokens.
	ActiveOnly bool
	Limit      int
	Offset     int
}

type CounterView struct {
	Counter           models.Counter `json:"counter"`
	Serving           *models.Token  `json:"serving,omitempty"`
	Called            []models.Token `json:"called,omitempty"`
	AvgServiceMinutes float64        `json:"avg_service_minutes"`
}

type QueueStatus struct {
	OrganizationID string         `json:"organization_id"`
	Counters       []CounterView  `json:"counters"`
	NextUp         []models.Token `json:"next_up"`
	WaitingCount   int            `json:"waiting_count"`
	WaitingByType  map[string]int `json:"waiting_by_type"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

type QueueStats struct {
	OrganizationID    string         `json:"organization_id"`
	TotalsByStatus    map[string]int `json:"totals_by_status"`
	AvgWaitMinutes    float64        `json:"avg_wait_minutes"`
	AvgServiceMinutes float64        `json:"avg_service_minutes"`
	BusiestHour       int            `json:"busiest_hour"`
	BusiestHourCount  int            `json:"busiest_hour_count"`
	From              time.Time      `json:"from"`
	To                time.Time      `json:"to"`
}

type CreateOrganizationInput struct {
	Name          string
	Settings      map[string]string
	AdminEmail    string
	AdminPassword string
}

type CreateUserInput struct {
	OrganizationID string
	Email          string
	Password       string
	Role           string
	ActorID        string
}

type UpsertQueueSettingInput struct {
	OrganizationID     string
	CustomerType       string
	Prefix             string
	MaxNumber          int
	ResetDaily         bool
	ResetTime          string
	Active             bool
	PriorityMultiplier float64
	ActorID            string
}

type ListLogsFilter struct {
	OrganizationID string
	Action         string
	ActorID        string
	Limit          int
}

// TokenStore is the lifecycle engine contract the HTTP layer calls into.
// Inputs arrive validated and authorized; every state-changing operation
// commits its token mutation and audit row atomically, then publishes one
// event through the configured notifier.
type TokenStore interface {
	CreateToken(ctx context.Context, input CreateTokenInput) (CreateTokenResult, error)
	GetToken(ctx context.Context, organizationID, tokenID string) (models.Token, error)
	ListTokens(ctx context.Context, filter ListTokensFilter) ([]models.Token, error)
	// CallNext returns found=false on an empty queue; that is a normal
	// outcome, not an error.
	CallNext(ctx context.Context, input CallNextInput) (models.Token, bool, error)
	StartServing(ctx context.Context, input TokenActionInput) (models.Token, error)
	CompleteService(ctx context.Context, input TokenActionInput) (models.Token, error)
	MarkNoShow(ctx context.Context, input TokenActionInput) (models.Token, error)
	RecallToken(ctx context.Context, input TokenActionInput) (models.Token, error)
	CancelToken(ctx context.Context, input TokenActionInput) (models.Token, error)
	RepeatAnnounce(ctx context.Context, input TokenActionInput) (models.Token, error)
	BulkUpdateTokens(ctx context.Context, input BulkTokenInput) ([]models.Token, error)
	BulkCancelTokens(ctx context.Context, input BulkTokenInput) (int, error)
	GetQueueStatus(ctx context.Context, organizationID, counterID string) (QueueStatus, error)
	GetQueueStats(ctx context.Context, organizationID string, from, to time.Time) (QueueStats, error)
}

// AdminStore covers tenant administration: organizations, users, counters,
// queue settings, and the audit trail.
type AdminStore interface {
	CreateOrganization(ctx context.Context, input CreateOrganizationInput) (models.Organization, models.User, error)
	GetOrganization(ctx context.Context, organizationID string) (models.Organization, error)

	CreateUser(ctx context.Context, input CreateUserInput) (models.User, error)
	Authenticate(ctx context.Context, email, password string) (models.User, error)
	GetUser(ctx context.Context, organizationID, userID string) (models.User, error)
	ListUsers(ctx context.Context, organizationID, query string, limit, offset int) ([]models.User, error)
	UpdateUserRole(ctx context.Context, organizationID, userID, role, actorID string) error
	SetUserActive(ctx context.Context, organizationID, userID string, active bool, actorID string) error

	CreateCounter(ctx context.Context, counter models.Counter, actorID string) (models.Counter, error)
	ListCounters(ctx context.Context, organizationID string) ([]models.Counter, error)
	UpdateCounter(ctx context.Context, counter models.Counter, actorID string) (models.Counter, error)

	UpsertQueueSetting(ctx context.Context, input UpsertQueueSettingInput) (models.QueueSetting, error)
	ListQueueSettings(ctx context.Context, organizationID string) ([]models.QueueSetting, error)
	ResetQueueNumber(ctx context.Context, organizationID, customerType, actorID string) (models.QueueSetting, error)
	ResetDueDailyCounters(ctx context.Context, now time.Time) (int, error)

	ListSystemLogs(ctx context.Context, filter ListLogsFilter) ([]models.SystemLog, error)
}
