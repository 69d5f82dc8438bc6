package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/models"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/notify"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool                  *pgxpool.Pool
	notifier              notify.Notifier
	avgServiceWindow      int
	defaultServiceMinutes int
	queuePreviewSize      int
	counterAvgWindow      int
}

type Options struct {
	Notifier              notify.Notifier
	AvgServiceWindow      int
	DefaultServiceMinutes int
	QueuePreviewSize      int
	CounterAvgWindow      int
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	notifier := options.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	window := options.AvgServiceWindow
	if window <= 0 {
		window = store.DefaultAvgServiceWindow
	}
	fallback := options.DefaultServiceMinutes
	if fallback <= 0 {
		fallback = store.DefaultServiceMinutes
	}
	preview := options.QueuePreviewSize
	if preview <= 0 {
		preview = store.DefaultQueuePreviewSize
	}
	counterWindow := options.CounterAvgWindow
	if counterWindow <= 0 {
		counterWindow = store.DefaultCounterAvgWindow
	}
	return &Store{
		pool:                  pool,
		notifier:              notifier,
		avgServiceWindow:      window,
		defaultServiceMinutes: fallback,
		queuePreviewSize:      preview,
		counterAvgWindow:      counterWindow,
	}
}

const tokenColumns = `
	token_id, organization_id, counter_id, number, customer_type, status, priority,
	created_at, called_at, served_at, completed_at, cancelled_at, served_by,
	estimated_wait_minutes, actual_wait_minutes, service_duration_minutes, rating,
	notes, metadata
`

// qualifiedTokenColumns is the same select list prefixed for queries where
// the column names would otherwise be ambiguous.
const qualifiedTokenColumns = `
	tokens.token_id, tokens.organization_id, tokens.counter_id, tokens.number,
	tokens.customer_type, tokens.status, tokens.priority,
	tokens.created_at, tokens.called_at, tokens.served_at, tokens.completed_at,
	tokens.cancelled_at, tokens.served_by,
	tokens.estimated_wait_minutes, tokens.actual_wait_minutes,
	tokens.service_duration_minutes, tokens.rating,
	tokens.notes, tokens.metadata
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(row rowScanner) (models.Token, error) {
	var token models.Token
	var counterID, servedBy, notes sql.NullString
	var calledAt, servedAt, completedAt, cancelledAt sql.NullTime
	var estimated, actual, duration, rating sql.NullInt64
	var metadata []byte

	err := row.Scan(
		&token.TokenID, &token.OrganizationID, &counterID, &token.Number,
		&token.CustomerType, &token.Status, &token.Priority,
		&token.CreatedAt, &calledAt, &servedAt, &completedAt, &cancelledAt, &servedBy,
		&estimated, &actual, &duration, &rating,
		&notes, &metadata,
	)
	if err != nil {
		return models.Token{}, err
	}

	token.CounterID = nullStringPtr(counterID)
	token.ServedBy = nullStringPtr(servedBy)
	token.CalledAt = nullTimePtr(calledAt)
	token.ServedAt = nullTimePtr(servedAt)
	token.CompletedAt = nullTimePtr(completedAt)
	token.CancelledAt = nullTimePtr(cancelledAt)
	token.EstimatedWaitMinutes = nullIntPtr(estimated)
	token.ActualWaitMinutes = nullIntPtr(actual)
	token.ServiceDurationMinutes = nullIntPtr(duration)
	token.Rating = nullIntPtr(rating)
	if notes.Valid {
		token.Notes = notes.String
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &token.Metadata)
	}
	return token, nil
}

// insertSystemLog appends one audit row inside the caller's transaction so a
// rollback never leaves a log entry for an uncommitted change.
func insertSystemLog(ctx context.Context, tx pgx.Tx, organizationID, actorID, action, entityType, entityID string, details map[string]interface{}) error {
	var payload []byte
	if details != nil {
		encoded, err := json.Marshal(details)
		if err != nil {
			return err
		}
		payload = encoded
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO system_logs (log_id, organization_id, actor_id, action, entity_type, entity_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.NewString(), organizationID, nullIfEmpty(actorID), action, entityType, nullIfEmpty(entityID), payload, time.Now().UTC())
	return err
}

func (s *Store) publishToken(event string, token models.Token) {
	scope := notify.Scope{OrganizationID: token.OrganizationID}
	if token.CounterID != nil {
		scope.CounterID = *token.CounterID
	}
	s.notifier.Publish(scope, event, token)
}

func ensureOrganization(ctx context.Context, tx pgx.Tx, organizationID string) error {
	var active bool
	row := tx.QueryRow(ctx, `
		SELECT active FROM organizations WHERE organization_id = $1
	`, organizationID)
	if err := row.Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrOrganizationNotFound
		}
		return err
	}
	if !active {
		return store.ErrOrganizationNotFound
	}
	return nil
}

func ensureCounter(ctx context.Context, tx pgx.Tx, organizationID, counterID string) error {
	var active bool
	row := tx.QueryRow(ctx, `
		SELECT active FROM counters WHERE counter_id = $1 AND organization_id = $2
	`, counterID, organizationID)
	if err := row.Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrCounterNotFound
		}
		return err
	}
	if !active {
		return store.ErrCounterNotFound
	}
	return nil
}

// loadTokenStatus distinguishes "token absent or foreign" from "token in the
// wrong state" after a conditional update matched no row.
func loadTokenStatus(ctx context.Context, tx pgx.Tx, organizationID, tokenID string) (string, bool, error) {
	var status string
	row := tx.QueryRow(ctx, `
		SELECT status FROM tokens WHERE token_id = $1 AND organization_id = $2
	`, tokenID, organizationID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return status, true, nil
}

func resolveTransitionErr(ctx context.Context, tx pgx.Tx, organizationID, tokenID string) error {
	_, found, err := loadTokenStatus(ctx, tx, organizationID, tokenID)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrTokenNotFound
	}
	return store.ErrInvalidState
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	v := value.Time
	return &v
}

func nullIntPtr(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	v := int(value.Int64)
	return &v
}
