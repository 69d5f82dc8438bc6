package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/models"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const uniqueViolation = "23505"

// defaultQueueSettings seeds a fresh organization so tokens can be issued
// immediately after bootstrap. Admins tune prefixes and limits afterwards.
var defaultQueueSettings = []struct {
	customerType string
	prefix       string
}{
	{models.TypeInstant, "I"},
	{models.TypeBrowser, "B"},
	{models.TypeRetail, "R"},
}

// CreateOrganization bootstraps a tenant: the organization row, one queue
// setting per customer type, and the first admin user, all in one
// transaction.
func (s *Store) CreateOrganization(ctx context.Context, input store.CreateOrganizationInput) (models.Organization, models.User, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Organization{}, models.User{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var settings []byte
	if len(input.Settings) > 0 {
		settings, err = json.Marshal(input.Settings)
		if err != nil {
			return models.Organization{}, models.User{}, err
		}
	}

	org := models.Organization{
		OrganizationID: uuid.NewString(),
		Name:           input.Name,
		Settings:       input.Settings,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO organizations (organization_id, name, settings, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, org.OrganizationID, org.Name, settings, org.Active, org.CreatedAt); err != nil {
		return models.Organization{}, models.User{}, err
	}

	for _, seed := range defaultQueueSettings {
		if _, err = tx.Exec(ctx, `
			INSERT INTO queue_settings (organization_id, customer_type, prefix, current_number, max_number, reset_daily, reset_time, active, priority_multiplier)
			VALUES ($1, $2, $3, 0, 999, true, '00:00', true, 1.0)
		`, org.OrganizationID, seed.customerType, seed.prefix); err != nil {
			return models.Organization{}, models.User{}, err
		}
	}

	var admin models.User
	admin, err = insertUser(ctx, tx, org.OrganizationID, input.AdminEmail, input.AdminPassword, models.RoleAdmin)
	if err != nil {
		return models.Organization{}, models.User{}, err
	}

	err = insertSystemLog(ctx, tx, org.OrganizationID, admin.UserID, "organization.created", "organization", org.OrganizationID, map[string]interface{}{
		"name": org.Name,
	})
	if err != nil {
		return models.Organization{}, models.User{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Organization{}, models.User{}, err
	}
	return org, admin, nil
}

func (s *Store) GetOrganization(ctx context.Context, organizationID string) (models.Organization, error) {
	var org models.Organization
	var settings []byte
	row := s.pool.QueryRow(ctx, `
		SELECT organization_id, name, settings, active, created_at
		FROM organizations
		WHERE organization_id = $1
	`, organizationID)
	if err := row.Scan(&org.OrganizationID, &org.Name, &settings, &org.Active, &org.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Organization{}, store.ErrOrganizationNotFound
		}
		return models.Organization{}, err
	}
	if len(settings) > 0 {
		_ = json.Unmarshal(settings, &org.Settings)
	}
	return org, nil
}

func insertUser(ctx context.Context, tx pgx.Tx, organizationID, email, password, role string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	user := models.User{
		UserID:         uuid.NewString(),
		OrganizationID: organizationID,
		Email:          strings.ToLower(strings.TrimSpace(email)),
		Role:           role,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO users (user_id, organization_id, email, password_hash, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.UserID, user.OrganizationID, user.Email, string(hash), user.Role, user.Active, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.User{}, store.ErrEmailTaken
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) CreateUser(ctx context.Context, input store.CreateUserInput) (models.User, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.User{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = ensureOrganization(ctx, tx, input.OrganizationID); err != nil {
		return models.User{}, err
	}

	var user models.User
	user, err = insertUser(ctx, tx, input.OrganizationID, input.Email, input.Password, input.Role)
	if err != nil {
		return models.User{}, err
	}

	err = insertSystemLog(ctx, tx, input.OrganizationID, input.ActorID, "user.created", "user", user.UserID, map[string]interface{}{
		"email": user.Email,
		"role":  user.Role,
	})
	if err != nil {
		return models.User{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Authenticate verifies credentials without leaking which check failed.
func (s *Store) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	var user models.User
	var hash string
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, organization_id, email, password_hash, role, active, created_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email)))
	err := row.Scan(&user.UserID, &user.OrganizationID, &user.Email, &hash, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if !user.Active {
		return models.User{}, store.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return models.User{}, store.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, organizationID, userID string) (models.User, error) {
	var user models.User
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, organization_id, email, role, active, created_at
		FROM users
		WHERE user_id = $1 AND organization_id = $2
	`, userID, organizationID)
	err := row.Scan(&user.UserID, &user.OrganizationID, &user.Email, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, organizationID, query string, limit, offset int) ([]models.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	sqlQuery := `
		SELECT user_id, organization_id, email, role, active, created_at
		FROM users
		WHERE organization_id = $1
	`
	args := []interface{}{organizationID}
	if query != "" {
		args = append(args, "%"+query+"%")
		sqlQuery += ` AND email ILIKE $` + itoa(len(args))
	}
	args = append(args, limit, offset)
	sqlQuery += ` ORDER BY created_at ASC LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))

	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.UserID, &user.OrganizationID, &user.Email, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserRole(ctx context.Context, organizationID, userID, role, actorID string) error {
	return s.userAdminUpdate(ctx, organizationID, userID, actorID, "user.role_changed", map[string]interface{}{"role": role}, `
		UPDATE users SET role = $3 WHERE user_id = $1 AND organization_id = $2
	`, role)
}

func (s *Store) SetUserActive(ctx context.Context, organizationID, userID string, active bool, actorID string) error {
	return s.userAdminUpdate(ctx, organizationID, userID, actorID, "user.active_changed", map[string]interface{}{"active": active}, `
		UPDATE users SET active = $3 WHERE user_id = $1 AND organization_id = $2
	`, active)
}

func (s *Store) userAdminUpdate(ctx context.Context, organizationID, userID, actorID, action string, details map[string]interface{}, query string, value interface{}) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var tag pgconn.CommandTag
	tag, err = tx.Exec(ctx, query, userID, organizationID, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrUserNotFound
		return err
	}

	err = insertSystemLog(ctx, tx, organizationID, actorID, action, "user", userID, details)
	if err != nil {
		return err
	}
	err = tx.Commit(ctx)
	return err
}

func scanCounter(row rowScanner) (models.Counter, error) {
	var counter models.Counter
	var staffID sql.NullString
	err := row.Scan(&counter.CounterID, &counter.OrganizationID, &counter.Name, &staffID, &counter.Active)
	if err != nil {
		return models.Counter{}, err
	}
	counter.AssignedStaffID = nullStringPtr(staffID)
	return counter, nil
}

func (s *Store) CreateCounter(ctx context.Context, counter models.Counter, actorID string) (models.Counter, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Counter{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = ensureOrganization(ctx, tx, counter.OrganizationID); err != nil {
		return models.Counter{}, err
	}

	counter.CounterID = uuid.NewString()
	counter.Active = true
	var staff interface{}
	if counter.AssignedStaffID != nil {
		staff = *counter.AssignedStaffID
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO counters (counter_id, organization_id, name, assigned_staff_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, counter.CounterID, counter.OrganizationID, counter.Name, staff, counter.Active, time.Now().UTC()); err != nil {
		return models.Counter{}, err
	}

	err = insertSystemLog(ctx, tx, counter.OrganizationID, actorID, "counter.created", "counter", counter.CounterID, map[string]interface{}{
		"name": counter.Name,
	})
	if err != nil {
		return models.Counter{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Counter{}, err
	}
	return counter, nil
}

func (s *Store) ListCounters(ctx context.Context, organizationID string) ([]models.Counter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT counter_id, organization_id, name, assigned_staff_id, active
		FROM counters
		WHERE organization_id = $1
		ORDER BY name ASC
	`, organizationID)
	if err != nil {
		return nil, err
	}
	return scanCounters(rows)
}

func (s *Store) UpdateCounter(ctx context.Context, counter models.Counter, actorID string) (models.Counter, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Counter{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var staff interface{}
	if counter.AssignedStaffID != nil {
		staff = *counter.AssignedStaffID
	}
	row := tx.QueryRow(ctx, `
		UPDATE counters
		SET name = $3, assigned_staff_id = $4, active = $5
		WHERE counter_id = $1 AND organization_id = $2
		RETURNING counter_id, organization_id, name, assigned_staff_id, active
	`, counter.CounterID, counter.OrganizationID, counter.Name, staff, counter.Active)
	updated, err := scanCounter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrCounterNotFound
		}
		return models.Counter{}, err
	}

	err = insertSystemLog(ctx, tx, counter.OrganizationID, actorID, "counter.updated", "counter", counter.CounterID, map[string]interface{}{
		"name":   updated.Name,
		"active": updated.Active,
	})
	if err != nil {
		return models.Counter{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Counter{}, err
	}
	return updated, nil
}

const queueSettingColumns = `
	organization_id, customer_type, prefix, current_number, max_number,
	reset_daily, reset_time, last_reset_at, active, priority_multiplier
`

func scanQueueSetting(row rowScanner) (models.QueueSetting, error) {
	var setting models.QueueSetting
	var lastReset sql.NullTime
	err := row.Scan(
		&setting.OrganizationID, &setting.CustomerType, &setting.Prefix,
		&setting.CurrentNumber, &setting.MaxNumber,
		&setting.ResetDaily, &setting.ResetTime, &lastReset,
		&setting.Active, &setting.PriorityMultiplier,
	)
	if err != nil {
		return models.QueueSetting{}, err
	}
	setting.LastResetAt = nullTimePtr(lastReset)
	return setting, nil
}

// UpsertQueueSetting creates or replaces the numbering configuration for a
// (organization, customer type) pair. current_number survives an update so a
// prefix change never re-issues numbers already handed out.
func (s *Store) UpsertQueueSetting(ctx context.Context, input store.UpsertQueueSettingInput) (models.QueueSetting, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueSetting{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = ensureOrganization(ctx, tx, input.OrganizationID); err != nil {
		return models.QueueSetting{}, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO queue_settings (organization_id, customer_type, prefix, current_number, max_number, reset_daily, reset_time, active, priority_multiplier)
		VALUES ($1, $2, $3, 0, $4, $5, $6, $7, $8)
		ON CONFLICT (organization_id, customer_type) DO UPDATE SET
			prefix = EXCLUDED.prefix,
			max_number = EXCLUDED.max_number,
			reset_daily = EXCLUDED.reset_daily,
			reset_time = EXCLUDED.reset_time,
			active = EXCLUDED.active,
			priority_multiplier = EXCLUDED.priority_multiplier
		RETURNING `+queueSettingColumns+`
	`, input.OrganizationID, input.CustomerType, input.Prefix, input.MaxNumber,
		input.ResetDaily, input.ResetTime, input.Active, input.PriorityMultiplier)
	setting, err := scanQueueSetting(row)
	if err != nil {
		return models.QueueSetting{}, err
	}

	err = insertSystemLog(ctx, tx, input.OrganizationID, input.ActorID, "queue_setting.upserted", "queue_setting", input.CustomerType, map[string]interface{}{
		"prefix":     setting.Prefix,
		"max_number": setting.MaxNumber,
		"active":     setting.Active,
	})
	if err != nil {
		return models.QueueSetting{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueSetting{}, err
	}
	return setting, nil
}

func (s *Store) ListQueueSettings(ctx context.Context, organizationID string) ([]models.QueueSetting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+queueSettingColumns+`
		FROM queue_settings
		WHERE organization_id = $1
		ORDER BY customer_type ASC
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []models.QueueSetting
	for rows.Next() {
		setting, err := scanQueueSetting(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return settings, nil
}

// ResetQueueNumber forces the counter back to zero for one customer type.
func (s *Store) ResetQueueNumber(ctx context.Context, organizationID, customerType, actorID string) (models.QueueSetting, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueSetting{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE queue_settings
		SET current_number = 0, last_reset_at = $3
		WHERE organization_id = $1 AND customer_type = $2
		RETURNING `+queueSettingColumns+`
	`, organizationID, customerType, time.Now().UTC())
	setting, err := scanQueueSetting(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrQueueNotConfigured
		}
		return models.QueueSetting{}, err
	}

	err = insertSystemLog(ctx, tx, organizationID, actorID, "queue.number_reset", "queue_setting", customerType, nil)
	if err != nil {
		return models.QueueSetting{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueSetting{}, err
	}
	return setting, nil
}

// ResetDueDailyCounters zeroes every counter whose configured local reset
// time has passed today and whose last reset was before today. Invoked by
// the background worker; returns how many settings were reset.
func (s *Store) ResetDueDailyCounters(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_settings
		SET current_number = 0, last_reset_at = $1
		WHERE reset_daily AND active
			AND to_char($1::timestamptz, 'HH24:MI') >= reset_time
			AND (last_reset_at IS NULL OR last_reset_at < date_trunc('day', $1::timestamptz))
	`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) ListSystemLogs(ctx context.Context, filter store.ListLogsFilter) ([]models.SystemLog, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT log_id, organization_id, actor_id, action, entity_type, entity_id, details, created_at
		FROM system_logs
		WHERE organization_id = $1
	`
	args := []interface{}{filter.OrganizationID}
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += ` AND action = $` + itoa(len(args))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		query += ` AND actor_id = $` + itoa(len(args))
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT $` + itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.SystemLog
	for rows.Next() {
		var entry models.SystemLog
		var actorID, entityID sql.NullString
		var details []byte
		err := rows.Scan(&entry.LogID, &entry.OrganizationID, &actorID, &entry.Action, &entry.EntityType, &entityID, &details, &entry.CreatedAt)
		if err != nil {
			return nil, err
		}
		if actorID.Valid {
			entry.ActorID = actorID.String
		}
		if entityID.Valid {
			entry.EntityID = entityID.String
		}
		entry.Details = json.RawMessage(details)
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}
