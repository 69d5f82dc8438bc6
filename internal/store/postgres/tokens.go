package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/models"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/notify"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateToken(ctx context.Context, input store.CreateTokenInput) (store.CreateTokenResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.CreateTokenResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = ensureOrganization(ctx, tx, input.OrganizationID); err != nil {
		return store.CreateTokenResult{}, err
	}

	number, err := s.issueNumber(ctx, tx, input.OrganizationID, input.CustomerType, input.StaffID)
	if err != nil {
		return store.CreateTokenResult{}, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var metadata []byte
	if len(input.Metadata) > 0 {
		metadata, err = json.Marshal(input.Metadata)
		if err != nil {
			return store.CreateTokenResult{}, err
		}
	}

	tokenID := uuid.NewString()
	row := tx.QueryRow(ctx, `
		INSERT INTO tokens (token_id, organization_id, number, customer_type, status, priority, created_at, notes, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+tokenColumns+`
	`, tokenID, input.OrganizationID, number, input.CustomerType, models.StatusWaiting, input.Priority, createdAt, nullIfEmpty(input.Notes), metadata)
	token, err := scanToken(row)
	if err != nil {
		return store.CreateTokenResult{}, err
	}

	position, err := queuePosition(ctx, tx, token)
	if err != nil {
		return store.CreateTokenResult{}, err
	}

	avg, err := s.trailingAvgServiceMinutes(ctx, tx, input.OrganizationID, input.CustomerType)
	if err != nil {
		return store.CreateTokenResult{}, err
	}
	estimate := store.EstimateWaitMinutes(position, avg)

	if _, err = tx.Exec(ctx, `
		UPDATE tokens SET estimated_wait_minutes = $1 WHERE token_id = $2
	`, estimate, tokenID); err != nil {
		return store.CreateTokenResult{}, err
	}
	token.EstimatedWaitMinutes = &estimate

	err = insertSystemLog(ctx, tx, input.OrganizationID, input.StaffID, "token.created", "token", tokenID, map[string]interface{}{
		"number":        number,
		"customer_type": input.CustomerType,
		"priority":      input.Priority,
		"position":      position,
	})
	if err != nil {
		return store.CreateTokenResult{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return store.CreateTokenResult{}, err
	}

	s.publishToken("token.created", token)
	return store.CreateTokenResult{Token: token, Position: position, EstimatedWaitMinutes: estimate}, nil
}

// issueNumber advances the per-(organization, customer type) counter and
// formats the customer-visible number. The SELECT ... FOR UPDATE serializes
// concurrent issuance for the same pair; the caller's transaction ties the
// increment to the token insert so a crash can waste a number but never
// hand it out twice.
func (s *Store) issueNumber(ctx context.Context, tx pgx.Tx, organizationID, customerType, actorID string) (string, error) {
	var prefix string
	var current, maxNumber int
	var active bool
	row := tx.QueryRow(ctx, `
		SELECT prefix, current_number, max_number, active
		FROM queue_settings
		WHERE organization_id = $1 AND customer_type = $2
		FOR UPDATE
	`, organizationID, customerType)
	if err := row.Scan(&prefix, &current, &maxNumber, &active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrQueueNotConfigured
		}
		return "", err
	}
	if !active {
		return "", store.ErrQueueInactive
	}

	next, wrapped := store.NextNumber(current, maxNumber)
	if _, err := tx.Exec(ctx, `
		UPDATE queue_settings SET current_number = $1
		WHERE organization_id = $2 AND customer_type = $3
	`, next, organizationID, customerType); err != nil {
		return "", err
	}
	if wrapped {
		log.Printf("queue number wrapped org=%s type=%s max=%d", organizationID, customerType, maxNumber)
		err := insertSystemLog(ctx, tx, organizationID, actorID, "queue.number_wrapped", "queue_setting", customerType, map[string]interface{}{
			"max_number": maxNumber,
		})
		if err != nil {
			return "", err
		}
	}
	return store.FormatTokenNumber(prefix, next), nil
}

// queuePosition ranks the token among active tokens of its type: everything
// with higher priority, or equal priority and an earlier creation time, sits
// ahead of it.
func queuePosition(ctx context.Context, tx pgx.Tx, token models.Token) (int, error) {
	var ahead int
	row := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tokens
		WHERE organization_id = $1 AND customer_type = $2
			AND status IN ('waiting', 'called')
			AND token_id <> $3
			AND (priority > $4 OR (priority = $4 AND created_at < $5))
	`, token.OrganizationID, token.CustomerType, token.TokenID, token.Priority, token.CreatedAt)
	if err := row.Scan(&ahead); err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

func (s *Store) trailingAvgServiceMinutes(ctx context.Context, tx pgx.Tx, organizationID, customerType string) (float64, error) {
	var avg *float64
	row := tx.QueryRow(ctx, `
		SELECT AVG(service_duration_minutes)
		FROM (
			SELECT service_duration_minutes
			FROM tokens
			WHERE organization_id = $1 AND customer_type = $2
				AND status = 'completed' AND service_duration_minutes IS NOT NULL
			ORDER BY completed_at DESC
			LIMIT $3
		) recent
	`, organizationID, customerType, s.avgServiceWindow)
	if err := row.Scan(&avg); err != nil {
		return 0, err
	}
	if avg == nil || *avg <= 0 {
		return float64(s.defaultServiceMinutes), nil
	}
	return *avg, nil
}

func (s *Store) GetToken(ctx context.Context, organizationID, tokenID string) (models.Token, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE token_id = $1 AND organization_id = $2
	`, tokenID, organizationID)
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Token{}, store.ErrTokenNotFound
		}
		return models.Token{}, err
	}
	return token, nil
}

func (s *Store) ListTokens(ctx context.Context, filter store.ListTokensFilter) ([]models.Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE organization_id = $1
	`
	args := []interface{}{filter.OrganizationID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + itoa(len(args))
	}
	if filter.CustomerType != "" {
		args = append(args, filter.CustomerType)
		query += ` AND customer_type = $` + itoa(len(args))
	}
	if filter.CounterID != "" {
		args = append(args, filter.CounterID)
		query += ` AND counter_id = $` + itoa(len(args))
	}
	if filter.ActiveOnly {
		args = append(args, models.ActiveStatuses())
		query += ` AND status = ANY($` + itoa(len(args)) + `)`
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query += ` ORDER BY priority DESC, created_at ASC LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// CallNext pops the highest-priority, oldest waiting token and assigns it to
// the counter in one conditional update. FOR UPDATE SKIP LOCKED guarantees
// that concurrent callers each win a distinct token; with the queue empty the
// second return value is false and no error is raised.
func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Token, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Token{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = ensureCounter(ctx, tx, input.OrganizationID, input.CounterID); err != nil {
		return models.Token{}, false, err
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	query := `
		WITH next_token AS (
			SELECT token_id
			FROM tokens
			WHERE organization_id = $1 AND status = 'waiting'
	`
	args := []interface{}{input.OrganizationID, input.CounterID, calledAt}
	if input.CustomerType != "" {
		args = append(args, input.CustomerType)
		query += ` AND customer_type = $` + itoa(len(args))
	}
	query += `
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tokens
		SET status = 'called',
			counter_id = $2,
			called_at = $3
		FROM next_token
		WHERE tokens.token_id = next_token.token_id
		RETURNING ` + qualifiedTokenColumns

	row := tx.QueryRow(ctx, query, args...)
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err = tx.Commit(ctx); err != nil {
				return models.Token{}, false, err
			}
			return models.Token{}, false, nil
		}
		return models.Token{}, false, err
	}

	err = insertSystemLog(ctx, tx, input.OrganizationID, input.StaffID, "token.called", "token", token.TokenID, map[string]interface{}{
		"number":     token.Number,
		"counter_id": input.CounterID,
	})
	if err != nil {
		return models.Token{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Token{}, false, err
	}

	s.publishToken("token.called", token)
	return token, true, nil
}

func (s *Store) StartServing(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	occurredAt := occurredOrNow(input.OccurredAt)
	return s.transition(ctx, input, "token.serving", func(ctx context.Context, tx pgx.Tx) (models.Token, error) {
		row := tx.QueryRow(ctx, `
			UPDATE tokens
			SET status = 'serving',
				served_at = $3,
				served_by = $4
			WHERE token_id = $1 AND organization_id = $2 AND status = 'called'
			RETURNING `+tokenColumns+`
		`, input.TokenID, input.OrganizationID, occurredAt, input.StaffID)
		return scanToken(row)
	})
}

func (s *Store) CompleteService(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	occurredAt := occurredOrNow(input.OccurredAt)
	return s.transition(ctx, input, "token.completed", func(ctx context.Context, tx pgx.Tx) (models.Token, error) {
		row := tx.QueryRow(ctx, `
			UPDATE tokens
			SET status = 'completed',
				completed_at = $3,
				actual_wait_minutes = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM (called_at - created_at)) / 60))::int,
				service_duration_minutes = COALESCE($4, GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($3::timestamptz - served_at)) / 60))::int),
				rating = COALESCE($5, rating),
				notes = CASE WHEN $6 <> '' THEN $6 ELSE notes END
			WHERE token_id = $1 AND organization_id = $2 AND status = 'serving'
			RETURNING `+tokenColumns+`
		`, input.TokenID, input.OrganizationID, occurredAt, input.ServiceDurationMinutes, input.Rating, input.Notes)
		return scanToken(row)
	})
}

func (s *Store) MarkNoShow(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	return s.transition(ctx, input, "token.no_show", func(ctx context.Context, tx pgx.Tx) (models.Token, error) {
		row := tx.QueryRow(ctx, `
			UPDATE tokens
			SET status = 'no_show',
				notes = CASE WHEN $3 <> '' THEN $3 ELSE notes END
			WHERE token_id = $1 AND organization_id = $2 AND status = 'called'
			RETURNING `+tokenColumns+`
		`, input.TokenID, input.OrganizationID, input.Notes)
		return scanToken(row)
	})
}

func (s *Store) RecallToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	occurredAt := occurredOrNow(input.OccurredAt)
	return s.transition(ctx, input, "token.recalled", func(ctx context.Context, tx pgx.Tx) (models.Token, error) {
		if err := ensureCounter(ctx, tx, input.OrganizationID, input.CounterID); err != nil {
			return models.Token{}, err
		}
		row := tx.QueryRow(ctx, `
			UPDATE tokens
			SET status = 'called',
				counter_id = $3,
				called_at = $4
			WHERE token_id = $1 AND organization_id = $2 AND status = 'no_show'
			RETURNING `+tokenColumns+`
		`, input.TokenID, input.OrganizationID, input.CounterID, occurredAt)
		return scanToken(row)
	})
}

func (s *Store) CancelToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	occurredAt := occurredOrNow(input.OccurredAt)
	return s.transition(ctx, input, "token.cancelled", func(ctx context.Context, tx pgx.Tx) (models.Token, error) {
		row := tx.QueryRow(ctx, `
			UPDATE tokens
			SET status = 'cancelled',
				cancelled_at = $3,
				notes = CASE WHEN $4 <> '' THEN $4 ELSE notes END
			WHERE token_id = $1 AND organization_id = $2 AND status IN ('waiting', 'called')
			RETURNING `+tokenColumns+`
		`, input.TokenID, input.OrganizationID, occurredAt, input.Reason)
		return scanToken(row)
	})
}

// RepeatAnnounce re-broadcasts the call for a token already assigned to the
// counter. No state changes; used when a customer misses the announcement.
func (s *Store) RepeatAnnounce(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Token{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE token_id = $1 AND organization_id = $2
	`, input.TokenID, input.OrganizationID)
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTokenNotFound
		}
		return models.Token{}, err
	}
	if !store.ValidTransition("announce", token.Status) {
		err = store.ErrInvalidState
		return models.Token{}, err
	}
	if token.CounterID == nil || *token.CounterID != input.CounterID {
		err = store.ErrCounterMismatch
		return models.Token{}, err
	}

	err = insertSystemLog(ctx, tx, input.OrganizationID, input.StaffID, "token.announced", "token", token.TokenID, map[string]interface{}{
		"number":     token.Number,
		"counter_id": input.CounterID,
	})
	if err != nil {
		return models.Token{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Token{}, err
	}

	s.publishToken("token.announced", token)
	return token, nil
}

// transition runs a conditional status update, resolving an empty result into
// ErrTokenNotFound or ErrInvalidState, and logs plus publishes on success.
func (s *Store) transition(ctx context.Context, input store.TokenActionInput, event string, apply func(context.Context, pgx.Tx) (models.Token, error)) (models.Token, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Token{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	token, err := apply(ctx, tx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = resolveTransitionErr(ctx, tx, input.OrganizationID, input.TokenID)
		}
		return models.Token{}, err
	}

	details := map[string]interface{}{
		"number": token.Number,
		"status": token.Status,
	}
	if input.Reason != "" {
		details["reason"] = input.Reason
	}
	err = insertSystemLog(ctx, tx, input.OrganizationID, input.StaffID, event, "token", token.TokenID, details)
	if err != nil {
		return models.Token{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Token{}, err
	}

	s.publishToken(event, token)
	return token, nil
}

// BulkUpdateTokens applies one patch to every token in the id set. Membership
// is verified first: any id missing or owned by another organization aborts
// the whole batch with no partial application.
func (s *Store) BulkUpdateTokens(ctx context.Context, input store.BulkTokenInput) ([]models.Token, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = verifyBulkMembership(ctx, tx, input.OrganizationID, input.TokenIDs); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		UPDATE tokens
		SET status = COALESCE($3, status),
			priority = COALESCE($4, priority),
			counter_id = COALESCE($5, counter_id),
			notes = COALESCE($6, notes)
		WHERE token_id = ANY($1) AND organization_id = $2
		RETURNING `+tokenColumns+`
	`, input.TokenIDs, input.OrganizationID, input.Patch.Status, input.Patch.Priority, input.Patch.CounterID, input.Patch.Notes)
	if err != nil {
		return nil, err
	}
	var tokens []models.Token
	for rows.Next() {
		var token models.Token
		token, err = scanToken(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tokens = append(tokens, token)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	err = insertSystemLog(ctx, tx, input.OrganizationID, input.StaffID, "token.bulk_updated", "token", "", map[string]interface{}{
		"token_ids": input.TokenIDs,
		"count":     len(tokens),
	})
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifier.Publish(notify.Scope{OrganizationID: input.OrganizationID}, "token.bulk_updated", tokens)
	return tokens, nil
}

// BulkCancelTokens soft-cancels the id set; tokens already past waiting or
// called are left untouched. Membership is all-or-nothing like BulkUpdate.
func (s *Store) BulkCancelTokens(ctx context.Context, input store.BulkTokenInput) (int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = verifyBulkMembership(ctx, tx, input.OrganizationID, input.TokenIDs); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE tokens
		SET status = 'cancelled',
			cancelled_at = $3,
			notes = CASE WHEN $4 <> '' THEN $4 ELSE notes END
		WHERE token_id = ANY($1) AND organization_id = $2 AND status IN ('waiting', 'called')
	`, input.TokenIDs, input.OrganizationID, time.Now().UTC(), input.Reason)
	if err != nil {
		return 0, err
	}
	cancelled := int(tag.RowsAffected())

	err = insertSystemLog(ctx, tx, input.OrganizationID, input.StaffID, "token.bulk_cancelled", "token", "", map[string]interface{}{
		"token_ids": input.TokenIDs,
		"cancelled": cancelled,
		"reason":    input.Reason,
	})
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}

	s.notifier.Publish(notify.Scope{OrganizationID: input.OrganizationID}, "token.bulk_cancelled", map[string]interface{}{
		"token_ids": input.TokenIDs,
		"cancelled": cancelled,
	})
	return cancelled, nil
}

func verifyBulkMembership(ctx context.Context, tx pgx.Tx, organizationID string, tokenIDs []string) error {
	if len(tokenIDs) == 0 || len(tokenIDs) > store.BulkMaxItems {
		return store.ErrBulkMismatch
	}
	var count int
	row := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM tokens WHERE token_id = ANY($1) AND organization_id = $2
	`, tokenIDs, organizationID)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count != len(tokenIDs) {
		return store.ErrBulkMismatch
	}
	return nil
}

func occurredOrNow(occurredAt time.Time) time.Time {
	if occurredAt.IsZero() {
		return time.Now().UTC()
	}
	return occurredAt
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
