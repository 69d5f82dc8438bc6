package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/models"
	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/store"

	"github.com/jackc/pgx/v5"
)

// GetQueueStatus assembles the live display-board projection: per-counter
// serving and called tokens with a trailing service average, the next tokens
// up, and waiting totals. When counterID is set the counter list is narrowed
// to that one counter; the organization-wide numbers are unchanged.
func (s *Store) GetQueueStatus(ctx context.Context, organizationID, counterID string) (store.QueueStatus, error) {
	status := store.QueueStatus{
		OrganizationID: organizationID,
		WaitingByType:  map[string]int{},
		GeneratedAt:    time.Now().UTC(),
	}

	counters, err := s.statusCounters(ctx, organizationID, counterID)
	if err != nil {
		return store.QueueStatus{}, err
	}
	if counterID != "" && len(counters) == 0 {
		return store.QueueStatus{}, store.ErrCounterNotFound
	}
	status.Counters = counters

	rows, err := s.pool.Query(ctx, `
		SELECT customer_type, COUNT(*)
		FROM tokens
		WHERE organization_id = $1 AND status = 'waiting'
		GROUP BY customer_type
	`, organizationID)
	if err != nil {
		return store.QueueStatus{}, err
	}
	for rows.Next() {
		var customerType string
		var count int
		if err := rows.Scan(&customerType, &count); err != nil {
			rows.Close()
			return store.QueueStatus{}, err
		}
		status.WaitingByType[customerType] = count
		status.WaitingCount += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return store.QueueStatus{}, err
	}

	nextRows, err := s.pool.Query(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE organization_id = $1 AND status = 'waiting'
		ORDER BY priority DESC, created_at ASC
		LIMIT $2
	`, organizationID, s.queuePreviewSize)
	if err != nil {
		return store.QueueStatus{}, err
	}
	defer nextRows.Close()
	for nextRows.Next() {
		token, err := scanToken(nextRows)
		if err != nil {
			return store.QueueStatus{}, err
		}
		status.NextUp = append(status.NextUp, token)
	}
	if err := nextRows.Err(); err != nil {
		return store.QueueStatus{}, err
	}
	return status, nil
}

func (s *Store) statusCounters(ctx context.Context, organizationID, counterID string) ([]store.CounterView, error) {
	query := `
		SELECT counter_id, organization_id, name, assigned_staff_id, active
		FROM counters
		WHERE organization_id = $1 AND active
	`
	args := []interface{}{organizationID}
	if counterID != "" {
		args = append(args, counterID)
		query += ` AND counter_id = $2`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	counters, err := scanCounters(rows)
	if err != nil {
		return nil, err
	}

	views := make([]store.CounterView, 0, len(counters))
	var orgAvg *float64
	for _, counter := range counters {
		view := store.CounterView{Counter: counter}

		row := s.pool.QueryRow(ctx, `
			SELECT `+tokenColumns+`
			FROM tokens
			WHERE organization_id = $1 AND counter_id = $2 AND status = 'serving'
			ORDER BY served_at DESC
			LIMIT 1
		`, organizationID, counter.CounterID)
		serving, err := scanToken(row)
		if err == nil {
			view.Serving = &serving
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}

		calledRows, err := s.pool.Query(ctx, `
			SELECT `+tokenColumns+`
			FROM tokens
			WHERE organization_id = $1 AND counter_id = $2 AND status = 'called'
			ORDER BY called_at ASC
		`, organizationID, counter.CounterID)
		if err != nil {
			return nil, err
		}
		for calledRows.Next() {
			token, err := scanToken(calledRows)
			if err != nil {
				calledRows.Close()
				return nil, err
			}
			view.Called = append(view.Called, token)
		}
		calledRows.Close()
		if err := calledRows.Err(); err != nil {
			return nil, err
		}

		var counterAvg *float64
		avgRow := s.pool.QueryRow(ctx, `
			SELECT AVG(service_duration_minutes)
			FROM (
				SELECT service_duration_minutes
				FROM tokens
				WHERE organization_id = $1 AND counter_id = $2
					AND status = 'completed' AND service_duration_minutes IS NOT NULL
				ORDER BY completed_at DESC
				LIMIT $3
			) recent
		`, organizationID, counter.CounterID, s.counterAvgWindow)
		if err := avgRow.Scan(&counterAvg); err != nil {
			return nil, err
		}
		if counterAvg != nil {
			view.AvgServiceMinutes = *counterAvg
		} else {
			// A counter with no completed history reports the org-wide
			// trailing average instead; computed once per snapshot.
			if orgAvg == nil {
				value, err := s.orgAvgServiceMinutes(ctx, organizationID)
				if err != nil {
					return nil, err
				}
				orgAvg = &value
			}
			view.AvgServiceMinutes = *orgAvg
		}

		views = append(views, view)
	}
	return views, nil
}

func (s *Store) orgAvgServiceMinutes(ctx context.Context, organizationID string) (float64, error) {
	var avg *float64
	row := s.pool.QueryRow(ctx, `
		SELECT AVG(service_duration_minutes)
		FROM (
			SELECT service_duration_minutes
			FROM tokens
			WHERE organization_id = $1
				AND status = 'completed' AND service_duration_minutes IS NOT NULL
			ORDER BY completed_at DESC
			LIMIT $2
		) recent
	`, organizationID, s.counterAvgWindow)
	if err := row.Scan(&avg); err != nil {
		return 0, err
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

// GetQueueStats aggregates the [from, to) window: token totals by status,
// average wait and service durations over completed tokens, and the hour of
// day with the most token creations.
func (s *Store) GetQueueStats(ctx context.Context, organizationID string, from, to time.Time) (store.QueueStats, error) {
	stats := store.QueueStats{
		OrganizationID: organizationID,
		TotalsByStatus: map[string]int{},
		BusiestHour:    -1,
		From:           from,
		To:             to,
	}

	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM tokens
		WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY status
	`, organizationID, from, to)
	if err != nil {
		return store.QueueStats{}, err
	}
	for rows.Next() {
		var tokenStatus string
		var count int
		if err := rows.Scan(&tokenStatus, &count); err != nil {
			rows.Close()
			return store.QueueStats{}, err
		}
		stats.TotalsByStatus[tokenStatus] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return store.QueueStats{}, err
	}

	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(actual_wait_minutes), 0), COALESCE(AVG(service_duration_minutes), 0)
		FROM tokens
		WHERE organization_id = $1 AND status = 'completed'
			AND created_at >= $2 AND created_at < $3
	`, organizationID, from, to)
	if err := row.Scan(&stats.AvgWaitMinutes, &stats.AvgServiceMinutes); err != nil {
		return store.QueueStats{}, err
	}

	busyRow := s.pool.QueryRow(ctx, `
		SELECT EXTRACT(HOUR FROM created_at)::int AS hour, COUNT(*)
		FROM tokens
		WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY hour
		ORDER BY COUNT(*) DESC, hour ASC
		LIMIT 1
	`, organizationID, from, to)
	if err := busyRow.Scan(&stats.BusiestHour, &stats.BusiestHourCount); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return store.QueueStats{}, err
		}
	}
	return stats, nil
}

func scanCounters(rows pgx.Rows) ([]models.Counter, error) {
	defer rows.Close()
	var counters []models.Counter
	for rows.Next() {
		counter, err := scanCounter(rows)
		if err != nil {
			return nil, err
		}
		counters = append(counters, counter)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counters, nil
}
