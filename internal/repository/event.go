package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sharetrack/sharetrack/internal/model"
)

// EventRepository provides database access for share events.
// The share_events table is append-only: rows are inserted once and never
// updated or deleted.
type EventRepository struct {
	repo *Repository
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(repo *Repository) *EventRepository {
	return &EventRepository{repo: repo}
}

const insertEventQuery = `
	INSERT INTO share_events (
		id, event_id, file_id, file_name, file_url, action, source,
		user_id, user_agent, ip_address, device_info, tracked_at, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
	ON CONFLICT (event_id) DO NOTHING
`

// Insert appends a single event. Re-inserting the same event_id is a
// no-op, so retried writes stay idempotent.
func (r *EventRepository) Insert(ctx context.Context, event *model.Event) error {
	deviceInfo, err := marshalDeviceInfo(event.DeviceInfo)
	if err != nil {
		return fmt.Errorf("marshal device info: %w", err)
	}

	_, err = r.repo.pool.Exec(ctx, insertEventQuery,
		event.ID,
		event.EventID,
		event.FileID,
		nullableString(event.FileName),
		nullableString(event.FileURL),
		event.Action.String(),
		event.Source,
		nullableString(event.UserID),
		nullableString(event.UserAgent),
		nullableString(event.IPAddress),
		deviceInfo,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return nil
}

// BulkInsert appends multiple events with idempotency via ON CONFLICT DO NOTHING.
// Used by the replay worker when draining the spill queue.
func (r *EventRepository) BulkInsert(ctx context.Context, events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, event := range events {
		deviceInfo, err := marshalDeviceInfo(event.DeviceInfo)
		if err != nil {
			return fmt.Errorf("marshal device info: %w", err)
		}
		batch.Queue(insertEventQuery,
			event.ID,
			event.EventID,
			event.FileID,
			nullableString(event.FileName),
			nullableString(event.FileURL),
			event.Action.String(),
			event.Source,
			nullableString(event.UserID),
			nullableString(event.UserAgent),
			nullableString(event.IPAddress),
			deviceInfo,
			event.Timestamp,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

const selectEventColumns = `
	id, event_id, file_id, COALESCE(file_name, ''), COALESCE(file_url, ''),
	action, source, COALESCE(user_id, ''), COALESCE(user_agent, ''),
	COALESCE(ip_address, ''), device_info, tracked_at, created_at
`

// ListSince returns events with tracked_at >= since, oldest first.
// The (tracked_at, id) ordering is stable, which keeps downstream
// aggregation deterministic. userID narrows to one principal when set.
func (r *EventRepository) ListSince(ctx context.Context, since time.Time, userID string) ([]model.Event, error) {
	query := `
		SELECT ` + selectEventColumns + `
		FROM share_events
		WHERE tracked_at >= $1
		ORDER BY tracked_at, id
	`
	args := []any{since}
	if userID != "" {
		query = `
			SELECT ` + selectEventColumns + `
			FROM share_events
			WHERE tracked_at >= $1 AND user_id = $2
			ORDER BY tracked_at, id
		`
		args = append(args, userID)
	}

	rows, err := r.repo.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListFileSince returns one file's events with tracked_at >= since, oldest first.
func (r *EventRepository) ListFileSince(ctx context.Context, fileID string, since time.Time) ([]model.Event, error) {
	query := `
		SELECT ` + selectEventColumns + `
		FROM share_events
		WHERE file_id = $1 AND tracked_at >= $2
		ORDER BY tracked_at, id
	`

	rows, err := r.repo.pool.Query(ctx, query, fileID, since)
	if err != nil {
		return nil, fmt.Errorf("query file events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// CountersByFile recomputes per-file counters from the full event log.
// Feeds mirror reconciliation: the result is exactly what the mirror's
// counters should converge to.
func (r *EventRepository) CountersByFile(ctx context.Context) ([]model.FileSnapshot, error) {
	query := `
		SELECT
			file_id,
			COALESCE(MAX(file_name), ''),
			COALESCE(MAX(file_url), ''),
			COUNT(*) FILTER (WHERE action = 'copy_link'),
			COUNT(*) FILTER (WHERE action = 'download'),
			COUNT(*) FILTER (WHERE action = 'view'),
			MAX(tracked_at)
		FROM share_events
		GROUP BY file_id
		ORDER BY file_id
	`

	rows, err := r.repo.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query file counters: %w", err)
	}
	defer rows.Close()

	var snapshots []model.FileSnapshot
	for rows.Next() {
		var snap model.FileSnapshot
		if err := rows.Scan(
			&snap.ID,
			&snap.Name,
			&snap.URL,
			&snap.ShareCount,
			&snap.DownloadCount,
			&snap.ViewCount,
			&snap.LastAccessed,
		); err != nil {
			return nil, fmt.Errorf("scan file counters: %w", err)
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var event model.Event
		var action string
		var deviceInfo []byte
		if err := rows.Scan(
			&event.ID,
			&event.EventID,
			&event.FileID,
			&event.FileName,
			&event.FileURL,
			&action,
			&event.Source,
			&event.UserID,
			&event.UserAgent,
			&event.IPAddress,
			&deviceInfo,
			&event.Timestamp,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.Action = model.Action(action)
		if len(deviceInfo) > 0 {
			_ = json.Unmarshal(deviceInfo, &event.DeviceInfo)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// marshalDeviceInfo serializes device metadata for the JSONB column.
// Empty metadata becomes NULL rather than an empty object.
func marshalDeviceInfo(info map[string]string) (any, error) {
	if len(info) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// nullableString returns nil for empty strings.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
