package postgres

import (
	"context"
	"time"

	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/models"
)

type EventStore struct {
	db querier
}

func NewEventStore(db querier) *EventStore {
	return &EventStore{db: db}
}

// ListEvents returns live (not soft-deleted) events of one calendar and source.
func (s *EventStore) ListEvents(ctx context.Context, uid, calendarID, source string) ([]*models.CalendarEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, calendar_id, external_id, source, title, description, date, date_start, date_end,
			last_synced_at, sync_error, created_at, updated_at, deleted_at
		FROM events
		WHERE user_id = $1 AND calendar_id = $2 AND source = $3 AND deleted_at IS NULL`,
		uid, calendarID, source)
	if err != nil {
		return nil, errs.NewDatabaseError("list events", err)
	}
	defer rows.Close()

	events := []*models.CalendarEvent{}
	for rows.Next() {
		var ev models.CalendarEvent
		err := rows.Scan(&ev.ID, &ev.UserID, &ev.CalendarID, &ev.ExternalID, &ev.Source, &ev.Title, &ev.Description,
			&ev.Date, &ev.DateStart, &ev.DateEnd, &ev.LastSyncedAt, &ev.SyncError, &ev.CreatedAt, &ev.UpdatedAt, &ev.DeletedAt)
		if err != nil {
			return nil, errs.NewDatabaseError("decode event", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDatabaseError("list events", err)
	}
	return events, nil
}

// CreateEvent writes ev, replacing a row with the same id. Event ids are
// derived from the calendar and external id, so a replayed sync overwrites.
func (s *EventStore) CreateEvent(ctx context.Context, ev *models.CalendarEvent) error {
	if err := s.upsert(ctx, ev); err != nil {
		return errs.NewDatabaseError("create event", err)
	}
	return nil
}

func (s *EventStore) UpdateEvent(ctx context.Context, ev *models.CalendarEvent) error {
	if err := s.upsert(ctx, ev); err != nil {
		return errs.NewDatabaseError("update event", err)
	}
	return nil
}

func (s *EventStore) upsert(ctx context.Context, ev *models.CalendarEvent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO events (id, user_id, calendar_id, external_id, source, title, description, date, date_start, date_end,
			last_synced_at, sync_error, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			date = EXCLUDED.date,
			date_start = EXCLUDED.date_start,
			date_end = EXCLUDED.date_end,
			last_synced_at = EXCLUDED.last_synced_at,
			sync_error = EXCLUDED.sync_error,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at`,
		ev.ID, ev.UserID, ev.CalendarID, ev.ExternalID, ev.Source, ev.Title, ev.Description, ev.Date, ev.DateStart, ev.DateEnd,
		ev.LastSyncedAt, ev.SyncError, ev.CreatedAt, ev.UpdatedAt, ev.DeletedAt)
	return err
}

func (s *EventStore) SoftDeleteEvent(ctx context.Context, uid, id string, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE events SET deleted_at = $3, updated_at = $3 WHERE user_id = $1 AND id = $2`,
		uid, id, at)
	if err != nil {
		return errs.NewDatabaseError("delete event", err)
	}
	return nil
}
