package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/models"
	"github.com/GregMSThompson/finance-workers/pkg/logger"
)

const (
	defaultCalendarID    = "primary"
	defaultCalendarRange = 90 * 24 * time.Hour
	untitledEvent        = "Untitled Event"
	calendarDateLayout   = "2006-01-02"
)

type calendarClient interface {
	ListEvents(ctx context.Context, req dto.CalendarListRequest) (dto.CalendarEventPage, error)
}

type calendarEventStore interface {
	ListEvents(ctx context.Context, uid, calendarID, source string) ([]*models.CalendarEvent, error)
	CreateEvent(ctx context.Context, ev *models.CalendarEvent) error
	UpdateEvent(ctx context.Context, ev *models.CalendarEvent) error
	SoftDeleteEvent(ctx context.Context, uid, id string, at time.Time) error
}

type calendarSyncer struct {
	client   calendarClient
	events   calendarEventStore
	userID   string
	clockNow func() time.Time
}

// NewCalendarSyncer reconciles one user's Google calendar into local events.
func NewCalendarSyncer(client calendarClient, events calendarEventStore, userID string) *calendarSyncer {
	return &calendarSyncer{client: client, events: events, userID: userID, clockNow: time.Now}
}

// Sync fetches every event since timeMin and reconciles them with stored
// events of the calendar. Per-event conversion problems are collected in
// Errors; fetch or storage failures set Success=false and are also returned.
func (s *calendarSyncer) Sync(ctx context.Context, calendarID string, timeMin time.Time, timeMax *time.Time) (dto.CalendarSyncResult, error) {
	result := dto.CalendarSyncResult{Success: true, Errors: []string{}}
	log, ctx := logger.With(ctx, "user_id", s.userID, "calendar_id", calendarID)

	fail := func(err error) (dto.CalendarSyncResult, error) {
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("failed to sync google calendar: %v", err))
		log.Error("google calendar sync failed", "error", err)
		return result, err
	}

	remote, err := s.fetch(ctx, calendarID, timeMin, timeMax)
	if err != nil {
		return fail(err)
	}
	log.Info("fetched events from google calendar", "count", len(remote))

	existing, err := s.events.ListEvents(ctx, s.userID, calendarID, models.EventSourceGoogleCalendar)
	if err != nil {
		return fail(err)
	}
	byExternalID := make(map[string]*models.CalendarEvent, len(existing))
	for _, ev := range existing {
		byExternalID[ev.ExternalID] = ev
	}

	now := s.clockNow()
	seen := make(map[string]bool, len(remote))
	for _, g := range remote {
		if g.ID == "" {
			continue
		}
		seen[g.ID] = true

		ev, err := convertCalendarEvent(g, calendarID, s.userID, now)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to process event %s: %v", g.ID, err))
			continue
		}

		current, ok := byExternalID[g.ID]
		if !ok {
			ev.ID = calendarEventID(calendarID, g.ID)
			ev.CreatedAt = now
			if err := s.events.CreateEvent(ctx, ev); err != nil {
				return fail(err)
			}
			result.Created++
			continue
		}

		if g.Updated != nil && !current.UpdatedAt.IsZero() && !g.Updated.After(current.UpdatedAt) {
			continue
		}
		ev.ID = current.ID
		ev.CreatedAt = current.CreatedAt
		if err := s.events.UpdateEvent(ctx, ev); err != nil {
			return fail(err)
		}
		result.Updated++
	}

	for _, ev := range existing {
		if ev.ExternalID == "" || seen[ev.ExternalID] || ev.DeletedAt != nil {
			continue
		}
		if err := s.events.SoftDeleteEvent(ctx, s.userID, ev.ID, now); err != nil {
			return fail(err)
		}
		result.Deleted++
	}

	log.Info("google calendar sync completed",
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *calendarSyncer) fetch(ctx context.Context, calendarID string, timeMin time.Time, timeMax *time.Time) ([]dto.GoogleCalendarEvent, error) {
	var all []dto.GoogleCalendarEvent
	req := dto.CalendarListRequest{CalendarID: calendarID, TimeMin: timeMin, TimeMax: timeMax}
	for {
		page, err := s.client.ListEvents(ctx, req)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Events...)
		if page.NextPageToken == "" {
			return all, nil
		}
		req.PageToken = page.NextPageToken
	}
}

// calendarEventID is stable per (calendar, external id) so a re-run after a
// partial failure overwrites instead of duplicating.
func calendarEventID(calendarID, externalID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(calendarID+"/"+externalID)).String()
}

func convertCalendarEvent(g dto.GoogleCalendarEvent, calendarID, userID string, now time.Time) (*models.CalendarEvent, error) {
	if g.ID == "" {
		return nil, errors.New("google calendar event must have an id")
	}
	start, err := parseEventTime(g.Start)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	end, err := parseEventTime(g.End)
	if err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}

	title := g.Summary
	if title == "" {
		title = untitledEvent
	}
	ev := &models.CalendarEvent{
		UserID:       userID,
		CalendarID:   calendarID,
		ExternalID:   g.ID,
		Source:       models.EventSourceGoogleCalendar,
		Title:        title,
		Date:         now,
		DateStart:    start,
		DateEnd:      end,
		LastSyncedAt: now,
		UpdatedAt:    now,
	}
	if g.Description != "" {
		desc := g.Description
		ev.Description = &desc
	}
	if start != nil {
		ev.Date = *start
	}
	if g.Updated != nil {
		ev.UpdatedAt = *g.Updated
	}
	return ev, nil
}

// parseEventTime accepts RFC3339 date-times and all-day dates.
func parseEventTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(calendarDateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid event time %q", s)
	}
	return &t, nil
}
