package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/queue"
	"github.com/GregMSThompson/finance-workers/pkg/helpers"
	"github.com/GregMSThompson/finance-workers/pkg/logger"
)

// CalendarSyncer runs one reconcile pass for a calendar.
type CalendarSyncer interface {
	Sync(ctx context.Context, calendarID string, timeMin time.Time, timeMax *time.Time) (dto.CalendarSyncResult, error)
}

// CalendarSyncerFactory builds a syncer bound to one user's credentials.
type CalendarSyncerFactory func(ctx context.Context, userID string, tokens dto.GoogleTokens) (CalendarSyncer, error)

type calendarService struct {
	newSyncer CalendarSyncerFactory
	clockNow  func() time.Time
}

func NewCalendarService(factory CalendarSyncerFactory) *calendarService {
	return &calendarService{newSyncer: factory, clockNow: time.Now}
}

// Process is the queue handler for calendar:google-sync jobs.
func (s *calendarService) Process(ctx context.Context, job *queue.Job) (any, error) {
	var payload dto.CalendarSyncJob
	if err := job.Decode(&payload); err != nil {
		return nil, err
	}
	return s.Sync(ctx, payload)
}

func (s *calendarService) Sync(ctx context.Context, p dto.CalendarSyncJob) (dto.CalendarSyncResult, error) {
	calendarID := helpers.ValueOr(p.CalendarID, defaultCalendarID)
	log, ctx := logger.With(ctx, "user_id", p.UserID, "calendar_id", calendarID)

	timeMin := s.clockNow().Add(-defaultCalendarRange)
	if p.TimeMin != nil && *p.TimeMin != "" {
		t, err := time.Parse(time.RFC3339, *p.TimeMin)
		if err != nil {
			return dto.CalendarSyncResult{}, errs.NewFatalError(fmt.Sprintf("invalid timeMin %q", *p.TimeMin), err)
		}
		timeMin = t
	}

	syncer, err := s.newSyncer(ctx, p.UserID, dto.GoogleTokens{
		AccessToken:  p.AccessToken,
		RefreshToken: helpers.Value(p.RefreshToken),
	})
	if err != nil {
		log.Error("failed to create calendar syncer", "error", err)
		return dto.CalendarSyncResult{}, err
	}

	log.Info("google calendar sync started", "time_min", timeMin.Format(time.RFC3339))
	result, err := syncer.Sync(ctx, calendarID, timeMin, nil)
	log.Info("google calendar sync finished",
		"success", result.Success,
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"errors", len(result.Errors),
	)

	if !result.Success {
		msg := strings.Join(result.Errors, "; ")
		switch {
		case err != nil && msg == "":
			return result, fmt.Errorf("calendar sync failed: %w", err)
		case err != nil:
			return result, fmt.Errorf("calendar sync failed: %s: %w", msg, err)
		}
		return result, fmt.Errorf("calendar sync failed: %s", msg)
	}
	return result, nil
}
