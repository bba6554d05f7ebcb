package dto

import "time"

type CalendarSyncJob struct {
	UserID       string  `json:"userId" validate:"required"`
	AccessToken  string  `json:"accessToken" validate:"required"`
	RefreshToken *string `json:"refreshToken,omitempty"`
	CalendarID   *string `json:"calendarId,omitempty"`
	TimeMin      *string `json:"timeMin,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type CalendarSyncResult struct {
	Success bool     `json:"success"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted"`
	Errors  []string `json:"errors"`
}

// GoogleCalendarEvent is the subset of a Google Calendar event the sync uses.
type GoogleCalendarEvent struct {
	ID          string
	Summary     string
	Description string
	Start       string // RFC3339 date-time or YYYY-MM-DD for all-day events
	End         string
	Updated     *time.Time
}

type CalendarListRequest struct {
	CalendarID string
	TimeMin    time.Time
	TimeMax    *time.Time
	PageToken  string
}

type CalendarEventPage struct {
	Events        []GoogleCalendarEvent
	NextPageToken string
}

// GoogleTokens are the OAuth2 credentials a calendar sync runs with.
type GoogleTokens struct {
	AccessToken  string
	RefreshToken string
}
