package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/errs"
)

const (
	serviceName  = "google-calendar"
	listPageSize = 2500
)

// Factory builds per-user calendar clients from the app's OAuth client.
type Factory struct {
	oauth *oauth2.Config
}

func NewFactory(clientID, clientSecret, redirectURI string) *Factory {
	return &Factory{oauth: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarReadonlyScope},
	}}
}

// Client refreshes the access token with the refresh token when one is set.
func (f *Factory) Client(ctx context.Context, tokens dto.GoogleTokens) (*Adapter, error) {
	tok := &oauth2.Token{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}
	svc, err := calendar.NewService(ctx, option.WithTokenSource(f.oauth.TokenSource(ctx, tok)))
	if err != nil {
		return nil, errs.NewExternalServiceError(serviceName, false, "", fmt.Errorf("create calendar service: %w", err))
	}
	return &Adapter{svc: svc}, nil
}

type Adapter struct {
	svc *calendar.Service
}

// ListEvents fetches one page of expanded (single) events ordered by start.
func (a *Adapter) ListEvents(ctx context.Context, req dto.CalendarListRequest) (dto.CalendarEventPage, error) {
	call := a.svc.Events.List(req.CalendarID).
		TimeMin(req.TimeMin.Format(time.RFC3339)).
		MaxResults(listPageSize).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)
	if req.TimeMax != nil {
		call = call.TimeMax(req.TimeMax.Format(time.RFC3339))
	}
	if req.PageToken != "" {
		call = call.PageToken(req.PageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return dto.CalendarEventPage{}, classify("events.list", err)
	}

	page := dto.CalendarEventPage{
		Events:        make([]dto.GoogleCalendarEvent, 0, len(resp.Items)),
		NextPageToken: resp.NextPageToken,
	}
	for _, item := range resp.Items {
		page.Events = append(page.Events, convertEvent(item))
	}
	return page, nil
}

func convertEvent(item *calendar.Event) dto.GoogleCalendarEvent {
	ev := dto.GoogleCalendarEvent{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Start:       eventTime(item.Start),
		End:         eventTime(item.End),
	}
	if item.Updated != "" {
		if t, err := time.Parse(time.RFC3339, item.Updated); err == nil {
			ev.Updated = &t
		}
	}
	return ev
}

func eventTime(t *calendar.EventDateTime) string {
	if t == nil {
		return ""
	}
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}

// classify maps Google API failures: auth and permission problems need the
// user to reconnect, throttling and server errors are retried.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return errs.NewFatalError("google token refresh failed", errs.NewExternalServiceError(serviceName, false, string(rerr.Body), fmt.Errorf("%s: %w", op, err)))
		}
		return errs.NewExternalServiceError(serviceName, true, "", fmt.Errorf("%s: %w", op, err))
	}

	detail := gerr.Message
	wrapped := fmt.Errorf("%s: %w", op, err)
	switch {
	case gerr.Code == http.StatusUnauthorized:
		return errs.NewFatalError("google calendar credentials rejected", errs.NewExternalServiceError(serviceName, false, detail, wrapped))
	case gerr.Code == http.StatusNotFound:
		return errs.NewFatalError("calendar not found", errs.NewExternalServiceError(serviceName, false, detail, wrapped))
	case gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError:
		return errs.NewExternalServiceError(serviceName, true, detail, wrapped)
	case gerr.Code == http.StatusForbidden && rateLimited(gerr):
		return errs.NewExternalServiceError(serviceName, true, detail, wrapped)
	default:
		return errs.NewExternalServiceError(serviceName, false, detail, wrapped)
	}
}

func rateLimited(gerr *googleapi.Error) bool {
	for _, e := range gerr.Errors {
		if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}
