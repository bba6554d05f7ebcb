package gcal

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/GregMSThompson/finance-workers/internal/errs"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		fatal     bool
		transient bool
	}{
		{"unauthorized", &googleapi.Error{Code: 401, Message: "invalid credentials"}, true, false},
		{"missing calendar", &googleapi.Error{Code: 404}, true, false},
		{"server error", &googleapi.Error{Code: 503}, false, true},
		{"throttled", &googleapi.Error{Code: 429}, false, true},
		{"quota 403", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}, false, true},
		{"forbidden", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "forbidden"}}}, false, false},
		{"token refresh", &oauth2.RetrieveError{Body: []byte(`{"error":"invalid_grant"}`)}, true, false},
		{"transport", errors.New("connection reset"), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("events.list", tc.err)
			if errs.IsFatal(err) != tc.fatal || errs.IsTransient(err) != tc.transient {
				t.Fatalf("fatal=%v transient=%v, want %v/%v (%v)", errs.IsFatal(err), errs.IsTransient(err), tc.fatal, tc.transient, err)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("classified error does not wrap the original: %v", err)
			}
		})
	}
}

func TestConvertEvent(t *testing.T) {
	ev := convertEvent(&calendar.Event{
		Id:      "e1",
		Summary: "Standup",
		Start:   &calendar.EventDateTime{DateTime: "2024-05-01T09:00:00Z"},
		End:     &calendar.EventDateTime{DateTime: "2024-05-01T09:15:00Z"},
		Updated: "2024-04-30T12:00:00Z",
	})
	if ev.ID != "e1" || ev.Start != "2024-05-01T09:00:00Z" || ev.End != "2024-05-01T09:15:00Z" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Updated == nil || !ev.Updated.Equal(time.Date(2024, 4, 30, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected updated %v", ev.Updated)
	}

	allDay := convertEvent(&calendar.Event{Id: "e2", Start: &calendar.EventDateTime{Date: "2024-05-02"}})
	if allDay.Start != "2024-05-02" || allDay.End != "" || allDay.Updated != nil {
		t.Fatalf("unexpected all-day event %+v", allDay)
	}
}
