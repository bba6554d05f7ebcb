package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/models"
)

type eventStore struct {
	client *firestore.Client
}

func NewEventStore(client *firestore.Client) *eventStore {
	return &eventStore{client: client}
}

func (s *eventStore) collection(uid string) *firestore.CollectionRef {
	return userDoc(s.client, uid).Collection("events")
}

// ListEvents returns live (not soft-deleted) events of one calendar and source.
func (s *eventStore) ListEvents(ctx context.Context, uid, calendarID, source string) ([]*models.CalendarEvent, error) {
	docs, err := s.collection(uid).
		Where("calendarId", "==", calendarID).
		Where("source", "==", source).
		Where("deletedAt", "==", nil).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("list events", err)
	}
	events := make([]*models.CalendarEvent, 0, len(docs))
	for _, d := range docs {
		var ev models.CalendarEvent
		if err := d.DataTo(&ev); err != nil {
			return nil, errs.NewDatabaseError("decode event", err)
		}
		ev.ID = d.Ref.ID
		events = append(events, &ev)
	}
	return events, nil
}

func (s *eventStore) CreateEvent(ctx context.Context, ev *models.CalendarEvent) error {
	if _, err := s.collection(ev.UserID).Doc(ev.ID).Set(ctx, ev); err != nil {
		return errs.NewDatabaseError("create event", err)
	}
	return nil
}

func (s *eventStore) UpdateEvent(ctx context.Context, ev *models.CalendarEvent) error {
	if _, err := s.collection(ev.UserID).Doc(ev.ID).Set(ctx, ev); err != nil {
		return errs.NewDatabaseError("update event", err)
	}
	return nil
}

func (s *eventStore) SoftDeleteEvent(ctx context.Context, uid, id string, at time.Time) error {
	_, err := s.collection(uid).Doc(id).Update(ctx, []firestore.Update{
		{Path: "deletedAt", Value: at},
		{Path: "updatedAt", Value: at},
	})
	if err != nil {
		return errs.NewDatabaseError("delete event", err)
	}
	return nil
}
