package models

import "time"

const EventSourceGoogleCalendar = "google_calendar"

// CalendarEvent is a locally stored calendar entry. Synced events are unique
// on (ExternalID, CalendarID).
type CalendarEvent struct {
	ID           string     `firestore:"id" json:"id"`
	UserID       string     `firestore:"userId" json:"userId"`
	CalendarID   string     `firestore:"calendarId" json:"calendarId"`
	ExternalID   string     `firestore:"externalId" json:"externalId"`
	Source       string     `firestore:"source" json:"source"`
	Title        string     `firestore:"title" json:"title"`
	Description  *string    `firestore:"description" json:"description,omitempty"`
	Date         time.Time  `firestore:"date" json:"date"`
	DateStart    *time.Time `firestore:"dateStart" json:"dateStart,omitempty"`
	DateEnd      *time.Time `firestore:"dateEnd" json:"dateEnd,omitempty"`
	LastSyncedAt time.Time  `firestore:"lastSyncedAt" json:"lastSyncedAt"`
	SyncError    *string    `firestore:"syncError" json:"syncError,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt" json:"updatedAt"`
	DeletedAt    *time.Time `firestore:"deletedAt" json:"deletedAt,omitempty"`
}
