package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// EventKind separates notification deliveries from audit records in the outbox.
type EventKind string

const (
	EventKindNotification EventKind = "NOTIFICATION"
	EventKindAudit        EventKind = "AUDIT"
)

// NotificationKind identifies the message template shown to the recipient.
type NotificationKind string

const (
	NotifySlotPosted          NotificationKind = "INTERVIEW_SLOT_POSTED"
	NotifySlotConfirmed       NotificationKind = "INTERVIEW_SLOT_CONFIRMED"
	NotifySlotCompleted       NotificationKind = "INTERVIEW_COMPLETED"
	NotifySlotCancelled       NotificationKind = "INTERVIEW_SLOT_CANCELLED"
	NotifyAvailabilitySubmit  NotificationKind = "AVAILABILITY_SUBMITTED"
	NotifyAvailabilityAccept  NotificationKind = "AVAILABILITY_ACCEPTED"
	NotifyAvailabilityDecline NotificationKind = "AVAILABILITY_DECLINED"
	NotifyGateOutcome         NotificationKind = "INTERVIEW_OUTCOME"
	NotifyRecommendation      NotificationKind = "RECOMMENDATION_ADDED"
)

// InterviewEvent is an outbox row written in the same transaction as the mutation.
// A notification goes to RecipientID, or to every reviewer of ChapterID except ActorID when no recipient is set.
type InterviewEvent struct {
	ID               string           `db:"id" json:"id"`
	Kind             EventKind        `db:"kind" json:"kind"`
	Domain           InterviewDomain  `db:"domain" json:"domain"`
	SubjectID        string           `db:"subject_id" json:"subject_id"`
	RecipientID      *string          `db:"recipient_id" json:"recipient_id,omitempty"`
	ChapterID        *string          `db:"chapter_id" json:"chapter_id,omitempty"`
	ActorID          *string          `db:"actor_id" json:"actor_id,omitempty"`
	NotificationKind NotificationKind `db:"notification_kind" json:"notification_kind,omitempty"`
	Title            string           `db:"title" json:"title"`
	Body             string           `db:"body" json:"body"`
	Link             string           `db:"link" json:"link"`
	Payload          types.JSONText   `db:"payload" json:"payload,omitempty"`
	Attempts         int              `db:"attempts" json:"attempts"`
	LastError        *string          `db:"last_error" json:"last_error,omitempty"`
	DispatchedAt     *time.Time       `db:"dispatched_at" json:"dispatched_at,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// Notification is an in-app message delivered to one user.
type Notification struct {
	ID        string     `db:"id" json:"id"`
	EventID   *string    `db:"event_id" json:"event_id,omitempty"`
	UserID    string     `db:"user_id" json:"user_id"`
	Kind      string     `db:"kind" json:"kind"`
	Title     string     `db:"title" json:"title"`
	Body      string     `db:"body" json:"body"`
	Link      string     `db:"link" json:"link"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
