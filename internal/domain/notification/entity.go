package notification

import (
	"context"
	"time"
)

// Kind tags what a notification is about.
type Kind string

const (
	KindRequestCreated     Kind = "request_created"
	KindRequestApproved    Kind = "request_approved"
	KindRequestDenied      Kind = "request_denied"
	KindRequestResubmitted Kind = "request_resubmitted"
	KindCheckedIn          Kind = "checked_in"
	KindCheckedOut         Kind = "checked_out"
)

type Notification struct {
	ID          string
	RecipientID string
	RequestID   *string
	Kind        Kind
	Subject     string
	IsRead      bool
	CreatedAt   time.Time
}

// Sender is the narrow collaborator contract the engine calls after a
// transaction commits. Implementations must be best-effort and must
// never block the caller on delivery.
type Sender interface {
	SendRequestNotification(ctx context.Context, recipientID, requestID string, kind Kind, subject string)
}

type Repository interface {
	CreateBatch(ctx context.Context, notifications []*Notification) error
	ListForRecipient(ctx context.Context, recipientID string, limit int) ([]Notification, error)
}
