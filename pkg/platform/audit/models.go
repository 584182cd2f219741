package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers confirmed ledger writes: each one moved funds
	// or changed a published DID document.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers refused or throttled requests.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity such as resolution.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from registry operations after the ledger confirmed them.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	Action    string
	DID       string
	AppID     uint64
	Sender    string
	TxID      string
	Round     uint64
	Funding   uint64 // µAlgo paid to the application in the same group
	RequestID string
	Reason    string
}

type AuditEvent string

const (
	EventDIDCreated      AuditEvent = "did_created"
	EventDocumentUpload  AuditEvent = "document_uploaded"
	EventDocumentUpdate  AuditEvent = "document_updated"
	EventDocumentDeleted AuditEvent = "document_deleted"
	EventWriteRejected   AuditEvent = "write_rejected"

	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventDIDCreated:      CategoryCompliance,
	EventDocumentUpload:  CategoryCompliance,
	EventDocumentUpdate:  CategoryCompliance,
	EventDocumentDeleted: CategoryCompliance,

	EventWriteRejected:     CategorySecurity,
	EventRateLimitExceeded: CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByDID(ctx context.Context, did string) ([]Event, error)
}
