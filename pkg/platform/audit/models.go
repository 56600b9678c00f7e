package audit

import (
	"time"

	id "eseva/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers actions on citizen applications and accounts.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers authentication failures and token revocation.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity such as OTP dispatch.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	UserID    id.UserID     `json:"user_id"`
	// Subject is the entity acted upon, e.g. an application id or a mobile number.
	Subject  string `json:"subject"`
	Action   string `json:"action"`
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
	// RequestID correlates the event with the HTTP request that caused it.
	RequestID string `json:"request_id,omitempty"`
	// ActorID is set when the actor differs from the affected user (staff actions).
	ActorID string `json:"actor_id,omitempty"`
}

type AuditEvent string

const (
	// Auth events
	EventOTPSent       AuditEvent = "otp_sent"
	EventOTPVerified   AuditEvent = "otp_verified"
	EventOTPRejected   AuditEvent = "otp_rejected"
	EventUserCreated   AuditEvent = "user_created"
	EventTokenIssued   AuditEvent = "token_issued"
	EventTokenRevoked  AuditEvent = "token_revoked"
	EventSMSDispatchKO AuditEvent = "sms_dispatch_failed"

	// Application events
	EventApplicationSubmitted     AuditEvent = "application_submitted"
	EventApplicationStatusUpdated AuditEvent = "application_status_updated"
	EventApplicationProcessed     AuditEvent = "application_processed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventUserCreated:              CategoryCompliance,
	EventApplicationSubmitted:     CategoryCompliance,
	EventApplicationStatusUpdated: CategoryCompliance,
	EventApplicationProcessed:     CategoryCompliance,

	EventOTPRejected:   CategorySecurity,
	EventTokenRevoked:  CategorySecurity,
	EventSMSDispatchKO: CategorySecurity,

	EventOTPSent:     CategoryOperations,
	EventOTPVerified: CategoryOperations,
	EventTokenIssued: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
