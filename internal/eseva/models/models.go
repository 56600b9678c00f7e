package models

import (
	"strings"
	"time"

	authmodels "eseva/internal/auth/models"
	id "eseva/pkg/domain"
	dErrors "eseva/pkg/domain-errors"
)

// Status is the application lifecycle state. Any authorized caller may move
// an application to any status; no prior-state check is made.
type Status string

const (
	StatusSubmitted Status = "Submitted"
	StatusProcessed Status = "Processed"
	StatusApproved  Status = "Approved"
	StatusRejected  Status = "Rejected"
)

var statuses = []Status{StatusSubmitted, StatusProcessed, StatusApproved, StatusRejected}

// ParseStatus accepts a status name case-insensitively and returns its canonical form.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	for _, st := range statuses {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, "status must be one of Submitted, Processed, Approved, Rejected")
}

func (s Status) String() string { return string(s) }

// Application is a citizen's request for a government service.
// SubmitterName, AdminName and AgentName are display enrichment for staff
// listings and hold the respective users' mobile numbers.
type Application struct {
	ID               id.ApplicationID `json:"id"`
	UserID           id.UserID        `json:"userId"`
	ServiceType      string           `json:"serviceType"`
	ApplicantName    string           `json:"applicantName"`
	ApplicantDetails map[string]any   `json:"applicantDetails"`
	Status           Status           `json:"status"`
	AdminID          *id.UserID       `json:"adminId,omitempty"`
	AdminRemarks     *string          `json:"adminRemarks,omitempty"`
	AgentID          *id.UserID       `json:"agentId,omitempty"`
	AgentRemarks     *string          `json:"agentRemarks,omitempty"`
	ProcessedAt      *time.Time       `json:"processedAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`

	SubmitterName string `json:"submitterName,omitempty"`
	AdminName     string `json:"adminName,omitempty"`
	AgentName     string `json:"agentName,omitempty"`
}

// Document is one uploaded file attached to an application. Append-only.
type Document struct {
	ID            id.DocumentID    `json:"id"`
	ApplicationID id.ApplicationID `json:"applicationId"`
	Name          string           `json:"name"`
	StoragePath   string           `json:"storagePath"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// ApplicationDetails is an application with its attached documents.
type ApplicationDetails struct {
	*Application
	Documents []*Document `json:"documents"`
}

// StagedFile is an upload already written to durable storage, awaiting
// association with an application.
type StagedFile struct {
	FieldName    string
	OriginalName string
	Path         string
	Size         int64
}

// Actor is the authenticated caller.
type Actor struct {
	UserID id.UserID
	Mobile string
	Role   authmodels.Role
}

func (a Actor) IsStaff() bool { return a.Role.IsStaff() }
func (a Actor) IsAdmin() bool { return a.Role == authmodels.RoleAdmin }

// UserIDs returns every distinct user referenced by the applications.
func UserIDs(apps []*Application) []id.UserID {
	seen := make(map[id.UserID]struct{})
	var out []id.UserID
	add := func(u id.UserID) {
		if _, ok := seen[u]; ok || u.IsNil() {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	for _, app := range apps {
		add(app.UserID)
		if app.AdminID != nil {
			add(*app.AdminID)
		}
		if app.AgentID != nil {
			add(*app.AgentID)
		}
	}
	return out
}
