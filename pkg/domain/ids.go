// Package domain holds identifier types shared across modules. Each id is a
// distinct named UUID type so the compiler rejects cross-type assignment.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "eseva/pkg/domain-errors"
)

type (
	UserID         uuid.UUID
	LoginSessionID uuid.UUID
	ApplicationID  uuid.UUID
	DocumentID     uuid.UUID
)

func NewUserID() UserID                 { return UserID(uuid.New()) }
func NewLoginSessionID() LoginSessionID { return LoginSessionID(uuid.New()) }
func NewApplicationID() ApplicationID   { return ApplicationID(uuid.New()) }
func NewDocumentID() DocumentID         { return DocumentID(uuid.New()) }

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id LoginSessionID) String() string { return uuid.UUID(id).String() }
func (id ApplicationID) String() string  { return uuid.UUID(id).String() }
func (id DocumentID) String() string     { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id ApplicationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id DocumentID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application id")
	return ApplicationID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return u, nil
}
