package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	dErrors "eseva/pkg/domain-errors"
)

const maxApplicantNameLength = 200

type SubmitRequest struct {
	ServiceType      string
	ApplicantName    string
	ApplicantDetails map[string]any
	Files            []StagedFile
}

func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	r.ServiceType = strings.TrimSpace(r.ServiceType)
	r.ApplicantName = strings.TrimSpace(r.ApplicantName)
	if r.ServiceType == "" {
		return dErrors.New(dErrors.CodeValidation, "service_type is required")
	}
	if r.ApplicantName == "" {
		return dErrors.New(dErrors.CodeValidation, "applicant_name is required")
	}
	if utf8.RuneCountInString(r.ApplicantName) > maxApplicantNameLength {
		return dErrors.New(dErrors.CodeValidation, "applicant_name must be at most 200 characters")
	}
	if r.ApplicantDetails == nil {
		r.ApplicantDetails = map[string]any{}
	}
	return nil
}

// FieldNames returns the document field names of the staged files.
func (r *SubmitRequest) FieldNames() []string {
	names := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		names = append(names, f.FieldName)
	}
	return names
}

// ParseApplicantDetails decodes the applicant_details form value. An empty
// value yields an empty object; anything other than a JSON object is rejected.
func ParseApplicantDetails(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var details map[string]any
	if err := dec.Decode(&details); err != nil || details == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "applicant_details must be a JSON object")
	}
	if dec.More() {
		return nil, dErrors.New(dErrors.CodeValidation, "applicant_details must be a JSON object")
	}
	return details, nil
}

type UpdateStatusRequest struct {
	Status  string `json:"status"`
	Remarks string `json:"remarks"`

	parsed Status
}

func (r *UpdateStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Remarks = strings.TrimSpace(r.Remarks)
	if strings.TrimSpace(r.Status) == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	st, err := ParseStatus(r.Status)
	if err != nil {
		return err
	}
	r.parsed = st
	r.Status = string(st)
	return nil
}

// ParsedStatus is the canonical status after Validate.
func (r *UpdateStatusRequest) ParsedStatus() Status { return r.parsed }

type ProcessRequest struct {
	Remarks string `json:"remarks"`
}

func (r *ProcessRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Remarks = strings.TrimSpace(r.Remarks)
	return nil
}
