// Package requirements holds the requirement matrix: for each service type,
// the ordered list of document field names an application must carry.
package requirements

import (
	"slices"
	"sort"

	"eseva/pkg/platform/sentinel"
)

// ServiceType names an e-seva service category.
type ServiceType string

const (
	BirthCertificate     ServiceType = "Birth_Certificate"
	DeathCertificate     ServiceType = "Death_Certificate"
	IncomeCertificate    ServiceType = "Income_Certificate"
	CasteCertificate     ServiceType = "Caste_Certificate"
	ResidenceCertificate ServiceType = "Residence_Certificate"
	MarriageCertificate  ServiceType = "Marriage_Certificate"
)

var defaultMatrix = map[ServiceType][]string{
	BirthCertificate:     {"hospital_birth_report", "parents_aadhar_card", "address_proof"},
	DeathCertificate:     {"hospital_death_report", "deceased_aadhar_card", "applicant_aadhar_card", "address_proof"},
	IncomeCertificate:    {"aadhar_card", "salary_slip_or_income_proof", "ration_card", "address_proof"},
	CasteCertificate:     {"aadhar_card", "school_leaving_certificate", "parent_caste_certificate", "ration_card"},
	ResidenceCertificate: {"aadhar_card", "electricity_bill", "ration_card", "rent_agreement_or_property_tax"},
	MarriageCertificate:  {"bride_aadhar_card", "groom_aadhar_card", "marriage_invitation_card", "wedding_photograph", "witness_aadhar_cards"},
}

// Registry is an immutable lookup table. Callers always receive copies.
type Registry struct {
	matrix map[ServiceType][]string
}

// NewRegistry returns the registry of known service types.
func NewRegistry() *Registry {
	return NewRegistryFrom(defaultMatrix)
}

// NewRegistryFrom builds a registry from a custom matrix; the input is copied.
func NewRegistryFrom(matrix map[ServiceType][]string) *Registry {
	m := make(map[ServiceType][]string, len(matrix))
	for k, v := range matrix {
		m[k] = slices.Clone(v)
	}
	return &Registry{matrix: m}
}

// RequiredDocuments returns the ordered document list for serviceType, or
// sentinel.ErrNotFound when the type is unknown.
func (r *Registry) RequiredDocuments(serviceType string) ([]string, error) {
	docs, ok := r.matrix[ServiceType(serviceType)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return slices.Clone(docs), nil
}

// Has reports whether serviceType is known.
func (r *Registry) Has(serviceType string) bool {
	_, ok := r.matrix[ServiceType(serviceType)]
	return ok
}

// All returns a deep copy of the whole matrix keyed by service type.
func (r *Registry) All() map[string][]string {
	out := make(map[string][]string, len(r.matrix))
	for k, v := range r.matrix {
		out[string(k)] = slices.Clone(v)
	}
	return out
}

// ServiceTypes lists known service types in lexical order.
func (r *Registry) ServiceTypes() []string {
	out := make([]string, 0, len(r.matrix))
	for k := range r.matrix {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// Missing returns the required documents for serviceType that are absent from
// provided, preserving registry order.
func (r *Registry) Missing(serviceType string, provided []string) ([]string, error) {
	required, err := r.RequiredDocuments(serviceType)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(provided))
	for _, name := range provided {
		have[name] = struct{}{}
	}
	var missing []string
	for _, doc := range required {
		if _, ok := have[doc]; !ok {
			missing = append(missing, doc)
		}
	}
	return missing, nil
}
