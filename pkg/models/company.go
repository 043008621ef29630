package models

import (
	"strings"
	"time"
)

// Identity field names. They share the namespace of CompanyRecord.Fields so
// merge rules can treat every attribute uniformly.
const (
	FieldName               = "name"
	FieldAddress            = "address"
	FieldPostalCode         = "postalCode"
	FieldCorporateNumber    = "corporateNumber"
	FieldRepresentativeName = "representativeName"
	FieldListing            = "listing"
)

// IdentityFields lists the columns stored outside the open fields map.
var IdentityFields = []string{
	FieldName,
	FieldAddress,
	FieldPostalCode,
	FieldCorporateNumber,
	FieldRepresentativeName,
}

// CompanyRecord is a stored company. Raw values are kept as received;
// normalization happens only when computing comparison keys.
type CompanyRecord struct {
	ID                 string         `json:"id" db:"id"`
	CorporateNumber    string         `json:"corporateNumber,omitempty" db:"corporate_number"`
	Name               string         `json:"name" db:"name"`
	Address            string         `json:"address,omitempty" db:"address"`
	PostalCode         string         `json:"postalCode,omitempty" db:"postal_code"`
	RepresentativeName string         `json:"representativeName,omitempty" db:"representative_name"`
	Fields             map[string]any `json:"fields,omitempty" db:"-"`
	CreatedAt          time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time      `json:"updatedAt" db:"updated_at"`
}

// PartialCompanyRecord is what an importer hands the engine after flattening
// a vendor row.
type PartialCompanyRecord struct {
	Name               string         `json:"name" validate:"required_without=CorporateNumber,max=512"`
	Address            string         `json:"address,omitempty" validate:"max=1024"`
	PostalCode         string         `json:"postalCode,omitempty" validate:"max=32"`
	CorporateNumber    string         `json:"corporateNumber,omitempty" validate:"max=64"`
	RepresentativeName string         `json:"representativeName,omitempty" validate:"max=256"`
	Fields             map[string]any `json:"fields,omitempty"`
}

// Get returns the value of an identity column or an auxiliary field.
func (r *CompanyRecord) Get(field string) any {
	switch field {
	case FieldName:
		return r.Name
	case FieldAddress:
		return r.Address
	case FieldPostalCode:
		return r.PostalCode
	case FieldCorporateNumber:
		return r.CorporateNumber
	case FieldRepresentativeName:
		return r.RepresentativeName
	}
	if r.Fields == nil {
		return nil
	}
	return r.Fields[field]
}

// Set assigns an identity column or an auxiliary field. Non-string values
// for identity columns are ignored.
func (r *CompanyRecord) Set(field string, value any) {
	if isIdentity(field) {
		s, _ := value.(string)
		switch field {
		case FieldName:
			r.Name = s
		case FieldAddress:
			r.Address = s
		case FieldPostalCode:
			r.PostalCode = s
		case FieldCorporateNumber:
			r.CorporateNumber = s
		case FieldRepresentativeName:
			r.RepresentativeName = s
		}
		return
	}
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[field] = value
}

// Values flattens identity columns and auxiliary fields into one map.
// Empty identity columns are omitted.
func (r *CompanyRecord) Values() map[string]any {
	out := make(map[string]any, len(r.Fields)+len(IdentityFields))
	for k, v := range r.Fields {
		out[k] = v
	}
	for _, f := range IdentityFields {
		if s, _ := r.Get(f).(string); strings.TrimSpace(s) != "" {
			out[f] = s
		}
	}
	return out
}

// Clone returns a copy whose Fields map can be mutated independently.
func (r *CompanyRecord) Clone() *CompanyRecord {
	c := *r
	if r.Fields != nil {
		c.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			c.Fields[k] = v
		}
	}
	return &c
}

// Values flattens the partial record the same way CompanyRecord.Values does.
func (p *PartialCompanyRecord) Values() map[string]any {
	rec := p.AsRecord("")
	return rec.Values()
}

// AsRecord builds a CompanyRecord carrying the partial's data under id.
func (p *PartialCompanyRecord) AsRecord(id string) *CompanyRecord {
	rec := &CompanyRecord{
		ID:                 id,
		Name:               p.Name,
		Address:            p.Address,
		PostalCode:         p.PostalCode,
		CorporateNumber:    p.CorporateNumber,
		RepresentativeName: p.RepresentativeName,
	}
	if len(p.Fields) > 0 {
		rec.Fields = make(map[string]any, len(p.Fields))
		for k, v := range p.Fields {
			rec.Fields[k] = v
		}
	}
	return rec
}

func isIdentity(field string) bool {
	for _, f := range IdentityFields {
		if f == field {
			return true
		}
	}
	return false
}
