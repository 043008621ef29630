package index

import (
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Keys are the normalized comparison keys of one record. An empty key means
// the raw value was absent or rejected by its normalizer.
type Keys struct {
	CorporateNumber string `json:"corporateNumber,omitempty"`
	Name            string `json:"name,omitempty"`
	Core            string `json:"core,omitempty"`
	Address         string `json:"address,omitempty"`
	Prefecture      string `json:"prefecture,omitempty"`
	PostalCode      string `json:"postalCode,omitempty"`
	Representative  string `json:"representative,omitempty"`
	// NameIsNoise is set when the name looks like a title, a list or a date.
	NameIsNoise bool `json:"nameIsNoise"`
}

// KeysOf computes the keys of a stored record.
func KeysOf(rec *models.CompanyRecord) Keys {
	return compute(rec.Name, rec.Address, rec.PostalCode, rec.CorporateNumber, rec.RepresentativeName)
}

// KeysOfPartial computes the keys of an incoming record.
func KeysOfPartial(p *models.PartialCompanyRecord) Keys {
	return compute(p.Name, p.Address, p.PostalCode, p.CorporateNumber, p.RepresentativeName)
}

func compute(name, address, postal, corp, rep string) Keys {
	k := Keys{
		CorporateNumber: normalizers.CorporateNumber(corp),
		Name:            normalizers.CompanyName(name),
		Core:            normalizers.CompanyNameCore(name),
		Address:         normalizers.Address(address),
		Prefecture:      normalizers.Prefecture(address),
		PostalCode:      normalizers.PostalCode(postal),
		Representative:  normalizers.PersonName(rep),
		NameIsNoise:     normalizers.IsLikelyPersonNameOrNoise(name),
	}
	return k
}

func pair(a, b string) string {
	if a == "" || b == "" {
		return ""
	}
	return a + "\x00" + b
}
