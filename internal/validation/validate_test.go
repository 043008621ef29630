package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestValidate_PartialCompanyRecord(t *testing.T) {
	_, err := Validate(models.PartialCompanyRecord{Name: "株式会社テスト"})
	assert.NoError(t, err)

	_, err = Validate(models.PartialCompanyRecord{CorporateNumber: "1234567890123"})
	assert.NoError(t, err)

	_, err = Validate(models.PartialCompanyRecord{Address: "東京都"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'Name' failed rule 'required_without=CorporateNumber'")
}
