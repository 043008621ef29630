package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/index"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newEngine() *Engine {
	return NewEngine(DefaultPolicy())
}

func TestMatch_CorporateNumber(t *testing.T) {
	idx := index.Build([]*models.CompanyRecord{
		{ID: "existing", Name: "テスト株式会社", CorporateNumber: "1234567890123"},
		{ID: "other", Name: "株式会社テスト"},
	})

	d := newEngine().Match(&models.PartialCompanyRecord{
		Name:            "株式会社テスト",
		CorporateNumber: "1234567890123",
	}, idx)

	require.True(t, d.IsMatch())
	assert.Equal(t, "existing", d.Candidate.RecordID)
	assert.Equal(t, 100, d.Candidate.Score)
	assert.Equal(t, models.MatchedByCorporateNumber, d.Candidate.MatchedBy)
	assert.False(t, d.LowConfidence)
}

func TestMatch_SharedNameWithDifferentAddressesIsNoMatch(t *testing.T) {
	idx := index.Build([]*models.CompanyRecord{
		{ID: "osaka", Name: "テスト商事", Address: "大阪府大阪市北区2-2-2"},
		{ID: "fukuoka", Name: "テスト商事", Address: "福岡県福岡市博多区3-3-3"},
	})

	d := newEngine().Match(&models.PartialCompanyRecord{
		Name:    "テスト商事",
		Address: "東京都千代田区1-1-1",
	}, idx)

	assert.Equal(t, models.OutcomeNoMatch, d.Outcome)
	assert.Nil(t, d.Candidate)
}

func TestMatch_SharedNameWithoutLocationIsAmbiguous(t *testing.T) {
	idx := index.Build([]*models.CompanyRecord{
		{ID: "osaka", Name: "テスト商事", Address: "大阪府大阪市北区2-2-2"},
		{ID: "fukuoka", Name: "テスト商事", Address: "福岡県福岡市博多区3-3-3"},
	})

	d := newEngine().Match(&models.PartialCompanyRecord{Name: "テスト商事"}, idx)

	assert.Equal(t, models.OutcomeAmbiguous, d.Outcome)
	assert.Equal(t, []string{"fukuoka", "osaka"}, d.Candidates)
}

func TestMatch_NameAndPostal(t *testing.T) {
	idx := index.Build([]*models.CompanyRecord{
		{ID: "a", Name: "株式会社テスト", PostalCode: "100-0001", Address: "東京都千代田区1-1-1"},
		{ID: "b", Name: "株式会社テスト", PostalCode: "530-0001", Address: "大阪府大阪市北区1-1-1"},
	})

	d := newEngine().Match(&models.PartialCompanyRecord{Name: "(株)テスト", PostalCode: "〒100-0001"}, idx)

	require.True(t, d.IsMatch())
	assert.Equal(t, "a", d.Candidate.RecordID)
	assert.Equal(t, 100, d.Candidate.Score)
	assert.Equal(t, models.MatchedByNameAndPostal, d.Candidate.MatchedBy)
}

func TestMatch_NameAndAddress(t *testing.T) {
	idx := index.Build([]*models.CompanyRecord{
		{ID: "a", Name: "株式会社テスト", Address: "東京都千代田区1-1-1"},
		{ID: "b", Name: "株式会社テスト", Address: "大阪府大阪市北区1-1-1"},
	})

	d := newEngine().Match(&models.PartialCompanyRecord{Name: "株式会社 テスト", Address: "とうきょうと千代田区１ー１ー１"}, idx)

	require.True(t, d.IsMatch())
	assert.Equal(t, "a", d.Candidate.RecordID)
	assert.Equal(t, 90, d.Candidate.Score)
	assert.Equal(t, models.MatchedByNameAndAddress, d.Candidate.MatchedBy)
	assert.False(t, d.LowConfidence)
}

func TestMatch_PartialAddress(t *testing.T) {
	idx := index.Build([]*models.CompanyRecord{
		{ID: "a", Name: "株式会社テスト", Address: "東京都千代田区丸の内1-1-1"},
		{ID: "b", Name: "株式会社テスト", Address: "大阪府大阪市北区梅田2-2-2"},
	})

	t.Run("address without prefecture is full overlap", func(t *testing.T) {
		d := newEngine().Match(&models.PartialCompanyRecord{Name: "株式会社テスト", Address: "千代田区丸の内1-1-1"}, idx)

		require.True(t, d.IsMatch())
		assert.Equal(t, "a", d.Candidate.RecordID)
		assert.Equal(t, 75, d.Candidate.Score)
		assert.Equal(t, models.MatchedByNameHighPrecisionAddressPartial, d.Candidate.MatchedBy)
		assert.False(t, d.LowConfidence)
	})

	t.Run("shallower containment is low confidence", func(t *testing.T) {
		d := newEngine().Match(&models.PartialCompanyRecord{Name: "株式会社テスト", Address: "東京都千代田区丸の内1-1-1ビル5F"}, idx)

		require.True(t, d.IsMatch())
		assert.Equal(t, "a", d.Candidate.RecordID)
		assert.Equal(t, 69, d.Candidate.Score)
		assert.True(t, d.LowConfidence)
	})
}

func TestMatch_PartialAddressWithCappedIndex(t *testing.T) {
	records := []*models.CompanyRecord{
		{ID: "a", Name: "テスト商事", Address: "大阪府大阪市北区梅田2-2-2"},
		{ID: "b", Name: "テスト商事", Address: "福岡県福岡市博多区博多駅前3-3-3"},
		{ID: "c", Name: "テスト商事", Address: "東京都千代田区丸の内1-1-1"},
	}
	incoming := &models.PartialCompanyRecord{Name: "テスト商事", Address: "東京都千代田区丸の内1-1-1ビル5F"}

	for name, idx := range map[string]*index.Index{
		"unbounded": index.Build(records),
		"capped":    index.Build(records, index.WithBucketCap(2)),
	} {
		t.Run(name, func(t *testing.T) {
			d := newEngine().Match(incoming, idx)

			require.True(t, d.IsMatch(), d.Reason)
			assert.Equal(t, "c", d.Candidate.RecordID)
			assert.Equal(t, 69, d.Candidate.Score)
			assert.Equal(t, models.MatchedByNameHighPrecisionAddressPartial, d.Candidate.MatchedBy)
		})
	}
}

func TestMatch_HighPrecisionCore(t *testing.T) {
	idx := index.Build([]*models.CompanyRecord{
		{ID: "r1", Name: "テスト工業株式会社", Address: "大阪府大阪市北区1-1", RepresentativeName: "山田太郎"},
		{ID: "r2", Name: "別会社", Address: "大阪府大阪市北区1-1"},
	})

	t.Run("address and representative", func(t *testing.T) {
		d := newEngine().Match(&models.PartialCompanyRecord{
			Name:               "テスト工業",
			Address:            "大阪府大阪市北区1-1",
			RepresentativeName: "代表取締役 山田 太郎",
		}, idx)

		require.True(t, d.IsMatch())
		assert.Equal(t, "r1", d.Candidate.RecordID)
		assert.Equal(t, 80, d.Candidate.Score)
		assert.False(t, d.LowConfidence)
	})

	t.Run("containment with address only is low confidence", func(t *testing.T) {
		d := newEngine().Match(&models.PartialCompanyRecord{
			Name:    "テスト工業所",
			Address: "大阪府大阪市北区1-1",
		}, idx)

		require.True(t, d.IsMatch())
		assert.Equal(t, "r1", d.Candidate.RecordID)
		assert.Equal(t, 50, d.Candidate.Score)
		assert.True(t, d.LowConfidence)
	})

	t.Run("representative alone is below threshold", func(t *testing.T) {
		d := newEngine().Match(&models.PartialCompanyRecord{
			Name:               "テスト工業",
			RepresentativeName: "山田太郎",
		}, idx)

		assert.Equal(t, models.OutcomeNoMatch, d.Outcome)
	})
}

func TestMatch_UniqueNameOnly(t *testing.T) {
	idx := index.Build([]*models.CompanyRecord{
		{ID: "u", Name: "ユニーク産業", Address: "北海道札幌市中央区1"},
	})

	d := newEngine().Match(&models.PartialCompanyRecord{Name: "ユニーク産業"}, idx)

	require.True(t, d.IsMatch())
	assert.Equal(t, "u", d.Candidate.RecordID)
	assert.Equal(t, 60, d.Candidate.Score)
	assert.Equal(t, models.MatchedByNameOnlyUnique, d.Candidate.MatchedBy)
	assert.True(t, d.LowConfidence)
}

func TestMatch_TiesAreAmbiguous(t *testing.T) {
	idx := index.Build([]*models.CompanyRecord{
		{ID: "x1", Name: "株式会社テスト", Address: "東京都千代田区1-1-1"},
		{ID: "x2", Name: "株式会社テスト", Address: "東京都千代田区1-1-1"},
	})

	d := newEngine().Match(&models.PartialCompanyRecord{Name: "株式会社テスト", Address: "東京都千代田区1-1-1"}, idx)

	assert.Equal(t, models.OutcomeAmbiguous, d.Outcome)
	assert.Equal(t, []string{"x1", "x2"}, d.Candidates)
}

func TestMatch_NoiseNameSkipsNameSteps(t *testing.T) {
	idx := index.Build([]*models.CompanyRecord{
		{ID: "a", Name: "代表取締役"},
	})

	d := newEngine().Match(&models.PartialCompanyRecord{Name: "代表取締役"}, idx)
	assert.Equal(t, models.OutcomeNoMatch, d.Outcome)
}

func TestMatch_ContradictingCorporateNumberIsExcluded(t *testing.T) {
	idx := index.Build([]*models.CompanyRecord{
		{ID: "a", Name: "同名会社", Address: "東京都千代田区1-1-1", CorporateNumber: "1111111111111"},
	})

	d := newEngine().Match(&models.PartialCompanyRecord{
		Name:            "同名会社",
		Address:         "東京都千代田区1-1-1",
		CorporateNumber: "2222222222222",
	}, idx)

	assert.Equal(t, models.OutcomeNoMatch, d.Outcome)
}

func TestMatch_InvalidCorporateNumberIsIgnored(t *testing.T) {
	idx := index.Build([]*models.CompanyRecord{
		{ID: "a", Name: "株式会社テスト", Address: "東京都千代田区1-1-1", CorporateNumber: "1234567890123"},
	})

	d := newEngine().Match(&models.PartialCompanyRecord{
		Name:            "株式会社テスト",
		Address:         "東京都千代田区1-1-1",
		CorporateNumber: "1.23456E+12",
	}, idx)

	require.True(t, d.IsMatch())
	assert.Equal(t, models.MatchedByNameAndAddress, d.Candidate.MatchedBy)
}

func TestMatch_IsDeterministic(t *testing.T) {
	idx := index.Build([]*models.CompanyRecord{
		{ID: "a", Name: "テスト商事", Address: "東京都千代田区1-1-1"},
		{ID: "b", Name: "テスト商事", Address: "東京都千代田区1-1-1"},
		{ID: "c", Name: "テスト商事株式会社", Address: "東京都千代田区1-1-1"},
	})
	incoming := &models.PartialCompanyRecord{Name: "テスト商事", Address: "東京都千代田区1-1-1"}
	e := newEngine()

	first := e.Match(incoming, idx)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, e.Match(incoming, idx))
	}
}

func TestMatch_EmptyIndex(t *testing.T) {
	d := newEngine().Match(&models.PartialCompanyRecord{Name: "株式会社テスト"}, index.Build(nil))
	assert.Equal(t, models.OutcomeNoMatch, d.Outcome)
}
