package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func corpus() []*models.CompanyRecord {
	return []*models.CompanyRecord{
		{ID: "a", Name: "株式会社テスト", Address: "東京都千代田区1-1-1", PostalCode: "100-0001", CorporateNumber: "1234567890123"},
		{ID: "b", Name: "テスト商事", Address: "東京都千代田区1-1-1"},
		{ID: "c", Name: "テスト商事", Address: "大阪府大阪市北区2-2-2"},
		{ID: "d", Name: "㈱テスト", Address: "東京都 千代田区１−１−１"},
	}
}

func TestBuild(t *testing.T) {
	idx := Build(corpus())
	require.Equal(t, 4, idx.Len())

	t.Run("corporate number bucket", func(t *testing.T) {
		assert.Equal(t, []string{"a"}, idx.ByCorporateNumber("1234567890123"))
		assert.Empty(t, idx.ByCorporateNumber("9999999999999"))
	})

	t.Run("raw variants collide on normalized keys", func(t *testing.T) {
		assert.Equal(t, []string{"a", "d"}, idx.ByNameAndAddress("株式会社テスト", "東京都千代田区1-1-1"))
		assert.Equal(t, []string{"a", "d"}, idx.ByName("株式会社テスト"))
	})

	t.Run("name bucket keeps every member", func(t *testing.T) {
		assert.Equal(t, []string{"b", "c"}, idx.ByName("テスト商事"))
	})

	t.Run("postal bucket", func(t *testing.T) {
		assert.Equal(t, []string{"a"}, idx.ByNameAndPostal("株式会社テスト", "1000001"))
		assert.Equal(t, []string{"a"}, idx.ByPostal("1000001"))
	})

	t.Run("core bucket ignores legal designation", func(t *testing.T) {
		assert.Equal(t, []string{"a", "d"}, idx.ByCore("テスト"))
	})

	t.Run("empty keys never match", func(t *testing.T) {
		assert.Empty(t, idx.ByName(""))
		assert.Empty(t, idx.ByNameAndPostal("テスト商事", ""))
	})

	t.Run("records keep insertion order", func(t *testing.T) {
		ids := []string{}
		for _, r := range idx.Records() {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	})
}

func TestBuilderIgnoresDuplicateIDs(t *testing.T) {
	b := NewBuilder()
	b.Add(&models.CompanyRecord{ID: "a", Name: "テスト"})
	b.Add(&models.CompanyRecord{ID: "a", Name: "テスト"})
	b.Add(nil)
	b.Add(&models.CompanyRecord{Name: "no id"})
	idx := b.Build()

	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, []string{"a"}, idx.ByName("テスト"))
}

func TestWithBucketCap(t *testing.T) {
	records := []*models.CompanyRecord{
		{ID: "1", Name: "同名"},
		{ID: "2", Name: "同名"},
		{ID: "3", Name: "同名"},
	}
	idx := Build(records, WithBucketCap(2))

	assert.Len(t, idx.ByName("同名"), 2)
	assert.Equal(t, 3, idx.Len())
	assert.Len(t, idx.ByCore("同名"), 3, "candidate buckets are not capped")
	assert.Equal(t, []string{"1", "2", "3"}, idx.NameCandidates("同名"))
}

func TestLookupsReturnCopies(t *testing.T) {
	idx := Build(corpus())
	ids := idx.ByName("テスト商事")
	ids[0] = "mutated"
	assert.Equal(t, []string{"b", "c"}, idx.ByName("テスト商事"))
}

func TestKeysOf(t *testing.T) {
	k := KeysOf(&models.CompanyRecord{
		Name:               "テスト（株）",
		Address:            "とうきょうと千代田区",
		PostalCode:         "〒100-0001",
		CorporateNumber:    "1.23457E+12",
		RepresentativeName: "代表取締役 山田太郎",
	})

	assert.Equal(t, "テスト株式会社", k.Name)
	assert.Equal(t, "テスト", k.Core)
	assert.Equal(t, "東京都千代田区", k.Address)
	assert.Equal(t, "東京都", k.Prefecture)
	assert.Equal(t, "1000001", k.PostalCode)
	assert.Equal(t, "", k.CorporateNumber)
	assert.Equal(t, "山田太郎", k.Representative)
	assert.False(t, k.NameIsNoise)
}

func TestStats(t *testing.T) {
	s := Build(corpus()).Stats()
	assert.Equal(t, 4, s.Records)
	assert.Equal(t, 1, s.CorporateNumbers)
	assert.Equal(t, 2, s.AmbiguousNames)
}
